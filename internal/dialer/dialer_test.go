package dialer

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaylink/internal/connrec"
)

func TestStartConnectsToListeningPort(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	c, err := connrec.New(connrec.KindOr, connrec.StateConnecting)
	require.NoError(t, err)

	d, res := Start(c, "127.0.0.1", 0x7F000001, port)
	require.Equal(t, ResultPending, res)

	require.Eventually(t, func() bool {
		r, _, _ := d.Poll()
		return r != ResultPending
	}, 2*time.Second, 5*time.Millisecond)

	result, raw, err := d.Poll()
	require.NoError(t, err)
	require.Equal(t, ResultConnected, result)
	require.NotNil(t, raw)
	raw.Close()
}

func TestStartReportsFailureOnRefusedConnection(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close()) // nothing listening now

	c, err := connrec.New(connrec.KindOr, connrec.StateConnecting)
	require.NoError(t, err)
	d, _ := Start(c, "127.0.0.1", 0x7F000001, port)

	require.Eventually(t, func() bool {
		r, _, _ := d.Poll()
		return r != ResultPending
	}, 2*time.Second, 5*time.Millisecond)

	result, _, err := d.Poll()
	assert.Equal(t, ResultFailed, result)
	assert.Error(t, err)
	assert.True(t, c.MarkedForClose)
}
