package listener

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaylink/internal/connrec"
	"relaylink/internal/conntable"
	"relaylink/internal/netio"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	p, err := netio.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return &Engine{Poller: p, Table: conntable.New(0)}
}

func TestCreateListenerRegistersInTable(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	conn, ln, err := e.CreateListener("127.0.0.1:0", connrec.KindApListener)
	require.NoError(t, err)
	defer ln.Close()

	assert.Equal(t, connrec.StateReady, conn.State)
	assert.Same(t, conn, e.Table.GetByKind(connrec.KindApListener))
}

func TestCreateListenerRejectsNonListenerKind(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	_, _, err := e.CreateListener("127.0.0.1:0", connrec.KindOr)
	assert.Error(t, err)
}

func TestHandleListenerReadAcceptsAndInitializesChild(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	var accepted *connrec.Conn
	e.InitAccepted = func(child *connrec.Conn, raw net.Conn) error {
		accepted = child
		return nil
	}

	conn, ln, err := e.CreateListener("127.0.0.1:0", connrec.KindApListener)
	require.NoError(t, err)
	defer ln.Close()

	dialConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer dialConn.Close()

	require.Eventually(t, func() bool {
		return e.HandleListenerRead(conn, ln) == nil && accepted != nil
	}, 2*time.Second, 5*time.Millisecond)

	require.NotNil(t, accepted)
	assert.Equal(t, connrec.KindAp, accepted.Kind)
	assert.Equal(t, connrec.StateSocksWait, accepted.State)
	assert.True(t, accepted.HasPoll)
}

func TestHandleListenerReadIsNoopWithoutPendingConnection(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	conn, ln, err := e.CreateListener("127.0.0.1:0", connrec.KindDirListener)
	require.NoError(t, err)
	defer ln.Close()

	assert.NoError(t, e.HandleListenerRead(conn, ln))
}
