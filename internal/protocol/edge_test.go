package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaylink/internal/connrec"
)

func TestApHandlerMovesToAwaitingDestInfo(t *testing.T) {
	t.Parallel()
	c, err := connrec.New(connrec.KindAp, connrec.StateSocksWait)
	require.NoError(t, err)
	_, err = c.Inbuf.Write([]byte("CONNECT example.onion:80"))
	require.NoError(t, err)

	require.NoError(t, ApHandler{}.ProcessInbuf(c))
	assert.Equal(t, connrec.StateAwaitingDestInfo, c.State)
}

func TestApHandlerDecrementsPackageWindowWhenOpen(t *testing.T) {
	t.Parallel()
	c, err := connrec.New(connrec.KindAp, connrec.StateSocksWait)
	require.NoError(t, err)
	require.NoError(t, c.SetState(connrec.StateAwaitingDestInfo))
	require.NoError(t, c.SetState(connrec.StateWaitingForOrConn))
	require.NoError(t, c.SetState(connrec.StateOpen))
	c.PackageWindow = 1000
	_, err = c.Inbuf.Write([]byte("payload"))
	require.NoError(t, err)

	require.NoError(t, ApHandler{}.ProcessInbuf(c))
	assert.Equal(t, 993, c.PackageWindow)
}

func TestApHandlerFinishedFlushingClosesWhenStreamDone(t *testing.T) {
	t.Parallel()
	c, err := connrec.New(connrec.KindAp, connrec.StateSocksWait)
	require.NoError(t, err)
	c.DoneSending, c.DoneReceiving = true, true
	require.NoError(t, ApHandler{}.FinishedFlushing(c))
	assert.True(t, c.MarkedForClose)
}

func TestExitHandlerDecrementsDeliverWindow(t *testing.T) {
	t.Parallel()
	c, err := connrec.New(connrec.KindExit, connrec.StateWaitingForDestInfo)
	require.NoError(t, err)
	require.NoError(t, c.SetState(connrec.StateConnecting))
	require.NoError(t, c.SetState(connrec.StateOpen))
	c.DeliverWindow = 500
	_, err = c.Inbuf.Write([]byte("abcde"))
	require.NoError(t, err)

	require.NoError(t, ExitHandler{}.ProcessInbuf(c))
	assert.Equal(t, 495, c.DeliverWindow)
}
