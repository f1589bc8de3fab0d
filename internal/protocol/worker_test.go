package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaylink/internal/connrec"
)

func TestWorkerHandlerReturnsToIdleOnResponse(t *testing.T) {
	t.Parallel()
	c, err := connrec.New(connrec.KindDnsWorker, connrec.StateBusy)
	require.NoError(t, err)
	_, err = c.Inbuf.Write([]byte("resolved"))
	require.NoError(t, err)

	require.NoError(t, WorkerHandler{}.ProcessInbuf(c))
	assert.Equal(t, connrec.StateIdle, c.State)
	assert.Zero(t, c.Inbuf.Len())
}

func TestWorkerHandlerIgnoresIdleConn(t *testing.T) {
	t.Parallel()
	c, err := connrec.New(connrec.KindCpuWorker, connrec.StateIdle)
	require.NoError(t, err)
	_, err = c.Inbuf.Write([]byte("stray"))
	require.NoError(t, err)

	require.NoError(t, WorkerHandler{}.ProcessInbuf(c))
	assert.Equal(t, connrec.StateIdle, c.State)
	assert.Equal(t, 5, c.Inbuf.Len())
}
