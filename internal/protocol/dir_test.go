package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaylink/internal/connrec"
)

func TestDirHandlerTransitionsToWritingOnFullRequest(t *testing.T) {
	t.Parallel()
	c, err := connrec.New(connrec.KindDir, connrec.StateAwaitingCommand)
	require.NoError(t, err)
	_, err = c.Inbuf.Write([]byte("GET /consensus HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)

	require.NoError(t, DirHandler{}.ProcessInbuf(c))
	assert.Equal(t, connrec.StateWriting, c.State)
	assert.Greater(t, c.OutbufFlushLen, 0)
}

func TestDirHandlerWaitsForMoreBytesWithoutTerminator(t *testing.T) {
	t.Parallel()
	c, err := connrec.New(connrec.KindDir, connrec.StateAwaitingCommand)
	require.NoError(t, err)
	_, err = c.Inbuf.Write([]byte("GET /consensus HTTP/1.0\r\n"))
	require.NoError(t, err)

	require.NoError(t, DirHandler{}.ProcessInbuf(c))
	assert.Equal(t, connrec.StateAwaitingCommand, c.State)
}

func TestDirHandlerFinishedFlushingClosesAfterResponse(t *testing.T) {
	t.Parallel()
	c, err := connrec.New(connrec.KindDir, connrec.StateAwaitingCommand)
	require.NoError(t, err)
	require.NoError(t, c.SetState(connrec.StateWriting))

	require.NoError(t, DirHandler{}.FinishedFlushing(c))
	assert.True(t, c.MarkedForClose)
}
