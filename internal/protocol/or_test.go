package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaylink/internal/cell"
	"relaylink/internal/connrec"
)

func orOpenConn(t *testing.T) *connrec.Conn {
	t.Helper()
	c, err := connrec.New(connrec.KindOr, connrec.StateConnecting)
	require.NoError(t, err)
	require.NoError(t, c.SetState(connrec.StateHandshaking))
	require.NoError(t, c.SetState(connrec.StateOpen))
	return c
}

func TestOrHandlerMarksForCloseOnDestroy(t *testing.T) {
	t.Parallel()
	c := orOpenConn(t)
	_, err := c.Inbuf.Write(cell.Destroy(1).Marshal())
	require.NoError(t, err)

	require.NoError(t, OrHandler{}.ProcessInbuf(c))
	assert.True(t, c.MarkedForClose)
	assert.Zero(t, c.Inbuf.Len())
}

func TestOrHandlerIgnoresNonDestroyCells(t *testing.T) {
	t.Parallel()
	c := orOpenConn(t)
	padding := cell.Cell{Command: cell.CommandPadding}
	_, err := c.Inbuf.Write(padding.Marshal())
	require.NoError(t, err)

	require.NoError(t, OrHandler{}.ProcessInbuf(c))
	assert.False(t, c.MarkedForClose)
}

func TestOrHandlerLeavesPartialCellBuffered(t *testing.T) {
	t.Parallel()
	c := orOpenConn(t)
	_, err := c.Inbuf.Write(make([]byte, cell.Size))
	require.NoError(t, err)
	// a well-formed (if garbage) full-size cell always unmarshals, so
	// feed one byte short of a second cell to confirm leftover
	// partial bytes are simply left buffered, not treated as an error.
	_, err = c.Inbuf.Write(make([]byte, cell.Size-1))
	require.NoError(t, err)

	require.NoError(t, OrHandler{}.ProcessInbuf(c))
	assert.Equal(t, cell.Size-1, c.Inbuf.Len())
}
