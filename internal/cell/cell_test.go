package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestroyMarshalRoundTrip(t *testing.T) {
	t.Parallel()
	c := Destroy(42)
	wire := c.Marshal()
	require.Len(t, wire, Size)

	got, ok := Unmarshal(wire)
	require.True(t, ok)
	assert.Equal(t, uint32(42), got.CircuitID)
	assert.Equal(t, CommandDestroy, got.Command)
}

func TestUnmarshalRejectsWrongSize(t *testing.T) {
	t.Parallel()
	_, ok := Unmarshal(make([]byte, Size-1))
	assert.False(t, ok)
}

func TestMarshalPreservesPayload(t *testing.T) {
	t.Parallel()
	var c Cell
	c.CircuitID = 7
	c.Command = CommandRelay
	c.Payload[0] = 0xAB
	c.Payload[len(c.Payload)-1] = 0xCD

	got, ok := Unmarshal(c.Marshal())
	require.True(t, ok)
	assert.Equal(t, byte(0xAB), got.Payload[0])
	assert.Equal(t, byte(0xCD), got.Payload[len(got.Payload)-1])
}
