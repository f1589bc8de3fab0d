package netio

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterWaitObservesReadability(t *testing.T) {
	t.Parallel()
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	tok, err := p.Register(int(r.Fd()), true, false)
	require.NoError(t, err)

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	events, err := p.Wait(ctx, 1000)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, tok, events[0].Token)
	assert.True(t, events[0].Readable)
}

func TestWaitTimesOutWithNoReadyFDs(t *testing.T) {
	t.Parallel()
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	_, err = p.Register(int(r.Fd()), true, false)
	require.NoError(t, err)

	ctx := context.Background()
	events, err := p.Wait(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDeregisterIgnoresUnknownToken(t *testing.T) {
	t.Parallel()
	p, err := New()
	require.NoError(t, err)
	defer p.Close()
	assert.NoError(t, p.Deregister(Token(9999)))
}

func TestSetInterestUnknownTokenErrors(t *testing.T) {
	t.Parallel()
	p, err := New()
	require.NoError(t, err)
	defer p.Close()
	assert.Error(t, p.SetInterest(Token(9999), true, true))
}
