package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"relaylink/internal/config"
	"relaylink/internal/connrec"
	"relaylink/internal/router"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.GlobalBucketCap = 1000
	eng, err := New(cfg, zap.NewNop(), router.NewMemDirectory(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Poller.Close() })
	return eng
}

func TestTickSecondRefillsGlobalBucket(t *testing.T) {
	t.Parallel()
	eng := newTestEngine(t)
	eng.Accountant.ConsumeGlobal(1000)
	require.EqualValues(t, 0, eng.Accountant.GlobalBucket())
	eng.TickSecond()
	assert.EqualValues(t, 1000, eng.Accountant.GlobalBucket())
}

func TestTickSecondCreditsEligibleReceiverAndResumesReading(t *testing.T) {
	t.Parallel()
	eng := newTestEngine(t)

	c, err := connrec.New(connrec.KindOr, connrec.StateConnecting)
	require.NoError(t, err)
	require.NoError(t, c.SetState(connrec.StateHandshaking))
	require.NoError(t, c.SetState(connrec.StateOpen))
	c.Bandwidth = 500
	c.ReceiverBucket = 0
	c.WantsToRead = true
	require.NoError(t, eng.Table.Add(c))

	eng.TickSecond()
	assert.EqualValues(t, 500, c.ReceiverBucket)
	assert.False(t, c.WantsToRead, "crediting the bucket above zero must resume reading")
}

func TestReapMarkedRemovesFromTable(t *testing.T) {
	t.Parallel()
	eng := newTestEngine(t)

	c, err := connrec.New(connrec.KindDnsWorker, connrec.StateIdle)
	require.NoError(t, err)
	require.NoError(t, eng.Table.Add(c))
	c.MarkForClose()

	reaped := eng.ReapMarked()
	require.Len(t, reaped, 1)
	assert.Equal(t, 0, eng.Table.Len())
}

func TestRetryAllConnectionsIsNoopWithoutConfiguredPorts(t *testing.T) {
	t.Parallel()
	eng := newTestEngine(t)
	eng.RetryAllConnections() // should not panic with every port at zero
	assert.Equal(t, 0, eng.Table.Len())
}
