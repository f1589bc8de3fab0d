package connrec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindIsListener(t *testing.T) {
	t.Parallel()
	assert.True(t, KindOrListener.IsListener())
	assert.True(t, KindApListener.IsListener())
	assert.True(t, KindDirListener.IsListener())
	assert.False(t, KindOr.IsListener())
	assert.False(t, KindDnsWorker.IsListener())
}

func TestKindIsEdge(t *testing.T) {
	t.Parallel()
	assert.True(t, KindAp.IsEdge())
	assert.True(t, KindExit.IsEdge())
	assert.False(t, KindOr.IsEdge())
	assert.False(t, KindDir.IsEdge())
}

func TestStateValidForKind(t *testing.T) {
	t.Parallel()
	assert.True(t, StateValidForKind(KindOr, StateHandshaking))
	assert.False(t, StateValidForKind(KindOr, StateSocksWait))
	assert.True(t, StateValidForKind(KindAp, StateSocksWait))
	assert.False(t, StateValidForKind(KindUnknown, StateReady))
}

// DNSWORKER and CPUWORKER must validate independently of one another —
// the original fell through DNSWORKER into the CPUWORKER bounds check.
func TestWorkerKindsValidateIndependently(t *testing.T) {
	t.Parallel()
	assert.True(t, StateValidForKind(KindDnsWorker, StateIdle))
	assert.True(t, StateValidForKind(KindDnsWorker, StateBusy))
	assert.True(t, StateValidForKind(KindCpuWorker, StateIdle))
	assert.True(t, StateValidForKind(KindCpuWorker, StateBusy))
	assert.False(t, StateValidForKind(KindDnsWorker, StateConnecting))
	assert.False(t, StateValidForKind(KindCpuWorker, StateConnecting))
}

func TestKindStringUnknown(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.Equal(t, "invalid", State(999).String())
}
