package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetByLinkPKFindsAddedRouter(t *testing.T) {
	t.Parallel()
	d := NewMemDirectory()
	d.Add(RouterInfo{Nickname: "relay1", LinkPKey: []byte("key1")})

	got, ok := d.GetByLinkPK([]byte("key1"))
	assert.True(t, ok)
	assert.Equal(t, "relay1", got.Nickname)

	_, ok = d.GetByLinkPK([]byte("missing"))
	assert.False(t, ok)
}

func TestSetDirtyIsObservable(t *testing.T) {
	t.Parallel()
	d := NewMemDirectory()
	assert.False(t, d.Dirty())
	d.SetDirty()
	assert.True(t, d.Dirty())
}

func TestRetryConnectionsCounts(t *testing.T) {
	t.Parallel()
	d := NewMemDirectory()
	d.RetryConnections()
	d.RetryConnections()
	assert.Equal(t, 2, d.Retries())
}

// Forget must actually record the eviction — the original
// router_forget_router was reported not to work.
func TestForgetRecordsEviction(t *testing.T) {
	t.Parallel()
	d := NewMemDirectory()
	d.Forget(0x0A000001, 9030)
	d.Forget(0x0A000002, 9031)
	assert.Len(t, d.Forgotten(), 2)
}
