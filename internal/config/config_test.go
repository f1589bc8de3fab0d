package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsClientOnly(t *testing.T) {
	t.Parallel()
	cfg := Default()
	assert.False(t, cfg.OnionRouter)
	assert.Zero(t, cfg.OrPort)
	assert.Greater(t, cfg.TableCapacity, 0)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("onion_router: true\nor_port: 9001\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.OnionRouter)
	assert.EqualValues(t, 9001, cfg.OrPort)
	assert.Equal(t, Default().FairShare, cfg.FairShare, "unset fields keep their default")
}

func TestLoadMissingFileErrors(t *testing.T) {
	t.Parallel()
	_, err := Load("/nonexistent/relay.yaml")
	assert.Error(t, err)
}
