package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayLoadReturnsEmptyWhenMissing(t *testing.T) {
	dir := t.TempDir()
	o, err := NewOverlay(filepath.Join(dir, "overrides.yaml"))
	require.NoError(t, err)
	defer o.Close()

	overrides, err := o.Load()
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

func TestOverlayLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targetError: 0.2\npolicy: round-robin\n"), 0o644))

	o, err := NewOverlay(path)
	require.NoError(t, err)
	defer o.Close()

	overrides, err := o.Load()
	require.NoError(t, err)
	assert.Equal(t, 0.2, overrides["targetError"])
	assert.Equal(t, "round-robin", overrides["policy"])
}

func TestOverlayApplyOverridesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targetError: 0.25\n"), 0o644))

	o, err := NewOverlay(path)
	require.NoError(t, err)
	defer o.Close()

	overrides, err := o.Load()
	require.NoError(t, err)

	cfg := FromEnv()
	require.NoError(t, cfg.ApplyOverrides(overrides))
	assert.Equal(t, 0.25, cfg.TargetError)
}
