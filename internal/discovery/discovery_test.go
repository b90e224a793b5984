package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenroute/carbonsched/pkg/models"
)

func TestLoadFromEnvFallsBackToDefaults(t *testing.T) {
	t.Setenv("SCHEDULER_STRATEGIES", "")
	flavours := LoadFromEnv()
	assert.Equal(t, DefaultFlavours(), flavours)
}

func TestLoadFromEnvParsesJSONNormalisingPercentages(t *testing.T) {
	t.Setenv("SCHEDULER_STRATEGIES", `[{"name":"fast","precision":100,"carbon_intensity":1.0},{"precision":0.5,"carbon_intensity":0.5}]`)
	flavours := LoadFromEnv()
	require.Len(t, flavours, 2)
	assert.Equal(t, "fast", flavours[0].Name)
	assert.InDelta(t, 1.0, flavours[0].Precision, 1e-9)
	assert.Equal(t, "precision-50", flavours[1].Name)
	assert.True(t, flavours[1].Enabled)
}

func TestLoadFromEnvFallsBackOnInvalidJSON(t *testing.T) {
	t.Setenv("SCHEDULER_STRATEGIES", "not json")
	assert.Equal(t, DefaultFlavours(), LoadFromEnv())
}

func TestMergeWithFallbackOverridesByNameAndSortsByPrecision(t *testing.T) {
	fallback := []models.FlavourProfile{
		{Name: "a", Precision: 0.5},
		{Name: "b", Precision: 0.9},
	}
	primary := []models.FlavourProfile{
		{Name: "a", Precision: 0.6},
		{Name: "c", Precision: 1.0},
	}
	merged := MergeWithFallback(primary, fallback)
	require.Len(t, merged, 3)
	assert.Equal(t, "c", merged[0].Name)
	assert.Equal(t, "b", merged[1].Name)
	assert.Equal(t, "a", merged[2].Name)
	assert.InDelta(t, 0.6, merged[2].Precision, 1e-9) // primary wins over fallback
}

func TestRegistryReplaceAndUpsert(t *testing.T) {
	r := NewRegistry(DefaultFlavours())
	assert.Len(t, r.List(), 3)

	r.Upsert(models.FlavourProfile{Name: "extra", Precision: 0.2, Enabled: true})
	assert.Len(t, r.List(), 4)

	r.Replace([]models.FlavourProfile{{Name: "only", Precision: 1.0}})
	assert.Len(t, r.List(), 1)
}

func TestFilePollerRefreshOnceMergesOverFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- name: fresh\n  precision: 0.9\n  carbon_intensity: 0.3\n"), 0o644))

	fallback := DefaultFlavours()
	registry := NewRegistry(fallback)
	poller := NewFilePoller(path, time.Hour, registry, fallback)
	poller.refreshOnce()

	names := map[string]bool{}
	for _, f := range registry.List() {
		names[f.Name] = true
	}
	assert.True(t, names["fresh"])
	assert.True(t, names[models.PrecisionKey(1.0)])
}

func TestFilePollerKeepsLastGoodSetOnReadFailure(t *testing.T) {
	registry := NewRegistry(DefaultFlavours())
	poller := NewFilePoller(filepath.Join(t.TempDir(), "missing.yaml"), time.Hour, registry, DefaultFlavours())
	poller.refreshOnce()
	assert.Len(t, registry.List(), 3)
}
