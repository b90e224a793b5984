package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenroute/carbonsched/pkg/models"
)

func TestRegistryEnsureSessionIsIdempotent(t *testing.T) {
	r := NewRegistry(nil, nil)
	defer r.Shutdown()

	s1 := r.EnsureDefault(testConfig())
	s2 := r.EnsureDefault(testConfig())
	assert.Same(t, s1, s2)
}

func TestRegistryGetScheduleUnknownSession(t *testing.T) {
	r := NewRegistry(nil, nil)
	defer r.Shutdown()

	_, ok, _ := r.GetSchedule("missing", "missing")
	assert.False(t, ok)
}

func TestRegistryGetSchedulePendingThenReady(t *testing.T) {
	r := NewRegistry(nil, nil)
	defer r.Shutdown()

	r.Configure("ns", "svc", testConfig(), nil, false)

	require.Eventually(t, func() bool {
		_, ok, ready := r.GetSchedule("ns", "svc")
		return ok && ready
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRegistryManualOverrideCreatesSessionIfMissing(t *testing.T) {
	r := NewRegistry(nil, nil)
	defer r.Shutdown()

	r.ManualOverride("ns2", "svc2", models.ScheduleDecision{FlavourWeights: map[string]int{"x": 100}})
	schedule, ok, ready := r.GetSchedule("ns2", "svc2")
	require.True(t, ok)
	require.True(t, ready)
	assert.Equal(t, 100, schedule.FlavourWeights["x"])
}
