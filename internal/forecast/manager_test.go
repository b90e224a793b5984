package forecast

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerSnapshotMergesCarbonAndDemand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"from":"2026-07-30T10:00Z","to":"2026-07-30T10:30Z","intensity":{"forecast":90}}]}`))
	}))
	defer server.Close()

	carbon := NewCarbonForecastProvider(server.URL, time.Second, time.Hour, "national")
	carbon.now = func() time.Time { return time.Date(2026, 7, 30, 10, 5, 0, 0, time.UTC) }
	demand := NewDemandEstimator(0.3)
	demand.Update(30, 60)

	mgr := NewManager(carbon, demand)
	snap := mgr.Snapshot()

	require.NotNil(t, snap.IntensityNow)
	assert.InDelta(t, 90, *snap.IntensityNow, 1e-9)
	require.NotNil(t, snap.DemandNow)
	assert.InDelta(t, 0.5, *snap.DemandNow, 1e-9)
	require.NotNil(t, snap.DemandNext)
	assert.InDelta(t, 0.5, *snap.DemandNext, 1e-9)
}
