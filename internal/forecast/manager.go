package forecast

import "github.com/greenroute/carbonsched/pkg/models"

// Manager combines a carbon provider and a demand estimator into one
// ForecastSnapshot per tick.
type Manager struct {
	carbon *CarbonForecastProvider
	demand *DemandEstimator
}

func NewManager(carbon *CarbonForecastProvider, demand *DemandEstimator) *Manager {
	return &Manager{carbon: carbon, demand: demand}
}

func (m *Manager) Snapshot() models.ForecastSnapshot {
	snap := m.carbon.Fetch()
	estimate := m.demand.Forecast()
	snap.DemandNow = &estimate.Current
	snap.DemandNext = &estimate.Next
	return snap
}

// Demand exposes the underlying estimator so callers can feed it request
// counts.
func (m *Manager) Demand() *DemandEstimator { return m.demand }
