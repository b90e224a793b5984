// Package scheduleclient polls the decision engine's HTTP API for a
// namespaced schedule and caches the last known-good snapshot, shared by
// both the router and the consumer so neither ever blocks its hot path on a
// slow or unavailable engine.
package scheduleclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/greenroute/carbonsched/pkg/models"
)

// DefaultSchedule is served whenever the decision engine hasn't produced a
// snapshot yet (or is unreachable), mirroring the bundled fallback schedule
// used before any real policy evaluation has run.
func DefaultSchedule() models.ScheduleDecision {
	return models.ScheduleDecision{
		FlavourWeights: map[string]int{"precision-100": 60, "precision-50": 30, "precision-30": 10},
		FlavourRules: []models.FlavourRule{
			{FlavourName: "precision-100", Precision: 100, Weight: 60},
			{FlavourName: "precision-50", Precision: 50, Weight: 30},
			{FlavourName: "precision-30", Precision: 30, Weight: 10},
		},
		Processing: models.ScalingDirective{
			Throttle:       1.0,
			CreditsRatio:   1.0,
			IntensityRatio: 1.0,
			Ceilings:       map[string]int{},
		},
		ValidUntil: time.Now().Add(24 * time.Hour),
	}
}

// Manager polls the decision engine's HTTP API for the namespaced schedule
// and caches the last known-good snapshot.
type Manager struct {
	baseURL   string
	namespace string
	name      string
	client    *http.Client
	logger    *slog.Logger

	mu      sync.RWMutex
	current models.ScheduleDecision
	loaded  bool
}

// NewManager builds a client that polls baseURL (the decision engine's HTTP
// root, e.g. "http://decision-engine:8080") for namespace/name's schedule.
func NewManager(baseURL, namespace, name string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		baseURL:   baseURL,
		namespace: namespace,
		name:      name,
		client:    &http.Client{Timeout: 5 * time.Second},
		logger:    logger,
	}
}

// LoadOnce performs a single synchronous fetch, used at startup so the first
// request isn't necessarily served the fallback schedule.
func (m *Manager) LoadOnce(ctx context.Context) {
	m.refresh(ctx)
}

// WatchForever polls the engine every interval until ctx is cancelled.
func (m *Manager) WatchForever(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

func (m *Manager) refresh(ctx context.Context) {
	url := fmt.Sprintf("%s/schedule/%s/%s", m.baseURL, m.namespace, m.name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		m.logger.Warn("build schedule request failed", "error", err)
		return
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn("fetch schedule failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}
	var decision models.ScheduleDecision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		m.logger.Warn("decode schedule failed", "error", err)
		return
	}
	m.mu.Lock()
	m.current = decision
	m.loaded = true
	m.mu.Unlock()
}

// Snapshot returns the last known-good schedule, or DefaultSchedule if one
// has never successfully loaded.
func (m *Manager) Snapshot() models.ScheduleDecision {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loaded {
		return DefaultSchedule()
	}
	return m.current
}

// ThrottleFactor implements throttle.FactorSource.
func (m *Manager) ThrottleFactor() float64 {
	return m.Snapshot().Processing.Throttle
}

// FlavourCount implements throttle.FactorSource.
func (m *Manager) FlavourCount() int {
	snapshot := m.Snapshot()
	if len(snapshot.FlavourRules) == 0 {
		return 1
	}
	return len(snapshot.FlavourRules)
}
