package engine

import (
	"log/slog"
	"sync"

	"github.com/greenroute/carbonsched/pkg/models"
)

type sessionKey struct{ namespace, name string }

// Registry owns every scheduler session, keyed by namespace/name.
type Registry struct {
	mu       sync.RWMutex
	sessions map[sessionKey]*Session
	sink     MetricsSink
	logger   *slog.Logger
}

func NewRegistry(sink MetricsSink, logger *slog.Logger) *Registry {
	return &Registry{sessions: map[sessionKey]*Session{}, sink: sink, logger: logger}
}

// Configure creates the session for (namespace,name) if absent, then either
// applies the given overrides or simply requests a refresh.
func (r *Registry) Configure(namespace, name string, config models.SchedulerConfig, componentBounds map[string]models.ComponentBounds, hasOverrides bool) *Session {
	session, created := r.ensureSession(namespace, name, config, componentBounds)
	if !created && hasOverrides {
		session.ApplyOverrides(config, componentBounds)
	} else if !created {
		session.RequestRefresh()
	}
	return session
}

// GetSchedule returns the named session's active schedule. ok is false if
// the session does not exist; ready is false if the session exists but has
// not computed a schedule yet.
func (r *Registry) GetSchedule(namespace, name string) (schedule models.ScheduleDecision, ok, ready bool) {
	r.mu.RLock()
	session, found := r.sessions[sessionKey{namespace, name}]
	r.mu.RUnlock()
	if !found {
		return models.ScheduleDecision{}, false, false
	}
	s := session.GetSchedule()
	if s == nil {
		return models.ScheduleDecision{}, true, false
	}
	return *s, true, true
}

// ManualOverride pins the named session's schedule (creating the session if
// needed).
func (r *Registry) ManualOverride(namespace, name string, schedule models.ScheduleDecision) {
	session, _ := r.ensureSession(namespace, name, models.DefaultSchedulerConfig(), nil)
	session.SetManualOverride(schedule)
}

// EnsureDefault guarantees the default namespace/name session exists.
func (r *Registry) EnsureDefault(config models.SchedulerConfig) *Session {
	session, _ := r.ensureSession(DefaultNamespace, DefaultName, config, nil)
	return session
}

// ConfigHistory returns the config audit trail for one session, or nil if
// it does not exist.
func (r *Registry) ConfigHistory(namespace, name string) ([]VersionedConfig, bool) {
	r.mu.RLock()
	session, ok := r.sessions[sessionKey{namespace, name}]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return session.ConfigHistory(), true
}

func (r *Registry) ensureSession(namespace, name string, config models.SchedulerConfig, componentBounds map[string]models.ComponentBounds) (*Session, bool) {
	key := sessionKey{namespace, name}

	r.mu.RLock()
	session, ok := r.sessions[key]
	r.mu.RUnlock()
	if ok {
		return session, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok = r.sessions[key]; ok {
		return session, false
	}
	if r.logger != nil {
		r.logger.Info("creating scheduler session", "namespace", namespace, "name", name)
	}
	session = NewSession(namespace, name, config, componentBounds, nil, r.sink, r.logger)
	r.sessions[key] = session
	return session, true
}

// Shutdown stops every session's background loop.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.Shutdown()
	}
}
