// Package engine implements the decision engine: per-(namespace,name)
// scheduler sessions, each running a background evaluation loop, plus the
// registry and HTTP API that front them.
package engine

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/greenroute/carbonsched/internal/discovery"
	"github.com/greenroute/carbonsched/internal/forecast"
	"github.com/greenroute/carbonsched/internal/ledger"
	"github.com/greenroute/carbonsched/internal/policy"
	"github.com/greenroute/carbonsched/internal/scaling"
	"github.com/greenroute/carbonsched/pkg/models"
)

// MetricsSink receives the outcome of each evaluation tick. Implementations
// must be safe for concurrent use; a nil sink is a valid no-op.
type MetricsSink interface {
	RecordDecision(namespace, name string, decision models.ScheduleDecision, result models.PolicyResult, forecast models.ForecastSnapshot)
	RecordManual(namespace, name string, schedule models.ScheduleDecision)
}

// VersionedConfig is one entry in a session's config audit trail (§4.11).
type VersionedConfig struct {
	Version   int
	AppliedAt time.Time
	Actor     string
	Config    models.SchedulerConfig
	Summary   string
}

// Session owns one scheduler's config, ledger, policy, registry and
// background evaluation loop.
type Session struct {
	Namespace string
	Name      string

	logger *slog.Logger
	sink   MetricsSink

	mu               sync.RWMutex
	config           models.SchedulerConfig
	componentBounds  map[string]models.ComponentBounds
	ledger           *ledger.Ledger
	registry         *discovery.Registry
	fallbackFlavours []models.FlavourProfile
	forecastMgr      *forecast.Manager
	policy           policy.Policy

	schedule       *models.ScheduleDecision
	manualSchedule *models.ScheduleDecision
	manualDeadline time.Time

	history []VersionedConfig
	version int

	refresh chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

const configHistoryLimit = 20

// NewSession builds and starts a session. config and componentBounds are
// the result of partitioning an incoming configure payload; flavours seeds
// the strategy registry (discovery.LoadFromEnv() when nil).
func NewSession(namespace, name string, config models.SchedulerConfig, componentBounds map[string]models.ComponentBounds, flavours []models.FlavourProfile, sink MetricsSink, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if flavours == nil {
		flavours = discovery.LoadFromEnv()
	}

	s := &Session{
		Namespace:        namespace,
		Name:             name,
		logger:           logger,
		sink:             sink,
		config:           config,
		componentBounds:  componentBounds,
		ledger:           ledger.New(config.TargetError, config.CreditMin, config.CreditMax, config.SmoothingWindow),
		registry:         discovery.NewRegistry(flavours),
		fallbackFlavours: flavours,
		forecastMgr: forecast.NewManager(
			forecast.NewCarbonForecastProvider(config.CarbonAPIURL, time.Duration(config.CarbonTimeout*float64(time.Second)), time.Duration(config.CarbonCacheTTL*float64(time.Second)), config.CarbonTarget),
			forecast.NewDemandEstimator(0.3),
		),
		refresh: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.policy = policy.Build(config.PolicyName, s.ledger)
	s.recordConfig(config, "initial")

	go s.run()
	s.RequestRefresh()
	return s
}

func (s *Session) recordConfig(config models.SchedulerConfig, actor string) {
	s.version++
	s.history = append(s.history, VersionedConfig{
		Version:   s.version,
		AppliedAt: time.Now(),
		Actor:     actor,
		Config:    config,
	})
	if len(s.history) > configHistoryLimit {
		s.history = s.history[len(s.history)-configHistoryLimit:]
	}
}

// ConfigHistory returns a copy of the last (up to 20) config versions.
func (s *Session) ConfigHistory() []VersionedConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]VersionedConfig, len(s.history))
	copy(out, s.history)
	return out
}

// Registry returns the session's strategy registry, letting a caller attach
// a discovery.FilePoller to re-read the flavour set on an interval (§4.10).
func (s *Session) Registry() *discovery.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// ApplyOverrides rebuilds the session's config/ledger/policy from an
// override payload, discarding any pending manual schedule.
func (s *Session) ApplyOverrides(config models.SchedulerConfig, componentBounds map[string]models.ComponentBounds) {
	newLedger := ledger.New(config.TargetError, config.CreditMin, config.CreditMax, config.SmoothingWindow)
	newPolicy := policy.Build(config.PolicyName, newLedger)

	s.mu.Lock()
	s.config = config
	s.componentBounds = componentBounds
	s.ledger = newLedger
	s.policy = newPolicy
	s.manualSchedule = nil
	s.manualDeadline = time.Time{}
	s.schedule = nil
	s.recordConfig(config, "override")
	s.mu.Unlock()

	s.logger.Info("applied scheduler overrides", "namespace", s.Namespace, "name", s.Name)
	s.RequestRefresh()
}

// GetSchedule returns the active schedule: the manual override if one is
// still within its deadline, otherwise the last computed schedule. Returns
// nil when no schedule has been computed yet.
func (s *Session) GetSchedule() *models.ScheduleDecision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.manualSchedule != nil && s.manualDeadline.After(time.Now()) {
		copySchedule := *s.manualSchedule
		return &copySchedule
	}
	if s.schedule == nil {
		return nil
	}
	copySchedule := *s.schedule
	return &copySchedule
}

// SetManualOverride pins the schedule to the given decision for one
// validFor-scaled window.
func (s *Session) SetManualOverride(schedule models.ScheduleDecision) {
	s.mu.Lock()
	ttl := s.config.ValidFor
	if ttl < 1 {
		ttl = 1
	}
	s.manualSchedule = &schedule
	s.manualDeadline = time.Now().Add(time.Duration(ttl) * time.Second)
	s.schedule = &schedule
	sink := s.sink
	namespace, name := s.Namespace, s.Name
	s.mu.Unlock()

	if sink != nil {
		sink.RecordManual(namespace, name, schedule)
	}
	s.RequestRefresh()
}

// RequestRefresh wakes the background loop immediately.
func (s *Session) RequestRefresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Shutdown stops the background loop and waits (briefly) for it to exit.
func (s *Session) Shutdown() {
	close(s.stop)
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
	}
}

func (s *Session) run() {
	defer close(s.done)
	const failureBackoff = 5 * time.Second

	for {
		wait := s.nextWait()
		timer := time.NewTimer(wait)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-s.refresh:
			timer.Stop()
		case <-timer.C:
		}

		select {
		case <-s.stop:
			return
		default:
		}

		if s.manualActive() {
			continue
		}

		decision, result, fc, err := s.evaluateOnce()
		if err != nil {
			s.logger.Error("scheduler iteration failed", "namespace", s.Namespace, "name", s.Name, "error", err)
			select {
			case <-s.stop:
				return
			case <-time.After(failureBackoff):
			}
			continue
		}

		s.mu.Lock()
		s.schedule = &decision
		s.manualSchedule = nil
		s.manualDeadline = time.Time{}
		sink := s.sink
		s.mu.Unlock()

		if sink != nil {
			sink.RecordDecision(s.Namespace, s.Name, decision, result, fc)
		}
	}
}

func (s *Session) nextWait() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seconds := int(float64(s.config.ValidFor) * 0.8)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func (s *Session) manualActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manualSchedule != nil && s.manualDeadline.After(time.Now())
}

// evaluateOnce runs one scheduling tick: snapshot forecast, evaluate
// policy, advance the ledger, derive the scaling directive, and assemble
// the published decision — mirroring SchedulerEngine.evaluate.
func (s *Session) evaluateOnce() (models.ScheduleDecision, models.PolicyResult, models.ForecastSnapshot, error) {
	s.mu.Lock()
	flavours := s.registry.List()
	if len(flavours) == 0 {
		s.mu.Unlock()
		return models.ScheduleDecision{}, models.PolicyResult{}, models.ForecastSnapshot{}, errNoFlavours
	}
	fc := s.forecastMgr.Snapshot()
	activePolicy := s.policy
	activeLedger := s.ledger
	config := s.config
	bounds := s.componentBounds
	s.mu.Unlock()

	result, err := activePolicy.Evaluate(flavours, &fc)
	if err != nil {
		return models.ScheduleDecision{}, models.PolicyResult{}, models.ForecastSnapshot{}, err
	}

	balance := activeLedger.Update(result.AvgPrecision)
	velocity := activeLedger.Velocity()

	directive := scaling.FromState(balance, config, &fc, bounds, config.ThrottleMin, 0, 0)
	decision := buildDecision(result, flavours, config, balance, velocity, directive, time.Now())

	return decision, result, fc, nil
}

// RegisterRequest feeds a completed request observation into the demand
// estimator and (when the active policy tracks cumulative emissions) its
// emissions budget.
func (s *Session) RegisterRequest(flavourName string, windowSeconds float64) {
	s.mu.RLock()
	demand := s.forecastMgr.Demand()
	flavours := s.registry.List()
	active := s.policy
	s.mu.RUnlock()

	demand.Update(1, windowSeconds)
	if observer, ok := active.(interface {
		Observe(string, []models.FlavourProfile)
	}); ok {
		observer.Observe(flavourName, flavours)
	}
}

var errNoFlavours = errors.New("engine: no flavours available for scheduling")
