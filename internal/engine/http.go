package engine

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/greenroute/carbonsched/pkg/models"
)

// Server exposes a Registry over HTTP per §6.1/§6.6.
type Server struct {
	registry *Registry
	baseCfg  models.SchedulerConfig
	logger   *slog.Logger
}

func NewServer(registry *Registry, baseConfig models.SchedulerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{registry: registry, baseCfg: baseConfig, logger: logger}
}

// Router builds the *mux.Router serving the decision engine's HTTP API.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/schedule", s.handleDefaultSchedule).Methods(http.MethodGet)
	r.HandleFunc("/schedule/{namespace}/{name}", s.handleSchedule).Methods(http.MethodGet)
	r.HandleFunc("/schedule/{namespace}/{name}/config-history", s.handleConfigHistory).Methods(http.MethodGet)
	r.HandleFunc("/setschedule", s.handleSetDefaultSchedule).Methods(http.MethodPost)
	r.HandleFunc("/schedule/{namespace}/{name}/manual", s.handleManualSchedule).Methods(http.MethodPost)
	r.HandleFunc("/config/{namespace}/{name}", s.handleConfigure).Methods(http.MethodPut)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleDefaultSchedule(w http.ResponseWriter, r *http.Request) {
	s.registry.EnsureDefault(s.baseCfg)
	s.writeSchedule(w, DefaultNamespace, DefaultName)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.writeSchedule(w, vars["namespace"], vars["name"])
}

func (s *Server) writeSchedule(w http.ResponseWriter, namespace, name string) {
	schedule, ok, ready := s.registry.GetSchedule(namespace, name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown schedule " + namespace + "/" + name})
		return
	}
	if !ready {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) handleSetDefaultSchedule(w http.ResponseWriter, r *http.Request) {
	s.applyManual(w, r, DefaultNamespace, DefaultName)
}

func (s *Server) handleManualSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.applyManual(w, r, vars["namespace"], vars["name"])
}

func (s *Server) applyManual(w http.ResponseWriter, r *http.Request, namespace, name string) {
	var payload models.ScheduleDecision
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload must be an object"})
		return
	}
	s.registry.ManualOverride(namespace, name, payload)
	s.logger.Warn("manual schedule override applied", "namespace", namespace, "name", name)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "schedule set"})
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	namespace, name := vars["namespace"], vars["name"]

	var payload map[string]any
	_ = json.NewDecoder(r.Body).Decode(&payload)

	overrides, bounds := PartitionPayload(payload)
	cfg, err := BuildConfig(s.baseCfg, overrides)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.registry.Configure(namespace, name, cfg, bounds, len(overrides) > 0 || len(bounds) > 0)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleConfigHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	history, ok := s.registry.ConfigHistory(vars["namespace"], vars["name"])
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown schedule " + vars["namespace"] + "/" + vars["name"]})
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
