// Package discovery resolves the set of flavours a scheduler session should
// consider, from the SCHEDULER_STRATEGIES environment variable, an optional
// periodically re-read file, and a built-in three-tier fallback.
package discovery

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/greenroute/carbonsched/pkg/models"
)

// Registry is an in-memory, concurrency-safe set of flavours keyed by name.
type Registry struct {
	mu        sync.Mutex
	flavours  map[string]models.FlavourProfile
}

// NewRegistry seeds the registry with the given flavours (last one wins on
// duplicate names).
func NewRegistry(flavours []models.FlavourProfile) *Registry {
	r := &Registry{flavours: map[string]models.FlavourProfile{}}
	for _, f := range flavours {
		r.flavours[f.Name] = f
	}
	return r
}

// List returns a snapshot of the registered flavours.
func (r *Registry) List() []models.FlavourProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.FlavourProfile, 0, len(r.flavours))
	for _, f := range r.flavours {
		out = append(out, f)
	}
	return out
}

// FlavourNames returns the names of every enabled flavour, satisfying
// consumerside.FlavourSource so a Registry can drive consumer reconciliation
// directly.
func (r *Registry) FlavourNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.flavours))
	for name, f := range r.flavours {
		if f.Enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Replace atomically swaps the registered set.
func (r *Registry) Replace(flavours []models.FlavourProfile) {
	next := make(map[string]models.FlavourProfile, len(flavours))
	for _, f := range flavours {
		next[f.Name] = f
	}
	r.mu.Lock()
	r.flavours = next
	r.mu.Unlock()
}

// Upsert adds or replaces a single flavour.
func (r *Registry) Upsert(f models.FlavourProfile) {
	r.mu.Lock()
	r.flavours[f.Name] = f
	r.mu.Unlock()
}

type rawStrategy struct {
	Name            string  `json:"name" yaml:"name"`
	Precision       float64 `json:"precision" yaml:"precision"`
	CarbonIntensity float64 `json:"carbon_intensity" yaml:"carbon_intensity"`
	Enabled         *bool   `json:"enabled" yaml:"enabled"`
}

// DefaultFlavours is the built-in three-tier fallback used when neither
// SCHEDULER_STRATEGIES nor a discovery file yields anything usable.
func DefaultFlavours() []models.FlavourProfile {
	return []models.FlavourProfile{
		{Name: models.PrecisionKey(1.0), Precision: 1.0, CarbonIntensity: 1.0, Enabled: true},
		{Name: models.PrecisionKey(0.85), Precision: 0.85, CarbonIntensity: 0.7, Enabled: true},
		{Name: models.PrecisionKey(0.7), Precision: 0.7, CarbonIntensity: 0.4, Enabled: true},
	}
}

// LoadFromEnv parses SCHEDULER_STRATEGIES (a JSON array) into flavours,
// falling back to DefaultFlavours on an empty/unset/unparsable value.
func LoadFromEnv() []models.FlavourProfile {
	raw := os.Getenv("SCHEDULER_STRATEGIES")
	if raw == "" {
		return DefaultFlavours()
	}
	parsed, err := ParseStrategiesJSON([]byte(raw))
	if err != nil || len(parsed) == 0 {
		return DefaultFlavours()
	}
	return parsed
}

// ParseStrategiesJSON decodes a JSON array of strategy objects into
// flavours, normalising precision (values >1 are treated as percentages)
// and defaulting enabled to true.
func ParseStrategiesJSON(raw []byte) ([]models.FlavourProfile, error) {
	var entries []rawStrategy
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	out := make([]models.FlavourProfile, 0, len(entries))
	for _, e := range entries {
		precision := e.Precision
		if precision == 0 {
			precision = 1.0
		}
		if precision > 1.0 {
			precision /= 100.0
		}
		precision = math.Max(0, math.Min(precision, 1.0))

		name := e.Name
		if name == "" {
			name = models.PrecisionKey(precision)
		}
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		out = append(out, models.FlavourProfile{
			Name:            name,
			Precision:       precision,
			CarbonIntensity: e.CarbonIntensity,
			Enabled:         enabled,
		})
	}
	return out, nil
}

// MergeWithFallback overlays primary on top of fallback by name, then
// returns the merged set sorted by precision descending — mirroring the
// reference implementation's _merge_with_fallback.
func MergeWithFallback(primary, fallback []models.FlavourProfile) []models.FlavourProfile {
	merged := map[string]models.FlavourProfile{}
	for _, f := range fallback {
		merged[f.Name] = f
	}
	for _, f := range primary {
		merged[f.Name] = f
	}

	out := make([]models.FlavourProfile, 0, len(merged))
	for _, f := range merged {
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Precision > out[j].Precision })
	return out
}
