package discovery

import (
	"context"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/greenroute/carbonsched/pkg/models"
)

// FilePoller periodically re-reads a YAML or JSON strategy file and
// replaces a Registry's contents, merged over the original fallback set.
// A failed or empty re-read leaves the last good set in place.
type FilePoller struct {
	path     string
	interval time.Duration
	registry *Registry
	fallback []models.FlavourProfile
}

func NewFilePoller(path string, interval time.Duration, registry *Registry, fallback []models.FlavourProfile) *FilePoller {
	return &FilePoller{path: path, interval: interval, registry: registry, fallback: fallback}
}

// Run blocks, re-reading the file every interval until ctx is cancelled.
func (p *FilePoller) Run(ctx context.Context) {
	if p.path == "" {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshOnce()
		}
	}
}

func (p *FilePoller) refreshOnce() {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return
	}
	var entries []rawStrategy
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return
	}
	parsed := fromRawStrategies(entries)
	if len(parsed) == 0 {
		return
	}
	p.registry.Replace(MergeWithFallback(parsed, p.fallback))
}

func fromRawStrategies(entries []rawStrategy) []models.FlavourProfile {
	out := make([]models.FlavourProfile, 0, len(entries))
	for _, e := range entries {
		precision := e.Precision
		if precision == 0 {
			precision = 1.0
		}
		if precision > 1.0 {
			precision /= 100.0
		}
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
	return out
}
