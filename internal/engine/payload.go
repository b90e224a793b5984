package engine

import (
	"os"

	"github.com/greenroute/carbonsched/pkg/models"
)

// DefaultNamespace and DefaultName back the unscoped /schedule and
// /setschedule endpoints, overridable for multi-tenant deployments.
var (
	DefaultNamespace = envOr("DEFAULT_SCHEDULE_NAMESPACE", "default")
	DefaultName      = envOr("DEFAULT_SCHEDULE_NAME", "default")
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var schedulerConfigKeys = map[string]bool{
	"targetError": true, "creditMin": true, "creditMax": true, "creditWindow": true,
	"policy": true, "validFor": true, "discoveryInterval": true,
	"carbonApiUrl": true, "carbonTarget": true, "carbonTimeout": true, "carbonCacheTTL": true, "throttleMin": true,
}

// PartitionPayload splits an incoming /config or /setschedule payload into
// scheduler config overrides and per-component replica bounds, mirroring
// the reference implementation's _partition_payload /
// _normalise_component_bounds.
func PartitionPayload(payload map[string]any) (map[string]any, map[string]models.ComponentBounds) {
	if payload == nil {
		return map[string]any{}, map[string]models.ComponentBounds{}
	}

	configSection := payload
	if nested, ok := payload["scheduler"].(map[string]any); ok {
		configSection = nested
	}

	overrides := map[string]any{}
	for key := range schedulerConfigKeys {
		if v, ok := configSection[key]; ok && v != nil {
			overrides[key] = v
		}
	}

	bounds := normaliseComponentBounds(payload["components"])
	return overrides, bounds
}

func normaliseComponentBounds(raw any) map[string]models.ComponentBounds {
	bounds := map[string]models.ComponentBounds{}
	data, ok := raw.(map[string]any)
	if !ok {
		return bounds
	}

	for component, settingsRaw := range data {
		settings, ok := settingsRaw.(map[string]any)
		if !ok {
			continue
		}
		minVal := asInt(settings["minReplicas"])
		maxVal := asInt(settings["maxReplicas"])
		if maxVal == nil {
			continue
		}
		bounds[component] = models.ComponentBounds{Min: minVal, Max: *maxVal}
	}
	return bounds
}

func asInt(v any) *int {
	switch t := v.(type) {
	case float64:
		i := int(t)
		return &i
	case int:
		return &t
	default:
		return nil
	}
}

// BuildConfig starts from FromEnv()-style defaults and applies overrides.
func BuildConfig(base models.SchedulerConfig, overrides map[string]any) (models.SchedulerConfig, error) {
	cfg := base
	if len(overrides) == 0 {
		return cfg, nil
	}
	err := cfg.ApplyOverrides(overrides)
	return cfg, err
}
