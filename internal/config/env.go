// Package config loads SchedulerConfig from environment variables and an
// optional hot-reloaded YAML overlay file.
package config

import (
	"os"
	"strconv"

	"github.com/greenroute/carbonsched/pkg/models"
)

func getenvFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getenvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// FromEnv builds a SchedulerConfig seeded with DefaultSchedulerConfig and
// overridden by any of the SCHEDULER_*, STRATEGY_DISCOVERY_INTERVAL and
// CARBON_API_* environment variables the deployment sets.
func FromEnv() models.SchedulerConfig {
	c := models.DefaultSchedulerConfig()
	c.TargetError = getenvFloat("SCHEDULER_TARGET_ERROR", c.TargetError)
	c.CreditMin = getenvFloat("SCHEDULER_CREDIT_MIN", c.CreditMin)
	c.CreditMax = getenvFloat("SCHEDULER_CREDIT_MAX", c.CreditMax)
	c.SmoothingWindow = getenvInt("SCHEDULER_CREDIT_WINDOW", c.SmoothingWindow)
	c.PolicyName = getenvString("SCHEDULER_POLICY", c.PolicyName)
	c.ValidFor = getenvInt("SCHEDULER_VALID_FOR", c.ValidFor)
	c.DiscoveryInterval = getenvInt("STRATEGY_DISCOVERY_INTERVAL", c.DiscoveryInterval)
	c.CarbonAPIURL = getenvString("CARBON_API_URL", c.CarbonAPIURL)
	c.CarbonTarget = getenvString("CARBON_API_TARGET", c.CarbonTarget)
	c.CarbonTimeout = getenvFloat("CARBON_API_TIMEOUT", c.CarbonTimeout)
	c.CarbonCacheTTL = getenvFloat("CARBON_API_CACHE_TTL", c.CarbonCacheTTL)
	c.ThrottleMin = getenvFloat("SCHEDULER_THROTTLE_MIN", c.ThrottleMin)
	return c
}
