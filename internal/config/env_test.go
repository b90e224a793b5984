package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvUsesDefaultsWhenUnset(t *testing.T) {
	c := FromEnv()
	assert.Equal(t, 0.05, c.TargetError)
	assert.Equal(t, "credit-greedy", c.PolicyName)
}

func TestFromEnvHonoursOverrides(t *testing.T) {
	t.Setenv("SCHEDULER_TARGET_ERROR", "0.1")
	t.Setenv("SCHEDULER_POLICY", "forecast-aware")
	t.Setenv("SCHEDULER_CREDIT_WINDOW", "120")

	c := FromEnv()
	assert.Equal(t, 0.1, c.TargetError)
	assert.Equal(t, "forecast-aware", c.PolicyName)
	assert.Equal(t, 120, c.SmoothingWindow)
}

func TestFromEnvIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("SCHEDULER_TARGET_ERROR", "not-a-number")
	c := FromEnv()
	assert.Equal(t, 0.05, c.TargetError)
}
