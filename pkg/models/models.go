// Package models holds the data types shared across the decision engine,
// router, and consumer: flavour profiles, forecast snapshots, policy
// results, and the published schedule itself.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

func jsonMarshal(v any) ([]byte, error) { return json.Marshal(v) }

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

// PrecisionKey returns the stable flavour name for a precision ratio,
// e.g. 0.85 -> "precision-85".
func PrecisionKey(precision float64) string {
	c := clamp(precision, 0, 1)
	return fmt.Sprintf("precision-%d", int(math.Round(c*100)))
}

// FlavourProfile describes one deployable precision variant of the target
// service.
type FlavourProfile struct {
	Name            string            `json:"name" yaml:"name"`
	Precision       float64           `json:"precision" yaml:"precision"`
	CarbonIntensity float64           `json:"carbonIntensity" yaml:"carbonIntensity"`
	Enabled         bool              `json:"enabled" yaml:"enabled"`
	Annotations     map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// ExpectedError returns the relative error contributed by this flavour.
func (f FlavourProfile) ExpectedError() float64 {
	return math.Max(0, 1-f.Precision)
}

// ForecastPoint is a half-open carbon intensity interval.
type ForecastPoint struct {
	Start    time.Time `json:"from"`
	End      time.Time `json:"to"`
	Forecast *float64  `json:"forecast,omitempty"`
	Index    *string   `json:"index,omitempty"`
}

// ForecastSnapshot is the carbon + demand picture seen by a policy at one
// decision tick.
type ForecastSnapshot struct {
	IntensityNow  *float64        `json:"intensityNow,omitempty"`
	IntensityNext *float64        `json:"intensityNext,omitempty"`
	IndexNow      *string         `json:"indexNow,omitempty"`
	IndexNext     *string         `json:"indexNext,omitempty"`
	DemandNow     *float64        `json:"demandNow,omitempty"`
	DemandNext    *float64        `json:"demandNext,omitempty"`
	GeneratedAt   time.Time       `json:"generatedAt"`
	Schedule      []ForecastPoint `json:"schedule,omitempty"`
}

// PolicyDiagnostics is a named scalar bag reported alongside a policy's
// weight distribution.
type PolicyDiagnostics map[string]float64

// PolicyResult is the outcome of one policy evaluation.
type PolicyResult struct {
	Weights      map[string]float64
	AvgPrecision float64
	Diagnostics  PolicyDiagnostics
}

// ComponentBounds is the {min,max} replica bound for one downstream
// component, e.g. "router", "consumer", "target". Min is optional.
type ComponentBounds struct {
	Min *int
	Max int
}

// ScalingDirective carries the processing throttle and derived replica
// ceilings for one decision tick.
type ScalingDirective struct {
	Throttle       float64        `json:"throttle"`
	CreditsRatio   float64        `json:"creditsRatio"`
	IntensityRatio float64        `json:"intensityRatio"`
	Ceilings       map[string]int `json:"ceilings"`
}

// SchedulerConfig carries the tunables for one scheduler session. Zero
// value is never valid; use DefaultSchedulerConfig or config.FromEnv.
type SchedulerConfig struct {
	TargetError        float64 `json:"targetError"`
	CreditMin          float64 `json:"creditMin"`
	CreditMax          float64 `json:"creditMax"`
	SmoothingWindow    int     `json:"creditWindow"`
	PolicyName         string  `json:"policy"`
	ValidFor           int     `json:"validFor"`
	DiscoveryInterval  int     `json:"discoveryInterval"`
	CarbonAPIURL       string  `json:"carbonApiUrl"`
	CarbonTarget       string  `json:"carbonTarget"`
	CarbonTimeout      float64 `json:"carbonTimeout"`
	CarbonCacheTTL     float64 `json:"carbonCacheTTL"`
	ThrottleMin        float64 `json:"throttleMin"`
}

// DefaultSchedulerConfig returns the documented defaults (mirrors the
// reference implementation's dataclass defaults).
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TargetError:       0.05,
		CreditMin:         -0.5,
		CreditMax:         0.5,
		SmoothingWindow:   300,
		PolicyName:        "credit-greedy",
		ValidFor:          60,
		DiscoveryInterval: 60,
		CarbonAPIURL:      "",
		CarbonTarget:      "national",
		CarbonTimeout:     2.0,
		CarbonCacheTTL:    300.0,
		ThrottleMin:       0.2,
	}
}

// Clone returns an independent copy.
func (c SchedulerConfig) Clone() SchedulerConfig {
	return c
}

// ErrInvalidOverrideValue is returned when an override value cannot be
// coerced to the field's type.
var ErrInvalidOverrideValue = errors.New("invalid scheduler config override value")

// ApplyOverrides merges non-nil fields from a wire-shaped override payload
// (camelCase keys matching the JSON tags above). Unknown keys are ignored.
func (c *SchedulerConfig) ApplyOverrides(overrides map[string]any) error {
	getFloat := func(key string) (float64, bool, error) {
		raw, ok := overrides[key]
		if !ok || raw == nil {
			return 0, false, nil
		}
		switch v := raw.(type) {
		case float64:
			return v, true, nil
		case int:
			return float64(v), true, nil
		default:
			return 0, false, fmt.Errorf("%w: %s", ErrInvalidOverrideValue, key)
		}
	}
	getInt := func(key string) (int, bool, error) {
		v, ok, err := getFloat(key)
		if err != nil || !ok {
			return 0, ok, err
		}
		return int(v), true, nil
	}

	if v, ok, err := getFloat("targetError"); err != nil {
		return err
	} else if ok {
		c.TargetError = v
	}
	if v, ok, err := getFloat("creditMin"); err != nil {
		return err
	} else if ok {
		c.CreditMin = v
	}
	if v, ok, err := getFloat("creditMax"); err != nil {
		return err
	} else if ok {
		c.CreditMax = v
	}
	if v, ok, err := getInt("creditWindow"); err != nil {
		return err
	} else if ok {
		c.SmoothingWindow = v
	}
	if raw, ok := overrides["policy"]; ok {
		if s, ok := raw.(string); ok && s != "" {
			c.PolicyName = s
		} else if ok {
			return fmt.Errorf("%w: policy", ErrInvalidOverrideValue)
		}
	}
	if v, ok, err := getInt("validFor"); err != nil {
		return err
	} else if ok {
		c.ValidFor = v
	}
	if v, ok, err := getInt("discoveryInterval"); err != nil {
		return err
	} else if ok {
		c.DiscoveryInterval = v
	}
	if raw, ok := overrides["carbonApiUrl"]; ok {
		if s, ok := raw.(string); ok {
			c.CarbonAPIURL = s
		}
	}
	if raw, ok := overrides["carbonTarget"]; ok {
		if s, ok := raw.(string); ok && s != "" {
			c.CarbonTarget = s
		}
	}
	if v, ok, err := getFloat("carbonTimeout"); err != nil {
		return err
	} else if ok {
		c.CarbonTimeout = v
	}
	if v, ok, err := getFloat("carbonCacheTTL"); err != nil {
		return err
	} else if ok {
		c.CarbonCacheTTL = v
	}
	if v, ok, err := getFloat("throttleMin"); err != nil {
		return err
	} else if ok {
		c.ThrottleMin = v
	}
	return nil
}

// FlavourRule is the per-flavour entry published in a ScheduleDecision.
type FlavourRule struct {
	FlavourName string `json:"flavourName"`
	Precision   int    `json:"precision"`
	Weight      int    `json:"weight"`
	DeadlineSec int    `json:"deadlineSec,omitempty"`
}

// StrategyMeta mirrors FlavourRule with the extra fields the original
// exposes under "strategies".
type StrategyMeta struct {
	Name            string  `json:"name"`
	Precision       int     `json:"precision"`
	Weight          int     `json:"weight"`
	CarbonIntensity float64 `json:"carbonIntensity"`
	Enabled         bool    `json:"enabled"`
}

// CreditSnapshot is the credits section of a published schedule.
type CreditSnapshot struct {
	Balance   float64  `json:"balance"`
	Velocity  float64  `json:"velocity"`
	Target    float64  `json:"target"`
	Min       float64  `json:"min"`
	Max       float64  `json:"max"`
	Allowance *float64 `json:"allowance,omitempty"`
}

// PolicyRef names the active policy in a published schedule.
type PolicyRef struct {
	Name string `json:"name"`
}

// ScheduleDecision is the schedule published by a SchedulerSession and
// consumed by the router, the consumer, and operators via the HTTP API.
type ScheduleDecision struct {
	FlavourWeights   map[string]int    `json:"flavourWeights"`
	FlavourRules     []FlavourRule     `json:"flavourRules"`
	Strategies       []StrategyMeta    `json:"strategies"`
	ValidUntil       time.Time         `json:"validUntil"`
	Credits          CreditSnapshot    `json:"credits"`
	Policy           PolicyRef         `json:"policy"`
	Diagnostics      PolicyDiagnostics `json:"diagnostics"`
	AvgPrecision     float64           `json:"avgPrecision"`
	Processing       ScalingDirective  `json:"processing"`
	RoutingEvaluator string            `json:"routingEvaluator,omitempty"`
}

const rfc3339Second = "2006-01-02T15:04:05Z"

// MarshalJSON renders ValidUntil with second precision and a literal "Z"
// suffix, matching the reference implementation's wire format exactly.
func (d ScheduleDecision) MarshalJSON() ([]byte, error) {
	type wire struct {
		FlavourWeights   map[string]int    `json:"flavourWeights"`
		FlavourRules     []FlavourRule     `json:"flavourRules"`
		Strategies       []StrategyMeta    `json:"strategies"`
		ValidUntil       string            `json:"validUntil"`
		Credits          CreditSnapshot    `json:"credits"`
		Policy           PolicyRef         `json:"policy"`
		Diagnostics      PolicyDiagnostics `json:"diagnostics"`
		AvgPrecision     float64           `json:"avgPrecision"`
		Processing       ScalingDirective  `json:"processing"`
		RoutingEvaluator string            `json:"routingEvaluator,omitempty"`
	}
	return jsonMarshal(wire{
		FlavourWeights:   d.FlavourWeights,
		FlavourRules:     d.FlavourRules,
		Strategies:       d.Strategies,
		ValidUntil:       d.ValidUntil.UTC().Format(rfc3339Second),
		Credits:          d.Credits,
		Policy:           d.Policy,
		Diagnostics:      d.Diagnostics,
		AvgPrecision:     d.AvgPrecision,
		Processing:       d.Processing,
		RoutingEvaluator: d.RoutingEvaluator,
	})
}
