package policy

import "github.com/greenroute/carbonsched/internal/ledger"

// ForecastAwareGlobalNoThrottle is identical to ForecastAwareGlobal but
// registered under a distinct name so operators can pair it with a
// throttle_min=1.0 configuration (disabling consumer-side throttling) for
// A/B comparison against the throttled variant.
type ForecastAwareGlobalNoThrottle struct {
	*ForecastAwareGlobal
}

func NewForecastAwareGlobalNoThrottle(l *ledger.Ledger) *ForecastAwareGlobalNoThrottle {
	return &ForecastAwareGlobalNoThrottle{ForecastAwareGlobal: NewForecastAwareGlobal(l)}
}

func (p *ForecastAwareGlobalNoThrottle) Name() string {
	return "forecast-aware-global-no-throttle"
}
