// Package forecast fetches carbon intensity schedules and estimates demand,
// combining both into the ForecastSnapshot the scheduler policies consume.
package forecast

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/greenroute/carbonsched/pkg/models"
)

const defaultCarbonBaseURL = "https://api.carbonintensity.org.uk"

// CarbonForecastProvider fetches current and near-term carbon intensity
// information from a UK Carbon Intensity API-shaped endpoint, caching the
// parsed schedule for CacheTTL.
type CarbonForecastProvider struct {
	BaseURL    string
	Timeout    time.Duration
	CacheTTL   time.Duration
	TargetType string // "national", "region", "postcode"
	TargetValue string

	configuredBase string
	client         *http.Client
	now            func() time.Time

	cacheMu    sync.Mutex
	cachedAt   time.Time
	cachedData []models.ForecastPoint
}

// NewCarbonForecastProvider builds a provider. An empty baseURL falls back
// to the public Carbon Intensity API; an empty target defaults to national.
func NewCarbonForecastProvider(baseURL string, timeout, cacheTTL time.Duration, target string) *CarbonForecastProvider {
	configured := baseURL
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultCarbonBaseURL
	}
	targetType, targetValue := parseTarget(target)
	return &CarbonForecastProvider{
		BaseURL:        base,
		Timeout:        timeout,
		CacheTTL:       cacheTTL,
		TargetType:     targetType,
		TargetValue:    targetValue,
		configuredBase: configured,
		client:         &http.Client{Timeout: timeout},
		now:            time.Now,
	}
}

func parseTarget(raw string) (string, string) {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = "national"
	}
	lowered := strings.ToLower(value)
	switch {
	case strings.HasPrefix(lowered, "region:"):
		return "region", strings.TrimSpace(value[len("region:"):])
	case strings.HasPrefix(lowered, "postcode:"):
		return "postcode", strings.ToUpper(strings.TrimSpace(value[len("postcode:"):]))
	default:
		return "national", ""
	}
}

// Fetch returns a ForecastSnapshot built from the current cached or
// freshly-loaded schedule, falling back to the legacy /forecast endpoint
// shape, and finally to an empty snapshot when nothing is reachable.
func (p *CarbonForecastProvider) Fetch() models.ForecastSnapshot {
	if p.BaseURL == "" {
		return models.ForecastSnapshot{}
	}

	schedule := p.loadSchedule()
	if len(schedule) > 0 {
		snap := models.ForecastSnapshot{
			IntensityNow: schedule[0].Forecast,
			IndexNow:     schedule[0].Index,
			Schedule:     schedule,
			GeneratedAt:  p.now(),
		}
		if len(schedule) > 1 {
			snap.IntensityNext = schedule[1].Forecast
			snap.IndexNext = schedule[1].Index
		} else {
			snap.IntensityNext = schedule[0].Forecast
			snap.IndexNext = schedule[0].Index
		}
		return snap
	}

	if p.configuredBase != "" {
		if legacy, ok := p.fetchLegacy(); ok {
			return legacy
		}
	}
	return models.ForecastSnapshot{}
}

func (p *CarbonForecastProvider) loadSchedule() []models.ForecastPoint {
	p.cacheMu.Lock()
	if p.cachedData != nil && p.now().Sub(p.cachedAt) < p.CacheTTL {
		cached := p.cachedData
		p.cacheMu.Unlock()
		return cached
	}
	p.cacheMu.Unlock()

	start := p.now().UTC().Truncate(time.Minute)
	reqURL := p.BaseURL + p.buildSchedulePath(start)

	resp, err := p.client.Get(reqURL)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil
	}

	var payload struct {
		Data []scheduleEntry `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil
	}

	schedule := p.normaliseSchedule(payload.Data)
	if len(schedule) == 0 {
		return nil
	}

	p.cacheMu.Lock()
	p.cachedAt = p.now()
	p.cachedData = schedule
	p.cacheMu.Unlock()
	return schedule
}

type scheduleEntry struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Intensity struct {
		Forecast *float64 `json:"forecast"`
		Actual   *float64 `json:"actual"`
		Index    *string  `json:"index"`
	} `json:"intensity"`
}

func (p *CarbonForecastProvider) normaliseSchedule(entries []scheduleEntry) []models.ForecastPoint {
	now := p.now().UTC()
	windowStart := now.Add(-30 * time.Minute)

	horizon := make([]models.ForecastPoint, 0, len(entries))
	for _, e := range entries {
		start, ok1 := parseAPITime(e.From)
		end, ok2 := parseAPITime(e.To)
		if !ok1 || !ok2 {
			continue
		}
		if end.Before(windowStart) {
			continue
		}
		forecast := e.Intensity.Forecast
		if forecast == nil {
			forecast = e.Intensity.Actual
		}
		horizon = append(horizon, models.ForecastPoint{
			Start:    start,
			End:      end,
			Forecast: forecast,
			Index:    e.Intensity.Index,
		})
	}

	sort.SliceStable(horizon, func(i, j int) bool { return horizon[i].Start.Before(horizon[j].Start) })
	return horizon
}

func parseAPITime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	candidate := value
	if strings.HasSuffix(candidate, "Z") {
		candidate = strings.TrimSuffix(candidate, "Z") + "+00:00"
	}
	t, err := time.Parse("2006-01-02T15:04-07:00", candidate)
	if err != nil {
		t, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t.UTC(), true
}

func (p *CarbonForecastProvider) buildSchedulePath(start time.Time) string {
	periodStart := start.Format("2006-01-02T15:04Z")
	switch {
	case p.TargetType == "region" && p.TargetValue != "":
		return "/regional/intensity/" + periodStart + "/fw48h/regionid/" + p.TargetValue
	case p.TargetType == "postcode" && p.TargetValue != "":
		return "/regional/intensity/" + periodStart + "/fw48h/postcode/" + url.PathEscape(p.TargetValue)
	default:
		return "/intensity/" + periodStart + "/fw48h"
	}
}

func (p *CarbonForecastProvider) fetchLegacy() (models.ForecastSnapshot, bool) {
	base := p.configuredBase
	if base == "" {
		base = p.BaseURL
	}
	if !strings.HasSuffix(base, "/forecast") {
		base = strings.TrimRight(base, "/") + "/forecast"
	}

	resp, err := p.client.Get(base)
	if err != nil {
		return models.ForecastSnapshot{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return models.ForecastSnapshot{}, false
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.ForecastSnapshot{}, false
	}

	nowVal := firstFloat(payload, "current", "intensity_now")
	nextVal := firstFloat(payload, "next", "intensity_next")
	if nowVal == nil && nextVal == nil {
		return models.ForecastSnapshot{}, false
	}
	return models.ForecastSnapshot{IntensityNow: nowVal, IntensityNext: nextVal}, true
}

func firstFloat(payload map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		if raw, ok := payload[k]; ok {
			if f, ok := toFloat(raw); ok {
				return &f
			}
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
