package router

import (
	"math/rand"
	"sort"

	"github.com/greenroute/carbonsched/internal/scheduleclient"
	"github.com/greenroute/carbonsched/pkg/models"
)

// ForcedFlavourHeader lets a caller pin the flavour a request is routed to,
// bypassing weighted selection entirely when the named flavour is known.
const ForcedFlavourHeader = "x-carbonrouter"

// UrgentHeader marks a request as urgent; the router stamps it through to
// the consumer side but does not change flavour selection itself.
const UrgentHeader = "x-urgent"

// selection is the outcome of picking a flavour for one inbound request.
type selection struct {
	flavour     string
	deadlineSec int
	forced      bool
}

// selectFlavour mirrors the router's weighted-choice logic: prefer the
// schedule's flavour rules, fall back to the bundled default schedule when
// the engine hasn't produced rules yet, and let a recognised forced flavour
// header override the random draw outright.
func selectFlavour(schedule models.ScheduleDecision, forcedHeader string) selection {
	weights, deadlines := flavourWeightsAndDeadlines(schedule)
	if len(weights) == 0 {
		weights, deadlines = flavourWeightsAndDeadlines(scheduleclient.DefaultSchedule())
	}

	candidates := make(map[string]int, len(weights))
	for name, w := range weights {
		if w > 0 {
			candidates[name] = w
		}
	}
	if len(candidates) == 0 {
		for name := range weights {
			candidates[name] = 1
		}
	}
	if len(candidates) == 0 {
		candidates["default"] = 1
	}

	_, known := weights[forcedHeader]
	forced := forcedHeader != "" && known
	flavour := forcedHeader
	if !forced {
		flavour = weightedChoice(candidates)
	}

	deadline, ok := deadlines[flavour]
	if !ok {
		deadline = 60
	}
	return selection{flavour: flavour, deadlineSec: deadline, forced: forced}
}

func flavourWeightsAndDeadlines(schedule models.ScheduleDecision) (map[string]int, map[string]int) {
	weights := make(map[string]int, len(schedule.FlavourRules))
	deadlines := make(map[string]int, len(schedule.FlavourRules))
	for _, rule := range schedule.FlavourRules {
		if rule.FlavourName == "" {
			continue
		}
		weights[rule.FlavourName] = rule.Weight
		deadline := rule.DeadlineSec
		if deadline <= 0 {
			deadline = 60
		}
		deadlines[rule.FlavourName] = deadline
	}
	return weights, deadlines
}

// weightedChoice draws a single key from weights with probability
// proportional to its value. No library in the dependency pack offers
// weighted sampling, so this uses math/rand directly.
func weightedChoice(weights map[string]int) string {
	total := 0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		for name := range weights {
			return name
		}
		return ""
	}

	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	// Sort for deterministic iteration order so the same seed always draws
	// the same flavour; map iteration order is randomised in Go.
	sort.Strings(names)

	target := rand.Intn(total)
	cumulative := 0
	for _, name := range names {
		cumulative += weights[name]
		if target < cumulative {
			return name
		}
	}
	return names[len(names)-1]
}
