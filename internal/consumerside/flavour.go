// Package consumerside implements the per-flavour AMQP consumers that pull
// buffered requests off the router's queues, forward them to the target
// service, and reply over AMQP.
package consumerside

import (
	"math/rand"
	"sort"
	"strings"

	"github.com/greenroute/carbonsched/pkg/models"
)

// RoutingEvaluatorRouter is the default: the router already picked the
// effective flavour, so the consumer serves whatever queue the message
// arrived on.
const RoutingEvaluatorRouter = "router"

// RoutingEvaluatorConsumer defers the flavour choice to the consumer,
// letting it re-draw from the schedule's strategy weights independently of
// which queue the router happened to publish to.
const RoutingEvaluatorConsumer = "consumer"

// SelectTargetFlavour resolves the flavour a message should actually be
// forwarded under. A forced flavour (set via the router's x-carbonrouter
// header) always wins. Otherwise, when the schedule's routingEvaluator is
// unset or anything other than "consumer" (Open Question #1: absent/unknown
// evaluators are treated as "router"), the queue the message was consumed
// from is authoritative. Only an explicit "consumer" evaluator re-draws a
// flavour from the schedule's strategy weights.
func SelectTargetFlavour(schedule models.ScheduleDecision, queueFlavour string, forced bool) string {
	if forced {
		return queueFlavour
	}

	evaluator := strings.ToLower(schedule.RoutingEvaluator)
	if evaluator != RoutingEvaluatorConsumer {
		return queueFlavour
	}

	weights := make(map[string]int, len(schedule.Strategies))
	for _, s := range schedule.Strategies {
		weights[models.PrecisionKey(float64(s.Precision)/100.0)] = s.Weight
	}

	positive := make(map[string]int, len(weights))
	for name, w := range weights {
		if w > 0 {
			positive[name] = w
		}
	}
	if len(positive) == 0 {
		return queueFlavour
	}

	selected := weightedChoice(positive)
	if selected == "" {
		return queueFlavour
	}
	return selected
}

// PrecisionHeaderValue resolves the value the consumer stamps into the
// outbound x-carbonrouter header it forwards to the target service (Open
// Question #3): "precision-<n>" flavours emit the bare integer, anything
// else is forwarded verbatim as the flavour's own name.
func PrecisionHeaderValue(flavour string) string {
	const prefix = "precision-"
	if strings.HasPrefix(flavour, prefix) {
		return flavour[len(prefix):]
	}
	return flavour
}

func weightedChoice(weights map[string]int) string {
	total := 0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return ""
	}

	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
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

// QueueNameFlavour extracts the flavour suffix from a durable queue name of
// the form "<namespace>.<service>.queue.<flavour>".
func QueueNameFlavour(queueName string) string {
	const marker = ".queue."
	idx := strings.LastIndex(queueName, marker)
	if idx < 0 {
		return queueName
	}
	return queueName[idx+len(marker):]
}
