package monitor

import (
	"fmt"
	"sort"

	"github.com/dreschagin/deploy-sentinel/pkg/config"
)

// GateEvaluator applies the configured threshold rules. Evaluation is pure:
// the same history, snapshot and baseline always yield the same violations.
type GateEvaluator struct {
	rules []ThresholdRule
}

func NewGateEvaluator(rules []ThresholdRule) *GateEvaluator {
	return &GateEvaluator{rules: rules}
}

// RulesFromConfig converts the trigger section into an ordered rule list.
// The health-check rule always evaluates first; metric rules follow in name
// order so violation ordering is deterministic.
func RulesFromConfig(triggers map[string]config.TriggerConfig) []ThresholdRule {
	rules := make([]ThresholdRule, 0, len(triggers))

	if trigger, ok := triggers[config.TriggerHealthCheckFailures]; ok {
		consecutive := 0
		if threshold := trigger.ThresholdValue(); threshold != nil {
			consecutive = int(*threshold)
		}
		rules = append(rules, ThresholdRule{
			Trigger:             config.TriggerHealthCheckFailures,
			Enabled:             trigger.Enabled,
			ConsecutiveFailures: consecutive,
			Description:         trigger.Description,
		})
	}

	names := make([]string, 0, len(triggers))
	for name := range triggers {
		if name == config.TriggerHealthCheckFailures {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		trigger := triggers[name]
		rules = append(rules, ThresholdRule{
			Trigger:            name,
			Enabled:            trigger.Enabled,
			AbsoluteThreshold:  trigger.ThresholdValue(),
			BaselineMultiplier: trigger.BaselineMultiplier,
			Description:        trigger.Description,
		})
	}

	return rules
}

// Evaluate returns the violations for the current iteration in rule order.
// An empty result means the gates pass.
func (e *GateEvaluator) Evaluate(history []HealthCheckResult, snapshot MetricSnapshot, baseline *Baseline) []Violation {
	violations := make([]Violation, 0)

	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}

		if rule.Trigger == config.TriggerHealthCheckFailures {
			if v, ok := evaluateHealthRule(rule, history); ok {
				violations = append(violations, v)
			}
			continue
		}

		if v, ok := evaluateMetricRule(rule, snapshot, baseline); ok {
			violations = append(violations, v)
		}
	}

	return violations
}

// evaluateHealthRule fires when the most recent N checks exist and are all
// FAIL.
func evaluateHealthRule(rule ThresholdRule, history []HealthCheckResult) (Violation, bool) {
	n := rule.ConsecutiveFailures
	if n <= 0 || len(history) < n {
		return Violation{}, false
	}

	for _, result := range history[len(history)-n:] {
		if result.Status != HealthFail {
			return Violation{}, false
		}
	}

	description := rule.Description
	if description == "" {
		description = fmt.Sprintf("%d consecutive health check failures", n)
	}

	return Violation{
		Trigger:        rule.Trigger,
		Description:    description,
		CurrentValue:   float64(n),
		ThresholdValue: float64(n),
	}, true
}

// evaluateMetricRule applies OR semantics: exceeding either the absolute
// threshold or baseline*multiplier is sufficient. A nil current value means
// "no data", which never fires the rule.
func evaluateMetricRule(rule ThresholdRule, snapshot MetricSnapshot, baseline *Baseline) (Violation, bool) {
	value := snapshot[rule.Trigger]
	if value == nil {
		return Violation{}, false
	}

	if rule.AbsoluteThreshold != nil && *value > *rule.AbsoluteThreshold {
		return Violation{
			Trigger:        rule.Trigger,
			Description:    rule.Description,
			CurrentValue:   *value,
			ThresholdValue: *rule.AbsoluteThreshold,
		}, true
	}

	if rule.BaselineMultiplier != nil && baseline != nil {
		if base, ok := baseline.Values[rule.Trigger]; ok {
			limit := base * *rule.BaselineMultiplier
			if *value > limit {
				return Violation{
					Trigger:        rule.Trigger,
					Description:    rule.Description,
					CurrentValue:   *value,
					ThresholdValue: limit,
				}, true
			}
		}
	}

	return Violation{}, false
}
