package rules

import (
	"sort"

	"crm_worker/core/domain"
	"crm_worker/pkg/logger"
)

// EvaluateRule reports whether every condition of an enabled rule holds.
// Malformed rules and rules without conditions never match.
func EvaluateRule(rule *domain.Rule, msg *domain.Message, obs *ObservedState) bool {
	if rule == nil || !rule.Enabled {
		return false
	}
	if rule.Malformed() {
		logger.Warn("[rules.EvaluateRule] skipping malformed rule %d (%s): %s", rule.ID, rule.Name, rule.ParseError)
		return false
	}
	if len(rule.Conditions) == 0 {
		return false
	}
	for _, cond := range rule.Conditions {
		if !EvaluateCondition(cond, msg, obs) {
			return false
		}
	}
	return true
}

// SelectMatchingRules returns the rules matching the message, in evaluation
// order. It runs no actions, so observed state does not change between rules.
func SelectMatchingRules(rules []*domain.Rule, msg *domain.Message, obs *ObservedState) []*domain.Rule {
	ordered := SortRules(rules)
	var matched []*domain.Rule
	for _, rule := range ordered {
		if EvaluateRule(rule, msg, obs) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// SortRules returns a copy ordered by priority DESC, id ASC.
func SortRules(rules []*domain.Rule) []*domain.Rule {
	out := append([]*domain.Rule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool {
		return domain.RuleOrderLess(out[i], out[j])
	})
	return out
}
