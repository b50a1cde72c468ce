package rules

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"crm_worker/core/domain"
	"crm_worker/pkg/logger"
)

// ExtractValue returns the message field a condition type inspects. It never
// fails: unknown types yield "".
func ExtractValue(msg *domain.Message, obs *ObservedState, t domain.ConditionType) string {
	ct, _ := domain.NormalizeConditionType(string(t))
	switch ct {
	case domain.ConditionSubject:
		return msg.Subject
	case domain.ConditionSender:
		return msg.FromEmail
	case domain.ConditionRecipient:
		return msg.ToEmail
	case domain.ConditionBody:
		return msg.Body
	case domain.ConditionCategory:
		return strings.Join(obs.Categories(msg), ", ")
	case domain.ConditionIsFlagged:
		return strconv.FormatBool(msg.IsFlagged)
	case domain.ConditionFolder:
		return msg.FolderID
	case domain.ConditionDirection:
		if msg.Direction == "" {
			return domain.DirectionInbound
		}
		return msg.Direction
	case domain.ConditionHasContact:
		return strconv.FormatBool(obs.ContactID(msg) != nil)
	default:
		return ""
	}
}

// EvaluateCondition tests one condition against the message as observed so far.
func EvaluateCondition(cond domain.Condition, msg *domain.Message, obs *ObservedState) bool {
	ct, known := domain.NormalizeConditionType(string(cond.Type))
	if !known {
		logger.Warn("[rules.EvaluateCondition] unknown condition type %q", cond.Type)
		return false
	}

	value := ExtractValue(msg, obs, ct)
	if value == "" && ct != domain.ConditionHasContact && ct != domain.ConditionIsFlagged {
		return false
	}

	op := cond.Operator
	if op == "" {
		op = domain.OperatorContains
	}
	if !op.IsValid() {
		logger.Warn("[rules.EvaluateCondition] unknown operator %q", cond.Operator)
		return false
	}

	// category conditions test each category on its own
	if ct == domain.ConditionCategory {
		for _, cat := range obs.Categories(msg) {
			if compare(op, cat, cond.Value) {
				return true
			}
		}
		return false
	}
	return compare(op, value, cond.Value)
}

func compare(op domain.Operator, actual, expected string) bool {
	if op == domain.OperatorMatches {
		re := compilePattern(expected)
		return re != nil && re.MatchString(actual)
	}

	a := strings.ToLower(actual)
	e := strings.ToLower(expected)
	switch op {
	case domain.OperatorContains:
		return strings.Contains(a, e)
	case domain.OperatorEquals:
		return a == e
	case domain.OperatorStartsWith:
		return strings.HasPrefix(a, e)
	case domain.OperatorEndsWith:
		return strings.HasSuffix(a, e)
	}
	return false
}

// compiled patterns, nil for patterns that failed to compile
var patternCache sync.Map

func compilePattern(pattern string) *regexp.Regexp {
	if v, ok := patternCache.Load(pattern); ok {
		return v.(*regexp.Regexp)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		logger.Warn("[rules.compilePattern] invalid pattern %q: %v", pattern, err)
		re = nil
	}
	patternCache.Store(pattern, re)
	return re
}

// ValidatePattern reports whether a matches pattern compiles.
func ValidatePattern(pattern string) error {
	_, err := regexp.Compile("(?i)" + pattern)
	return err
}
