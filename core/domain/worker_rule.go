package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// =============================================================================
// Condition
// =============================================================================

// ConditionType selects which message field a condition inspects.
type ConditionType string

const (
	ConditionSubject    ConditionType = "subject"
	ConditionSender     ConditionType = "sender"
	ConditionRecipient  ConditionType = "recipient"
	ConditionBody       ConditionType = "body"
	ConditionCategory   ConditionType = "category"
	ConditionIsFlagged  ConditionType = "is_flagged"
	ConditionFolder     ConditionType = "folder"
	ConditionDirection  ConditionType = "direction"
	ConditionHasContact ConditionType = "has_contact"
)

var conditionAliases = map[string]ConditionType{
	"subject":      ConditionSubject,
	"sender":       ConditionSender,
	"from":         ConditionSender,
	"from_email":   ConditionSender,
	"sender_email": ConditionSender,
	"recipient":    ConditionRecipient,
	"to":           ConditionRecipient,
	"to_email":     ConditionRecipient,
	"body":         ConditionBody,
	"category":     ConditionCategory,
	"categories":   ConditionCategory,
	"is_flagged":   ConditionIsFlagged,
	"flagged":      ConditionIsFlagged,
	"folder":       ConditionFolder,
	"folder_id":    ConditionFolder,
	"direction":    ConditionDirection,
	"has_contact":  ConditionHasContact,
}

// operator suffixes accepted on legacy condition types ("subject_contains")
var operatorSuffixes = []string{"_contains", "_equals", "_starts_with", "_ends_with", "_matches"}

// NormalizeConditionType maps stored condition type names onto the canonical set.
// Unknown names are returned as-is and report false.
func NormalizeConditionType(raw string) (ConditionType, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if t, ok := conditionAliases[name]; ok {
		return t, true
	}
	for _, suffix := range operatorSuffixes {
		if strings.HasSuffix(name, suffix) {
			if t, ok := conditionAliases[strings.TrimSuffix(name, suffix)]; ok {
				return t, true
			}
		}
	}
	return ConditionType(name), false
}

// Operator compares an extracted field value with the condition value.
type Operator string

const (
	OperatorContains   Operator = "contains"
	OperatorEquals     Operator = "equals"
	OperatorStartsWith Operator = "starts_with"
	OperatorEndsWith   Operator = "ends_with"
	OperatorMatches    Operator = "matches"
)

// IsValid reports whether the operator is supported.
func (o Operator) IsValid() bool {
	switch o {
	case OperatorContains, OperatorEquals, OperatorStartsWith, OperatorEndsWith, OperatorMatches:
		return true
	}
	return false
}

// Condition is a single predicate over one message field.
type Condition struct {
	Type     ConditionType `json:"type" yaml:"type" validate:"required"`
	Operator Operator      `json:"operator" yaml:"operator"`
	Value    string        `json:"value" yaml:"value"`
}

// UnmarshalJSON accepts non-string values ("value": true) by stringifying them.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     string `json:"type"`
		Operator string `json:"operator"`
		Value    any    `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Type = ConditionType(raw.Type)
	c.Operator = Operator(strings.ToLower(strings.TrimSpace(raw.Operator)))
	c.Value = stringify(raw.Value)
	return nil
}

// =============================================================================
// Action
// =============================================================================

// ActionType enumerates the side effects a matching rule can perform.
type ActionType string

const (
	ActionAssignCategory           ActionType = "assign_category"
	ActionCreateContact            ActionType = "create_contact"
	ActionCreateOpportunity        ActionType = "create_opportunity"
	ActionCreateLead               ActionType = "create_lead"
	ActionCreateActivity           ActionType = "create_activity"
	ActionCreateFollowUp           ActionType = "create_followup"
	ActionUpdateOpportunityStage   ActionType = "update_opportunity_stage"
	ActionLinkToOpportunity        ActionType = "link_to_opportunity"
	ActionMarkOpportunityWon       ActionType = "mark_opportunity_won"
	ActionCreateCommissionSnapshot ActionType = "create_commission_snapshot"
)

// ActionTypes lists every supported action type.
var ActionTypes = []ActionType{
	ActionAssignCategory,
	ActionCreateContact,
	ActionCreateOpportunity,
	ActionCreateLead,
	ActionCreateActivity,
	ActionCreateFollowUp,
	ActionUpdateOpportunityStage,
	ActionLinkToOpportunity,
	ActionMarkOpportunityWon,
	ActionCreateCommissionSnapshot,
}

// IsValid reports whether the action type is supported.
func (t ActionType) IsValid() bool {
	for _, known := range ActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Action is one side-effecting step of a rule.
type Action struct {
	Type   ActionType     `json:"type" yaml:"type" validate:"required"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// String returns a param as a trimmed string, or "" when absent.
func (a Action) String(key string) string {
	if a.Params == nil {
		return ""
	}
	return strings.TrimSpace(stringify(a.Params[key]))
}

// Float returns a numeric param.
func (a Action) Float(key string) (float64, bool) {
	if a.Params == nil {
		return 0, false
	}
	switch v := a.Params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// Int64 returns an integer id param.
func (a Action) Int64(key string) (int64, bool) {
	f, ok := a.Float(key)
	if !ok || f <= 0 {
		return 0, false
	}
	return int64(f), true
}

// Time parses an RFC3339 or date-only param.
func (a Action) Time(key string) (time.Time, bool) {
	s := a.String(key)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// =============================================================================
// Rule
// =============================================================================

// Rule is a named, prioritized set of conditions (AND) and actions.
type Rule struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Priority    int         `json:"priority"`
	Enabled     bool        `json:"enabled"`
	Conditions  []Condition `json:"conditions"`
	Actions     []Action    `json:"actions"`

	// ParseError is set when stored conditions/actions could not be decoded.
	ParseError string `json:"parse_error,omitempty"`

	// Stats
	HitCount  int        `json:"hit_count"`
	LastHitAt *time.Time `json:"last_hit_at,omitempty"`

	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Malformed reports whether the rule cannot be evaluated at all.
func (r *Rule) Malformed() bool {
	return r.ParseError != ""
}

// RuleOrderLess orders rules by priority DESC, id ASC.
func RuleOrderLess(a, b *Rule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID < b.ID
}

// ParseConditions decodes a stored conditions blob. The blob may be a JSON
// array or a JSON string that itself holds an array.
func ParseConditions(raw []byte) ([]Condition, error) {
	var conds []Condition
	if err := decodeLenient(raw, &conds); err != nil {
		return nil, fmt.Errorf("conditions: %w", err)
	}
	return conds, nil
}

// ParseActions decodes a stored actions blob, see ParseConditions.
func ParseActions(raw []byte) ([]Action, error) {
	var actions []Action
	if err := decodeLenient(raw, &actions); err != nil {
		return nil, fmt.Errorf("actions: %w", err)
	}
	return actions, nil
}

func decodeLenient(raw []byte, dest any) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
			return err
		}
		return decodeLenient([]byte(inner), dest)
	}
	if !strings.HasPrefix(trimmed, "[") {
		return fmt.Errorf("expected array, got %.20q", trimmed)
	}
	return json.Unmarshal([]byte(trimmed), dest)
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
