package persistence

import (
	"errors"
	"testing"

	"crm_worker/core/domain"
)

func TestRuleRow_ToDomain(t *testing.T) {
	tests := []struct {
		name       string
		conditions string
		actions    string
		malformed  bool
		conds      int
	}{
		{"arrays", `[{"type":"subject","operator":"contains","value":"x"}]`, `[{"type":"create_contact"}]`, false, 1},
		{"json encoded strings", `"[{\"type\":\"subject\",\"operator\":\"contains\",\"value\":\"x\"}]"`, `"[{\"type\":\"create_contact\"}]"`, false, 1},
		{"non-string value", `[{"type":"has_contact","operator":"equals","value":true}]`, `[{"type":"create_contact"}]`, false, 1},
		{"object instead of array", `{"type":"subject"}`, `[]`, true, 0},
		{"garbage actions", `[]`, `not json`, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := ruleRow{ID: 7, Name: "r", Enabled: true, Conditions: []byte(tt.conditions), Actions: []byte(tt.actions)}
			rule := row.toDomain()
			if rule.Malformed() != tt.malformed {
				t.Fatalf("malformed = %v (%s), want %v", rule.Malformed(), rule.ParseError, tt.malformed)
			}
			if len(rule.Conditions) != tt.conds {
				t.Errorf("conditions = %d, want %d", len(rule.Conditions), tt.conds)
			}
		})
	}
}

func TestRuleRow_BooleanValueStringified(t *testing.T) {
	row := ruleRow{
		Conditions: []byte(`[{"type":"has_contact","operator":"equals","value":true}]`),
		Actions:    []byte(`[]`),
	}
	rule := row.toDomain()
	if rule.Conditions[0].Value != "true" {
		t.Errorf("value = %q, want \"true\"", rule.Conditions[0].Value)
	}
}

func TestEncodeRuleBody_RefusesUndecodedRule(t *testing.T) {
	row := ruleRow{
		ID:         3,
		Name:       "half decoded",
		Conditions: []byte(`[{"type":"subject","operator":"contains","value":"quote"}]`),
		Actions:    []byte(`{"type":"create_contact"}`),
	}
	rule := row.toDomain()
	if !rule.Malformed() {
		t.Fatal("expected malformed rule")
	}
	rule.Enabled = true

	if _, _, err := encodeRuleBody(rule); !errors.Is(err, errUndecodedRule) {
		t.Fatalf("err = %v, want errUndecodedRule", err)
	}

	rule.ParseError = ""
	rule.Actions = []domain.Action{{Type: domain.ActionCreateContact}}
	conds, actions, err := encodeRuleBody(rule)
	if err != nil {
		t.Fatalf("repaired rule: %v", err)
	}
	if conds == "[]" || actions == "[]" {
		t.Errorf("encoded conditions=%s actions=%s", conds, actions)
	}
}
