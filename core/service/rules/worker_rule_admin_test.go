package rules

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"crm_worker/core/domain"
	"crm_worker/pkg/apperr"
)

func newAdmin(store *memStore) *RuleAdmin {
	return NewRuleAdmin(fakeRules{store}, fakeMappings{store}, nil)
}

func TestRuleAdmin_SetEnabledKeepsMalformedDefinition(t *testing.T) {
	store := newMemStore()
	admin := newAdmin(store)
	ctx := context.Background()

	stored := store.addRule(&domain.Rule{
		Name:       "half decoded",
		Enabled:    true,
		Conditions: []domain.Condition{cond(domain.ConditionSubject, domain.OperatorContains, "quote")},
		ParseError: "actions: expected array",
	})

	if _, err := admin.SetEnabled(ctx, stored.ID, false); err != nil {
		t.Fatalf("disable malformed rule: %v", err)
	}
	if stored.Enabled {
		t.Error("rule still enabled")
	}

	_, err := admin.SetEnabled(ctx, stored.ID, true)
	var appErr *apperr.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperr.CodeMalformedRule || appErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("enable malformed rule: err = %v", err)
	}
	if stored.Enabled {
		t.Error("malformed rule was enabled")
	}

	if store.ruleUpdates != 0 {
		t.Errorf("full updates = %d, want 0", store.ruleUpdates)
	}
	if len(stored.Conditions) != 1 || stored.Conditions[0].Value != "quote" {
		t.Errorf("conditions = %+v", stored.Conditions)
	}
}

func TestRuleAdmin_SetEnabledUnknownRule(t *testing.T) {
	admin := newAdmin(newMemStore())
	_, err := admin.SetEnabled(context.Background(), 42, true)
	var appErr *apperr.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperr.CodeNotFound {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestRuleAdmin_DuplicateNameIsConflict(t *testing.T) {
	store := newMemStore()
	admin := newAdmin(store)
	ctx := context.Background()

	newRule := func() *domain.Rule {
		return rule("web enquiry", 1,
			[]domain.Condition{cond(domain.ConditionSubject, domain.OperatorContains, "enquiry")},
			act(domain.ActionCreateContact, nil),
		)
	}
	if err := admin.CreateRule(ctx, newRule()); err != nil {
		t.Fatalf("first create: %v", err)
	}

	err := admin.CreateRule(ctx, newRule())
	var appErr *apperr.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperr.CodeConflict || appErr.Status != http.StatusConflict {
		t.Fatalf("second create: err = %v, want CONFLICT", err)
	}
}

func TestRuleAdmin_SeedDoesNotOverwriteRules(t *testing.T) {
	store := newMemStore()
	admin := newAdmin(store)
	ctx := context.Background()

	seeded := func() []*domain.Rule {
		return []*domain.Rule{rule("web enquiry", 10,
			[]domain.Condition{cond(domain.ConditionSubject, domain.OperatorContains, "enquiry")},
			act(domain.ActionCreateContact, nil),
		)}
	}
	mappings := []*domain.CategoryMapping{{CategoryName: "Source - Webform", CRMFieldType: "source", CRMFieldValue: "webform"}}

	if err := admin.Seed(ctx, mappings, seeded()); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if len(store.rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(store.rules))
	}

	existing := store.rules[0]
	existing.Priority = 99
	if _, err := admin.SetEnabled(ctx, existing.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}

	if err := admin.Seed(ctx, mappings, seeded()); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if len(store.rules) != 1 {
		t.Fatalf("rules after reseed = %d, want 1", len(store.rules))
	}
	if got := store.rules[0]; got.Enabled || got.Priority != 99 {
		t.Errorf("reseed reverted admin changes: enabled=%v priority=%d", got.Enabled, got.Priority)
	}
	if len(store.mappings) != 1 {
		t.Errorf("mappings = %d, want 1", len(store.mappings))
	}
}
