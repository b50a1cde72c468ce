package rules

import (
	"testing"

	"crm_worker/core/domain"
)

func TestEvaluateRule_ANDSemantics(t *testing.T) {
	msg := &domain.Message{Subject: "Quote request", FromEmail: "buyer@acme.com"}
	a := cond(domain.ConditionSubject, domain.OperatorContains, "quote")
	b := cond(domain.ConditionSender, domain.OperatorEndsWith, "@acme.com")
	notA := cond(domain.ConditionSubject, domain.OperatorContains, "invoice")
	notB := cond(domain.ConditionSender, domain.OperatorEndsWith, "@other.com")

	tests := []struct {
		name  string
		conds []domain.Condition
		want  bool
	}{
		{"A and B", []domain.Condition{a, b}, true},
		{"not A and B", []domain.Condition{notA, b}, false},
		{"A and not B", []domain.Condition{a, notB}, false},
		{"neither", []domain.Condition{notA, notB}, false},
		{"empty conditions never match", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rule("r", 1, tt.conds, act(domain.ActionCreateContact, nil))
			if got := EvaluateRule(r, msg, nil); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateRule_DisabledNeverMatches(t *testing.T) {
	msg := &domain.Message{Subject: "Quote request"}
	r := rule("r", 1, []domain.Condition{cond(domain.ConditionSubject, domain.OperatorContains, "quote")})

	if !EvaluateRule(r, msg, nil) {
		t.Fatal("enabled rule should match")
	}
	r.Enabled = false
	if EvaluateRule(r, msg, nil) {
		t.Fatal("disabled rule must not match")
	}
}

func TestEvaluateRule_MalformedSkipped(t *testing.T) {
	msg := &domain.Message{Subject: "Quote request"}
	r := rule("r", 1, []domain.Condition{cond(domain.ConditionSubject, domain.OperatorContains, "quote")})
	r.ParseError = "conditions: expected array"
	if EvaluateRule(r, msg, nil) {
		t.Fatal("malformed rule must not match")
	}
}

func TestSortRules_PriorityThenID(t *testing.T) {
	rules := []*domain.Rule{
		{ID: 4, Priority: 1},
		{ID: 3, Priority: 10},
		{ID: 1, Priority: 1},
		{ID: 2, Priority: 10},
	}
	sorted := SortRules(rules)
	want := []int64{2, 3, 1, 4}
	for i, r := range sorted {
		if r.ID != want[i] {
			t.Fatalf("position %d: got rule %d, want %d", i, r.ID, want[i])
		}
	}
	if rules[0].ID != 4 {
		t.Error("SortRules must not reorder its input")
	}
}

func TestSelectMatchingRules(t *testing.T) {
	msg := &domain.Message{Subject: "Booking confirmed", FromEmail: "x@y.com"}
	low := rule("low", 1, []domain.Condition{cond(domain.ConditionSubject, domain.OperatorContains, "booking")})
	low.ID = 1
	high := rule("high", 9, []domain.Condition{cond(domain.ConditionSender, domain.OperatorContains, "@y.com")})
	high.ID = 2
	miss := rule("miss", 5, []domain.Condition{cond(domain.ConditionSubject, domain.OperatorContains, "refund")})
	miss.ID = 3

	matched := SelectMatchingRules([]*domain.Rule{low, miss, high}, msg, nil)
	if len(matched) != 2 || matched[0].ID != 2 || matched[1].ID != 1 {
		t.Fatalf("unexpected matches: %+v", matched)
	}
}
