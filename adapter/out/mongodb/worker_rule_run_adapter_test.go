package mongodb

import (
	"testing"
	"time"

	"crm_worker/core/domain"
)

func TestToDocument(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	res := &domain.EmailResult{
		Success:      true,
		EmailID:      42,
		MatchedRules: []int64{3},
		CategoryMapping: &domain.CategoryMappingResult{
			Source:       "Website",
			MappedFields: map[string]string{"source": "Website"},
		},
		RuleResults: []domain.RuleResult{
			{RuleID: 3, RuleName: "webform", Action: domain.ActionCreateContact, Result: domain.ActionResult{Success: true, Created: true}},
			{RuleID: 3, RuleName: "webform", Action: domain.ActionAssignCategory, Result: domain.ActionResult{Code: "NOT_IMPLEMENTED", Error: "no tagger"}},
		},
		Duration: 1500 * time.Millisecond,
	}

	doc := toDocument(res, now, 24*time.Hour)

	if doc.EmailID != 42 || !doc.Success {
		t.Errorf("header = %+v", doc)
	}
	if doc.Source != "Website" {
		t.Errorf("source = %q", doc.Source)
	}
	if len(doc.Results) != 2 || doc.Results[1].Code != "NOT_IMPLEMENTED" {
		t.Errorf("results = %+v", doc.Results)
	}
	if doc.DurationMs != 1500 {
		t.Errorf("duration = %d", doc.DurationMs)
	}
	if !doc.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("expires_at = %v", doc.ExpiresAt)
	}
}

func TestToDocument_EmptyMatchedRules(t *testing.T) {
	doc := toDocument(&domain.EmailResult{EmailID: 1, Skipped: true}, time.Now(), time.Hour)
	if doc.MatchedRules == nil {
		t.Error("matched_rules should be an empty array, not null")
	}
}
