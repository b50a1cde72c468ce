package rules

import (
	"context"
	"testing"

	"crm_worker/core/domain"

	"github.com/goccy/go-json"
)

func TestMapCategoriesToCRMFields_Webform(t *testing.T) {
	h := newHarness()
	h.store.mappings = []*domain.CategoryMapping{
		{ID: 1, CategoryName: "Source – Webform", CRMFieldType: domain.FieldTypeSource, CRMFieldValue: "webform"},
	}
	mapper := NewCategoryMapper(h.source)

	msg := &domain.Message{Categories: domain.Categories{"Source – Webform"}}
	res, err := mapper.MapCategoriesToCRMFields(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != "webform" {
		t.Errorf("source = %q, want webform", res.Source)
	}
	if res.MappedFields["source"] != "webform" {
		t.Errorf("mappedFields = %v", res.MappedFields)
	}
}

func TestMapCategories_LastMatchWinsAndUnmappedIgnored(t *testing.T) {
	mappings := []*domain.CategoryMapping{
		{CategoryName: "Web", CRMFieldType: domain.FieldTypeSource, CRMFieldValue: "webform"},
		{CategoryName: "Phone", CRMFieldType: domain.FieldTypeSource, CRMFieldValue: "phone"},
		{CategoryName: "Google Ads", CRMFieldType: domain.FieldTypeSubSource, CRMFieldValue: "ppc"},
		{CategoryName: "Hot", CRMFieldType: domain.FieldTypeStage, CRMFieldValue: "Qualified"},
		{CategoryName: "Region North", CRMFieldType: "region", CRMFieldValue: "north"},
	}

	tests := []struct {
		name       string
		categories []string
		source     string
		subSource  string
		stage      string
		extra      string
	}{
		{"last source wins", []string{"Web", "Phone"}, "phone", "", "", ""},
		{"order reversed", []string{"Phone", "Web"}, "webform", "", "", ""},
		{"all fields", []string{"Web", "Google Ads", "Hot", "Region North"}, "webform", "ppc", "Qualified", "north"},
		{"unmapped ignored", []string{"Newsletter", "Misc"}, "", "", "", ""},
		{"exact name only", []string{"web"}, "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := MapCategories(tt.categories, mappings)
			if res.Source != tt.source || res.SubSource != tt.subSource || res.Stage != tt.stage {
				t.Errorf("got source=%q sub=%q stage=%q", res.Source, res.SubSource, res.Stage)
			}
			if res.MappedFields["region"] != tt.extra {
				t.Errorf("region = %q, want %q", res.MappedFields["region"], tt.extra)
			}
			if len(res.Categories) != len(tt.categories) {
				t.Errorf("categories = %v", res.Categories)
			}
		})
	}
}

func TestCategories_DefensiveDecoding(t *testing.T) {
	tests := []struct {
		name string
		json string
		want []string
	}{
		{"array", `{"categories":["A","B"]}`, []string{"A", "B"}},
		{"json string", `{"categories":"[\"A\",\"B\"]"}`, []string{"A", "B"}},
		{"comma separated", `{"categories":"A, B ,C"}`, []string{"A", "B", "C"}},
		{"null", `{"categories":null}`, nil},
		{"empty string", `{"categories":""}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg domain.Message
			if err := json.Unmarshal([]byte(tt.json), &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(msg.Categories) != len(tt.want) {
				t.Fatalf("got %v, want %v", msg.Categories, tt.want)
			}
			for i := range tt.want {
				if msg.Categories[i] != tt.want[i] {
					t.Errorf("index %d: got %q, want %q", i, msg.Categories[i], tt.want[i])
				}
			}
		})
	}
}
