package domain

import "time"

// CRM field types a category can map to. Other values are stored but only
// surface in MappedFields.
const (
	FieldTypeSource    = "source"
	FieldTypeSubSource = "sub_source"
	FieldTypeStage     = "stage"
)

// CategoryMapping translates a provider category name into a CRM field value.
type CategoryMapping struct {
	ID            int64     `json:"id"`
	CategoryName  string    `json:"category_name" yaml:"category_name"`
	CRMFieldType  string    `json:"crm_field_type" yaml:"crm_field_type"`
	CRMFieldValue string    `json:"crm_field_value" yaml:"crm_field_value"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CategoryMappingResult is what the mapper derives from a message's categories.
type CategoryMappingResult struct {
	Source       string            `json:"source,omitempty"`
	SubSource    string            `json:"sub_source,omitempty"`
	Stage        string            `json:"stage,omitempty"`
	Categories   []string          `json:"categories"`
	MappedFields map[string]string `json:"mappedFields"`
}
