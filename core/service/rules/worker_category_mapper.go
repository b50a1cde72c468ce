// Package rules implements the email rules engine: category mapping, condition
// and rule evaluation, action execution and message processing.
package rules

import (
	"context"

	"crm_worker/core/domain"
)

// MappingSource supplies the current category mapping table.
type MappingSource interface {
	Mappings(ctx context.Context) ([]*domain.CategoryMapping, error)
}

// CategoryMapper derives CRM field hints from a message's categories.
type CategoryMapper struct {
	source MappingSource
}

// NewCategoryMapper creates a category mapper.
func NewCategoryMapper(source MappingSource) *CategoryMapper {
	return &CategoryMapper{source: source}
}

// MapCategoriesToCRMFields looks up every category of the message in the mapping table.
func (m *CategoryMapper) MapCategoriesToCRMFields(ctx context.Context, msg *domain.Message) (*domain.CategoryMappingResult, error) {
	mappings, err := m.source.Mappings(ctx)
	if err != nil {
		return nil, err
	}
	return MapCategories(msg.Categories, mappings), nil
}

// MapCategories is the pure mapping step. Unmapped categories are ignored.
// When several categories map to the same field type the last one in input
// order wins.
func MapCategories(categories []string, mappings []*domain.CategoryMapping) *domain.CategoryMappingResult {
	byName := make(map[string]*domain.CategoryMapping, len(mappings))
	for _, mp := range mappings {
		byName[mp.CategoryName] = mp
	}

	result := &domain.CategoryMappingResult{
		Categories:   append([]string{}, categories...),
		MappedFields: make(map[string]string),
	}
	for _, cat := range categories {
		mp, ok := byName[cat]
		if !ok {
			continue
		}
		result.MappedFields[mp.CRMFieldType] = mp.CRMFieldValue
		switch mp.CRMFieldType {
		case domain.FieldTypeSource:
			result.Source = mp.CRMFieldValue
		case domain.FieldTypeSubSource:
			result.SubSource = mp.CRMFieldValue
		case domain.FieldTypeStage:
			result.Stage = mp.CRMFieldValue
		}
	}
	return result
}
