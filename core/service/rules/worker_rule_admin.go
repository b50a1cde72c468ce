package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crm_worker/core/domain"
	"crm_worker/core/port/out"
	"crm_worker/pkg/apperr"
	"crm_worker/pkg/logger"
)

// RuleAdmin is the authoring surface for rules and category mappings. Every
// write invalidates the rule source cache.
type RuleAdmin struct {
	rules    out.RuleRepository
	mappings out.CategoryMappingRepository
	source   *RuleSource
}

// NewRuleAdmin creates the admin service.
func NewRuleAdmin(rules out.RuleRepository, mappings out.CategoryMappingRepository, source *RuleSource) *RuleAdmin {
	return &RuleAdmin{rules: rules, mappings: mappings, source: source}
}

// ValidateRule enforces the authoring invariants: at least one condition and
// one action, known types and operators, compilable patterns.
func ValidateRule(rule *domain.Rule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return apperr.MissingField("name")
	}
	if len(rule.Conditions) == 0 {
		return apperr.ValidationFailed("rule needs at least one condition")
	}
	if len(rule.Actions) == 0 {
		return apperr.ValidationFailed("rule needs at least one action")
	}
	for i, cond := range rule.Conditions {
		if _, ok := domain.NormalizeConditionType(string(cond.Type)); !ok {
			return apperr.InvalidInput(fmt.Sprintf("conditions[%d].type", i), fmt.Sprintf("unknown condition type %q", cond.Type))
		}
		if cond.Operator != "" && !cond.Operator.IsValid() {
			return apperr.InvalidInput(fmt.Sprintf("conditions[%d].operator", i), fmt.Sprintf("unknown operator %q", cond.Operator))
		}
		if cond.Operator == domain.OperatorMatches {
			if err := ValidatePattern(cond.Value); err != nil {
				return apperr.InvalidInput(fmt.Sprintf("conditions[%d].value", i), err.Error())
			}
		}
	}
	for i, action := range rule.Actions {
		if !action.Type.IsValid() {
			return apperr.InvalidInput(fmt.Sprintf("actions[%d].type", i), fmt.Sprintf("unknown action type %q", action.Type))
		}
		if action.Type == domain.ActionUpdateOpportunityStage && action.String("stage_name") == "" {
			return apperr.MissingField(fmt.Sprintf("actions[%d].params.stage_name", i))
		}
		if action.Type == domain.ActionAssignCategory && action.String("category") == "" {
			return apperr.MissingField(fmt.Sprintf("actions[%d].params.category", i))
		}
	}
	return nil
}

func (a *RuleAdmin) ListRules(ctx context.Context) ([]*domain.Rule, error) {
	rules, err := a.rules.List(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("list rules", err)
	}
	return SortRules(rules), nil
}

func (a *RuleAdmin) GetRule(ctx context.Context, id int64) (*domain.Rule, error) {
	rule, err := a.rules.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.DatabaseError("get rule", err)
	}
	if rule == nil {
		return nil, apperr.NotFound("rule")
	}
	return rule, nil
}

func (a *RuleAdmin) CreateRule(ctx context.Context, rule *domain.Rule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}
	if err := a.rules.Create(ctx, rule); err != nil {
		return storeError(err, "rule", "create rule")
	}
	a.invalidate(ctx)
	return nil
}

func (a *RuleAdmin) UpdateRule(ctx context.Context, rule *domain.Rule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}
	if err := a.rules.Update(ctx, rule); err != nil {
		return storeError(err, "rule", "update rule")
	}
	a.invalidate(ctx)
	return nil
}

// SetEnabled toggles a rule without touching its definition. A rule whose
// stored body cannot be decoded may be disabled but not enabled.
func (a *RuleAdmin) SetEnabled(ctx context.Context, id int64, enabled bool) (*domain.Rule, error) {
	rule, err := a.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if enabled && rule.Malformed() {
		return nil, apperr.MalformedRule(rule.ID, errors.New(rule.ParseError))
	}
	if err := a.rules.SetEnabled(ctx, id, enabled); err != nil {
		return nil, storeError(err, "rule", "update rule")
	}
	rule.Enabled = enabled
	a.invalidate(ctx)
	return rule, nil
}

func (a *RuleAdmin) DeleteRule(ctx context.Context, id int64) error {
	if err := a.rules.Delete(ctx, id); err != nil {
		return storeError(err, "rule", "delete rule")
	}
	a.invalidate(ctx)
	return nil
}

func (a *RuleAdmin) ListMappings(ctx context.Context) ([]*domain.CategoryMapping, error) {
	mappings, err := a.mappings.List(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("list category mappings", err)
	}
	return mappings, nil
}

// UpsertMapping creates or replaces the mapping for a category name.
func (a *RuleAdmin) UpsertMapping(ctx context.Context, m *domain.CategoryMapping) error {
	m.CategoryName = strings.TrimSpace(m.CategoryName)
	if m.CategoryName == "" {
		return apperr.MissingField("category_name")
	}
	if strings.TrimSpace(m.CRMFieldType) == "" {
		return apperr.MissingField("crm_field_type")
	}
	if err := a.mappings.Upsert(ctx, m); err != nil {
		return apperr.DatabaseError("upsert category mapping", err)
	}
	a.invalidate(ctx)
	return nil
}

func (a *RuleAdmin) DeleteMapping(ctx context.Context, id int64) error {
	if err := a.mappings.Delete(ctx, id); err != nil {
		return storeError(err, "category mapping", "delete category mapping")
	}
	a.invalidate(ctx)
	return nil
}

// Seed upserts mappings by category name and inserts rules whose name is not
// taken yet. Existing rules keep whatever an admin changed since.
func (a *RuleAdmin) Seed(ctx context.Context, mappings []*domain.CategoryMapping, rules []*domain.Rule) error {
	for _, m := range mappings {
		if err := a.UpsertMapping(ctx, m); err != nil {
			return fmt.Errorf("seed mapping %q: %w", m.CategoryName, err)
		}
	}
	created := 0
	for _, r := range rules {
		existing, err := a.rules.GetByName(ctx, r.Name)
		if err != nil {
			return fmt.Errorf("seed rule %q: %w", r.Name, err)
		}
		if existing != nil {
			logger.Debug("[RuleAdmin.Seed] rule %q exists, leaving it", r.Name)
			continue
		}
		if err := a.CreateRule(ctx, r); err != nil {
			return fmt.Errorf("seed rule %q: %w", r.Name, err)
		}
		created++
	}
	logger.Info("[RuleAdmin.Seed] seeded %d category mappings, %d of %d rules", len(mappings), created, len(rules))
	return nil
}

func (a *RuleAdmin) invalidate(ctx context.Context) {
	if a.source == nil {
		return
	}
	if err := a.source.Invalidate(ctx); err != nil {
		logger.Warn("[RuleAdmin] rule cache invalidation failed: %v", err)
	}
}

func storeError(err error, resource, op string) error {
	switch {
	case errors.Is(err, out.ErrNotFound):
		return apperr.NotFound(resource)
	case errors.Is(err, out.ErrDuplicate):
		return apperr.Conflict(fmt.Sprintf("a %s with this name already exists", resource))
	}
	return apperr.DatabaseError(op, err)
}
