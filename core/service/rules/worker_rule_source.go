package rules

import (
	"context"
	"time"

	"crm_worker/core/domain"
	"crm_worker/core/port/out"
	"crm_worker/pkg/logger"
)

// RuleSource reads enabled rules and category mappings, through the cache
// when one is configured. Rule and mapping writes must call Invalidate.
type RuleSource struct {
	rules    out.RuleRepository
	mappings out.CategoryMappingRepository
	cache    out.RuleCache
}

// NewRuleSource creates a rule source. cache may be nil.
func NewRuleSource(rules out.RuleRepository, mappings out.CategoryMappingRepository, cache out.RuleCache) *RuleSource {
	return &RuleSource{rules: rules, mappings: mappings, cache: cache}
}

// EnabledRules returns enabled rules ordered by priority DESC, id ASC.
func (s *RuleSource) EnabledRules(ctx context.Context) ([]*domain.Rule, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.GetRules(ctx)
		if err != nil {
			logger.Warn("[RuleSource.EnabledRules] cache read failed: %v", err)
		} else if ok {
			return SortRules(cached), nil
		}
	}

	rules, err := s.rules.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	rules = SortRules(rules)

	if s.cache != nil {
		if err := s.cache.SetRules(ctx, rules); err != nil {
			logger.Warn("[RuleSource.EnabledRules] cache write failed: %v", err)
		}
	}
	return rules, nil
}

// Mappings returns the category mapping table.
func (s *RuleSource) Mappings(ctx context.Context) ([]*domain.CategoryMapping, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.GetMappings(ctx)
		if err != nil {
			logger.Warn("[RuleSource.Mappings] cache read failed: %v", err)
		} else if ok {
			return cached, nil
		}
	}

	mappings, err := s.mappings.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetMappings(ctx, mappings); err != nil {
			logger.Warn("[RuleSource.Mappings] cache write failed: %v", err)
		}
	}
	return mappings, nil
}

// Invalidate drops cached rules and mappings.
func (s *RuleSource) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

// RecordHit bumps rule statistics. Failures are logged only.
func (s *RuleSource) RecordHit(ctx context.Context, ruleID int64, at time.Time) {
	if err := s.rules.IncrementHitCount(ctx, ruleID, at); err != nil {
		logger.Warn("[RuleSource.RecordHit] rule %d: %v", ruleID, err)
	}
}
