package out

import (
	"context"

	"crm_worker/core/domain"
)

// RuleCache holds the enabled rule list and category mappings between passes.
// A miss returns ok=false with a nil error.
type RuleCache interface {
	GetRules(ctx context.Context) (rules []*domain.Rule, ok bool, err error)
	SetRules(ctx context.Context, rules []*domain.Rule) error
	GetMappings(ctx context.Context) (mappings []*domain.CategoryMapping, ok bool, err error)
	SetMappings(ctx context.Context, mappings []*domain.CategoryMapping) error
	Invalidate(ctx context.Context) error
}

// MessageLock prevents overlapping passes from working on the same message at once.
type MessageLock interface {
	Acquire(ctx context.Context, messageID int64) (bool, error)
	Release(ctx context.Context, messageID int64) error
}

// RunLog stores per-message processing results for audit.
type RunLog interface {
	Record(ctx context.Context, result *domain.EmailResult) error
}
