package out

import (
	"context"
	"errors"
	"time"

	"crm_worker/core/domain"
)

// Store-level errors shared by every repository.
var (
	// ErrDuplicate is returned when an insert hits a unique constraint.
	ErrDuplicate = errors.New("duplicate entry")
	ErrNotFound  = errors.New("not found")
)

// RuleRepository defines the outbound port for rule persistence.
type RuleRepository interface {
	// ListEnabled returns enabled rules ordered by priority DESC, id ASC.
	ListEnabled(ctx context.Context) ([]*domain.Rule, error)
	List(ctx context.Context) ([]*domain.Rule, error)
	GetByID(ctx context.Context, id int64) (*domain.Rule, error)
	GetByName(ctx context.Context, name string) (*domain.Rule, error)
	Create(ctx context.Context, rule *domain.Rule) error
	Update(ctx context.Context, rule *domain.Rule) error
	// SetEnabled changes only the enabled flag, leaving the stored definition as is.
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	Delete(ctx context.Context, id int64) error

	// Stats
	IncrementHitCount(ctx context.Context, id int64, at time.Time) error
}

// CategoryMappingRepository defines the outbound port for category mappings.
type CategoryMappingRepository interface {
	List(ctx context.Context) ([]*domain.CategoryMapping, error)
	GetByName(ctx context.Context, categoryName string) (*domain.CategoryMapping, error)
	// Upsert inserts or updates by category_name.
	Upsert(ctx context.Context, m *domain.CategoryMapping) error
	Delete(ctx context.Context, id int64) error
}

// MessageRepository defines the outbound port for synced messages.
type MessageRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	// ListUnprocessed returns the most recent messages not yet processed by rules.
	ListUnprocessed(ctx context.Context, limit int) ([]*domain.Message, error)
	// ListProviderSourced returns the most recent messages that came from a provider.
	ListProviderSourced(ctx context.Context, limit int) ([]*domain.Message, error)

	SetContact(ctx context.Context, messageID, contactID int64) error
	SetOpportunity(ctx context.Context, messageID, opportunityID int64) error
	SetCategories(ctx context.Context, messageID int64, categories domain.Categories) error
	// SaveProcessingState persists categories, flag state and processed_by_rules.
	SaveProcessingState(ctx context.Context, msg *domain.Message) error
}
