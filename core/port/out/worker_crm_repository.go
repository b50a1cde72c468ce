package out

import (
	"context"
	"time"

	"crm_worker/core/domain"
)

// ContactRepository persists contacts keyed by normalized email.
type ContactRepository interface {
	// GetByEmail looks up by normalized email. Returns nil, nil when absent.
	GetByEmail(ctx context.Context, normalizedEmail string) (*domain.Contact, error)
	GetByID(ctx context.Context, id int64) (*domain.Contact, error)
	// Create returns ErrDuplicate when another contact owns the email.
	Create(ctx context.Context, c *domain.Contact) error
}

type OpportunityRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Opportunity, error)
	Create(ctx context.Context, o *domain.Opportunity) error
	UpdateStage(ctx context.Context, id, stageID int64) error
	MarkWon(ctx context.Context, id int64, closedAt time.Time) error
}

type StageRepository interface {
	// GetByName matches case-insensitively. Returns nil, nil when absent.
	GetByName(ctx context.Context, name string) (*domain.Stage, error)
}

type LeadRepository interface {
	FindByConversation(ctx context.Context, contactID int64, conversationID string) (*domain.Lead, error)
	FindRecentBySource(ctx context.Context, contactID int64, source string, since time.Time) (*domain.Lead, error)
	LatestForContact(ctx context.Context, contactID int64) (*domain.Lead, error)
	// Create returns ErrDuplicate when a lead already exists for (contact, conversation).
	Create(ctx context.Context, l *domain.Lead) error
}

type ActivityRepository interface {
	Create(ctx context.Context, a *domain.Activity) error
}

type FollowUpRepository interface {
	Create(ctx context.Context, f *domain.FollowUp) error
}

type CommissionRepository interface {
	GetByOpportunityAndEmail(ctx context.Context, opportunityID, emailID int64) (*domain.CommissionSnapshot, error)
	// Create returns ErrDuplicate when a snapshot exists for (opportunity, email).
	Create(ctx context.Context, s *domain.CommissionSnapshot) error
}

// CRMStore groups the repositories the action executor writes to.
type CRMStore struct {
	Contacts      ContactRepository
	Opportunities OpportunityRepository
	Stages        StageRepository
	Leads         LeadRepository
	Activities    ActivityRepository
	FollowUps     FollowUpRepository
	Commissions   CommissionRepository
	Messages      MessageRepository
}
