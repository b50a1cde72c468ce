package in

import (
	"context"

	"crm_worker/core/domain"

	"github.com/google/uuid"
)

// ProcessOptions are the per-call knobs of the rules engine.
type ProcessOptions struct {
	// AccessToken is passed through to the mail provider. Optional.
	AccessToken string
	Force       bool
	// ActingUser is stamped onto records that need an owner. uuid.Nil when unknown.
	ActingUser uuid.UUID
}

// RulesEngine is the use-case port of the email rules engine.
type RulesEngine interface {
	ProcessEmail(ctx context.Context, msg *domain.Message, opts ProcessOptions) (*domain.EmailResult, error)
	ProcessEmails(ctx context.Context, msgs []*domain.Message, opts ProcessOptions) (*domain.BatchSummary, error)
	ProcessEmailsByID(ctx context.Context, ids []int64, opts ProcessOptions) (*domain.BatchSummary, error)
	ReprocessAllEmails(ctx context.Context, opts ProcessOptions) (*domain.BatchSummary, error)
	ProcessAllInboxEmails(ctx context.Context, opts ProcessOptions) (*domain.BatchSummary, error)
	// TestRules evaluates rules against a message without executing actions.
	TestRules(ctx context.Context, msg *domain.Message) ([]*domain.Rule, error)
}
