package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"crm_worker/core/domain"

	"github.com/jmoiron/sqlx"
)

// LeadAdapter implements out.LeadRepository using PostgreSQL.
type LeadAdapter struct {
	db *sqlx.DB
}

// NewLeadAdapter creates a new LeadAdapter.
func NewLeadAdapter(db *sqlx.DB) *LeadAdapter {
	return &LeadAdapter{db: db}
}

type leadRow struct {
	ID             int64          `db:"id"`
	ContactID      int64          `db:"contact_id"`
	ConversationID sql.NullString `db:"conversation_id"`
	Source         sql.NullString `db:"source"`
	Status         string         `db:"status"`
	AssignedTo     sql.NullString `db:"assigned_to"`
	Notes          sql.NullString `db:"notes"`
	Value          float64        `db:"value"`
	EmailID        sql.NullInt64  `db:"email_id"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r *leadRow) toDomain() *domain.Lead {
	return &domain.Lead{
		ID:             r.ID,
		ContactID:      r.ContactID,
		ConversationID: r.ConversationID.String,
		Source:         r.Source.String,
		Status:         r.Status,
		AssignedTo:     r.AssignedTo.String,
		Notes:          r.Notes.String,
		Value:          r.Value,
		EmailID:        int64Ptr(r.EmailID),
		CreatedAt:      r.CreatedAt,
	}
}

func (a *LeadAdapter) get(ctx context.Context, query string, args ...any) (*domain.Lead, error) {
	var row leadRow
	err := a.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (a *LeadAdapter) FindByConversation(ctx context.Context, contactID int64, conversationID string) (*domain.Lead, error) {
	if conversationID == "" {
		return nil, nil
	}
	return a.get(ctx,
		`SELECT * FROM leads WHERE contact_id = $1 AND conversation_id = $2 ORDER BY id LIMIT 1`,
		contactID, conversationID)
}

func (a *LeadAdapter) FindRecentBySource(ctx context.Context, contactID int64, source string, since time.Time) (*domain.Lead, error) {
	return a.get(ctx, `
		SELECT * FROM leads
		WHERE contact_id = $1 AND COALESCE(source, '') = $2 AND created_at >= $3
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		contactID, source, since)
}

func (a *LeadAdapter) LatestForContact(ctx context.Context, contactID int64) (*domain.Lead, error) {
	return a.get(ctx,
		`SELECT * FROM leads WHERE contact_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, contactID)
}

// Create stores an empty conversation id as NULL so the partial unique index
// only guards threaded leads.
func (a *LeadAdapter) Create(ctx context.Context, l *domain.Lead) error {
	if l.Status == "" {
		l.Status = domain.LeadStatusNew
	}
	err := a.db.QueryRowxContext(ctx, `
		INSERT INTO leads (contact_id, conversation_id, source, status, assigned_to, notes, value, email_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		l.ContactID, nullString(l.ConversationID), nullString(l.Source), l.Status,
		nullString(l.AssignedTo), nullString(l.Notes), l.Value, nullInt64(l.EmailID),
	).Scan(&l.ID, &l.CreatedAt)
	return mapInsertError(err)
}

// =============================================================================
// Activities
// =============================================================================

// ActivityAdapter implements out.ActivityRepository using PostgreSQL.
type ActivityAdapter struct {
	db *sqlx.DB
}

// NewActivityAdapter creates a new ActivityAdapter.
func NewActivityAdapter(db *sqlx.DB) *ActivityAdapter {
	return &ActivityAdapter{db: db}
}

func (a *ActivityAdapter) Create(ctx context.Context, act *domain.Activity) error {
	return a.db.QueryRowxContext(ctx, `
		INSERT INTO activities (contact_id, opportunity_id, type, description, direction, conversation_id, email_id, user_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		act.ContactID, nullInt64(act.OpportunityID), act.Type, nullString(act.Description),
		nullString(act.Direction), nullString(act.ConversationID), nullInt64(act.EmailID), nullString(act.User),
	).Scan(&act.ID, &act.CreatedAt)
}

// =============================================================================
// Follow-ups
// =============================================================================

// FollowUpAdapter implements out.FollowUpRepository using PostgreSQL.
type FollowUpAdapter struct {
	db *sqlx.DB
}

// NewFollowUpAdapter creates a new FollowUpAdapter.
func NewFollowUpAdapter(db *sqlx.DB) *FollowUpAdapter {
	return &FollowUpAdapter{db: db}
}

func (a *FollowUpAdapter) Create(ctx context.Context, f *domain.FollowUp) error {
	if f.Status == "" {
		f.Status = domain.FollowUpStatusPending
	}
	return a.db.QueryRowxContext(ctx, `
		INSERT INTO follow_ups (contact_id, lead_id, type, notes, due_date, status, email_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		f.ContactID, nullInt64(f.LeadID), f.Type, nullString(f.Notes), f.DueDate, f.Status, nullInt64(f.EmailID),
	).Scan(&f.ID, &f.CreatedAt)
}
