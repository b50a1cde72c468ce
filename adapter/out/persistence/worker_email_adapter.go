package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"crm_worker/core/domain"

	"github.com/jmoiron/sqlx"
)

// EmailAdapter implements out.MessageRepository using PostgreSQL.
type EmailAdapter struct {
	db *sqlx.DB
}

// NewEmailAdapter creates a new EmailAdapter.
func NewEmailAdapter(db *sqlx.DB) *EmailAdapter {
	return &EmailAdapter{db: db}
}

type emailRow struct {
	ID               int64          `db:"id"`
	ExternalID       sql.NullString `db:"external_id"`
	Provider         sql.NullString `db:"provider"`
	Subject          sql.NullString `db:"subject"`
	Body             sql.NullString `db:"body"`
	FromEmail        sql.NullString `db:"from_email"`
	ToEmail          sql.NullString `db:"to_email"`
	ContactID        sql.NullInt64  `db:"contact_id"`
	OpportunityID    sql.NullInt64  `db:"opportunity_id"`
	ConversationID   sql.NullString `db:"conversation_id"`
	Direction        sql.NullString `db:"direction"`
	Categories       sql.NullString `db:"categories"`
	IsFlagged        bool           `db:"is_flagged"`
	FlagDueDate      sql.NullTime   `db:"flag_due_date"`
	FolderID         sql.NullString `db:"folder_id"`
	ProcessedByRules bool           `db:"processed_by_rules"`
	ReceivedAt       time.Time      `db:"received_at"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r *emailRow) toDomain() *domain.Message {
	msg := &domain.Message{
		ID:               r.ID,
		ExternalID:       r.ExternalID.String,
		Provider:         r.Provider.String,
		Subject:          r.Subject.String,
		Body:             r.Body.String,
		FromEmail:        r.FromEmail.String,
		ToEmail:          r.ToEmail.String,
		ContactID:        int64Ptr(r.ContactID),
		OpportunityID:    int64Ptr(r.OpportunityID),
		ConversationID:   r.ConversationID.String,
		Direction:        r.Direction.String,
		Categories:       domain.ParseCategories(r.Categories.String),
		IsFlagged:        r.IsFlagged,
		FolderID:         r.FolderID.String,
		ProcessedByRules: r.ProcessedByRules,
		ReceivedAt:       r.ReceivedAt,
		CreatedAt:        r.CreatedAt,
	}
	if r.FlagDueDate.Valid {
		t := r.FlagDueDate.Time
		msg.FlagDueDate = &t
	}
	return msg
}

func (a *EmailAdapter) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	var row emailRow
	err := a.db.GetContext(ctx, &row, `SELECT * FROM emails WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// listRecent selects the newest `limit` rows matching where and returns them
// oldest first.
func (a *EmailAdapter) listRecent(ctx context.Context, where string, limit int) ([]*domain.Message, error) {
	var rows []emailRow
	query := `SELECT * FROM (
		SELECT * FROM emails WHERE ` + where + ` ORDER BY received_at DESC, id DESC LIMIT $1
	) recent ORDER BY received_at ASC, id ASC`
	if err := a.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, err
	}
	msgs := make([]*domain.Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, rows[i].toDomain())
	}
	return msgs, nil
}

func (a *EmailAdapter) ListUnprocessed(ctx context.Context, limit int) ([]*domain.Message, error) {
	return a.listRecent(ctx, `processed_by_rules = FALSE`, limit)
}

func (a *EmailAdapter) ListProviderSourced(ctx context.Context, limit int) ([]*domain.Message, error) {
	return a.listRecent(ctx, `external_id IS NOT NULL AND external_id <> ''`, limit)
}

func (a *EmailAdapter) SetContact(ctx context.Context, messageID, contactID int64) error {
	return requireAffected(a.db.ExecContext(ctx,
		`UPDATE emails SET contact_id = $2, updated_at = NOW() WHERE id = $1`, messageID, contactID))
}

func (a *EmailAdapter) SetOpportunity(ctx context.Context, messageID, opportunityID int64) error {
	return requireAffected(a.db.ExecContext(ctx,
		`UPDATE emails SET opportunity_id = $2, updated_at = NOW() WHERE id = $1`, messageID, opportunityID))
}

func (a *EmailAdapter) SetCategories(ctx context.Context, messageID int64, categories domain.Categories) error {
	return requireAffected(a.db.ExecContext(ctx,
		`UPDATE emails SET categories = $2, updated_at = NOW() WHERE id = $1`, messageID, categories.Encode()))
}

func (a *EmailAdapter) SaveProcessingState(ctx context.Context, msg *domain.Message) error {
	var due sql.NullTime
	if msg.FlagDueDate != nil {
		due = sql.NullTime{Time: *msg.FlagDueDate, Valid: true}
	}
	return requireAffected(a.db.ExecContext(ctx, `
		UPDATE emails
		SET categories = $2, is_flagged = $3, flag_due_date = $4,
			processed_by_rules = $5, updated_at = NOW()
		WHERE id = $1`,
		msg.ID, msg.Categories.Encode(), msg.IsFlagged, due, msg.ProcessedByRules,
	))
}
