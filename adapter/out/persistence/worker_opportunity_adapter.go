package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"crm_worker/core/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// OpportunityAdapter implements out.OpportunityRepository using PostgreSQL.
type OpportunityAdapter struct {
	db *sqlx.DB
}

// NewOpportunityAdapter creates a new OpportunityAdapter.
func NewOpportunityAdapter(db *sqlx.DB) *OpportunityAdapter {
	return &OpportunityAdapter{db: db}
}

type opportunityRow struct {
	ID         int64          `db:"id"`
	ContactID  int64          `db:"contact_id"`
	Title      string         `db:"title"`
	Source     sql.NullString `db:"source"`
	SubSource  sql.NullString `db:"sub_source"`
	StageID    sql.NullInt64  `db:"stage_id"`
	Status     string         `db:"status"`
	Value      float64        `db:"value"`
	AssignedTo sql.NullString `db:"assigned_to"`
	EmailID    sql.NullInt64  `db:"email_id"`
	ClosedAt   sql.NullTime   `db:"closed_at"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r *opportunityRow) toDomain() *domain.Opportunity {
	opp := &domain.Opportunity{
		ID:         r.ID,
		ContactID:  r.ContactID,
		Title:      r.Title,
		Source:     r.Source.String,
		SubSource:  r.SubSource.String,
		StageID:    int64Ptr(r.StageID),
		Status:     r.Status,
		Value:      r.Value,
		AssignedTo: r.AssignedTo.String,
		EmailID:    int64Ptr(r.EmailID),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.ClosedAt.Valid {
		t := r.ClosedAt.Time
		opp.ClosedAt = &t
	}
	return opp
}

func (a *OpportunityAdapter) GetByID(ctx context.Context, id int64) (*domain.Opportunity, error) {
	var row opportunityRow
	err := a.db.GetContext(ctx, &row, `SELECT * FROM opportunities WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (a *OpportunityAdapter) Create(ctx context.Context, o *domain.Opportunity) error {
	if o.Status == "" {
		o.Status = domain.OpportunityStatusOpen
	}
	err := a.db.QueryRowxContext(ctx, `
		INSERT INTO opportunities (contact_id, title, source, sub_source, stage_id, status, value, assigned_to, email_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		o.ContactID, o.Title, nullString(o.Source), nullString(o.SubSource), nullInt64(o.StageID),
		o.Status, o.Value, nullString(o.AssignedTo), nullInt64(o.EmailID),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	return mapInsertError(err)
}

func (a *OpportunityAdapter) UpdateStage(ctx context.Context, id, stageID int64) error {
	return requireAffected(a.db.ExecContext(ctx,
		`UPDATE opportunities SET stage_id = $2, updated_at = NOW() WHERE id = $1`, id, stageID))
}

func (a *OpportunityAdapter) MarkWon(ctx context.Context, id int64, closedAt time.Time) error {
	return requireAffected(a.db.ExecContext(ctx,
		`UPDATE opportunities SET status = 'won', closed_at = $2, updated_at = NOW() WHERE id = $1`, id, closedAt))
}

// =============================================================================
// Stages
// =============================================================================

// StageAdapter implements out.StageRepository using PostgreSQL.
type StageAdapter struct {
	db *sqlx.DB
}

// NewStageAdapter creates a new StageAdapter.
func NewStageAdapter(db *sqlx.DB) *StageAdapter {
	return &StageAdapter{db: db}
}

func (a *StageAdapter) GetByName(ctx context.Context, name string) (*domain.Stage, error) {
	var stage domain.Stage
	err := a.db.QueryRowxContext(ctx,
		`SELECT id, name, position FROM stages WHERE lower(name) = lower($1) ORDER BY id LIMIT 1`, name,
	).Scan(&stage.ID, &stage.Name, &stage.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

// =============================================================================
// Commission snapshots
// =============================================================================

// CommissionAdapter implements out.CommissionRepository using PostgreSQL.
type CommissionAdapter struct {
	db *sqlx.DB
}

// NewCommissionAdapter creates a new CommissionAdapter.
func NewCommissionAdapter(db *sqlx.DB) *CommissionAdapter {
	return &CommissionAdapter{db: db}
}

type commissionRow struct {
	ID            int64          `db:"id"`
	OpportunityID int64          `db:"opportunity_id"`
	EmailID       sql.NullInt64  `db:"email_id"`
	Value         float64        `db:"value"`
	Source        sql.NullString `db:"source"`
	SubSource     sql.NullString `db:"sub_source"`
	LockedBy      uuid.NullUUID  `db:"locked_by"`
	LockedAt      time.Time      `db:"locked_at"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r *commissionRow) toDomain() *domain.CommissionSnapshot {
	s := &domain.CommissionSnapshot{
		ID:            r.ID,
		OpportunityID: r.OpportunityID,
		EmailID:       int64Ptr(r.EmailID),
		Value:         r.Value,
		Source:        r.Source.String,
		SubSource:     r.SubSource.String,
		LockedAt:      r.LockedAt,
		CreatedAt:     r.CreatedAt,
	}
	if r.LockedBy.Valid {
		u := r.LockedBy.UUID
		s.LockedBy = &u
	}
	return s
}

func (a *CommissionAdapter) GetByOpportunityAndEmail(ctx context.Context, opportunityID, emailID int64) (*domain.CommissionSnapshot, error) {
	var row commissionRow
	err := a.db.GetContext(ctx, &row,
		`SELECT * FROM commission_snapshots WHERE opportunity_id = $1 AND email_id = $2`, opportunityID, emailID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (a *CommissionAdapter) Create(ctx context.Context, s *domain.CommissionSnapshot) error {
	var lockedBy uuid.NullUUID
	if s.LockedBy != nil {
		lockedBy = uuid.NullUUID{UUID: *s.LockedBy, Valid: true}
	}
	if s.LockedAt.IsZero() {
		s.LockedAt = time.Now()
	}
	err := a.db.QueryRowxContext(ctx, `
		INSERT INTO commission_snapshots (opportunity_id, email_id, value, source, sub_source, locked_by, locked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		s.OpportunityID, nullInt64(s.EmailID), s.Value, nullString(s.Source), nullString(s.SubSource), lockedBy, s.LockedAt,
	).Scan(&s.ID, &s.CreatedAt)
	return mapInsertError(err)
}
