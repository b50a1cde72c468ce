// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"crm_worker/core/domain"

	"github.com/jmoiron/sqlx"
)

// ContactAdapter implements out.ContactRepository using PostgreSQL.
type ContactAdapter struct {
	db *sqlx.DB
}

// NewContactAdapter creates a new ContactAdapter.
func NewContactAdapter(db *sqlx.DB) *ContactAdapter {
	return &ContactAdapter{db: db}
}

// contactRow represents the database row for contacts.
type contactRow struct {
	ID          int64          `db:"id"`
	Email       string         `db:"email"`
	Name        sql.NullString `db:"name"`
	ContactType sql.NullString `db:"contact_type"`
	Source      sql.NullString `db:"source"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r *contactRow) toDomain() *domain.Contact {
	return &domain.Contact{
		ID:          r.ID,
		Email:       r.Email,
		Name:        r.Name.String,
		ContactType: r.ContactType.String,
		Source:      r.Source.String,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (a *ContactAdapter) get(ctx context.Context, query string, arg any) (*domain.Contact, error) {
	var row contactRow
	err := a.db.GetContext(ctx, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// GetByEmail matches on the normalized address, the same expression the
// unique index is built on.
func (a *ContactAdapter) GetByEmail(ctx context.Context, normalizedEmail string) (*domain.Contact, error) {
	return a.get(ctx, `SELECT * FROM contacts WHERE lower(trim(email)) = $1`, domain.NormalizeEmail(normalizedEmail))
}

func (a *ContactAdapter) GetByID(ctx context.Context, id int64) (*domain.Contact, error) {
	return a.get(ctx, `SELECT * FROM contacts WHERE id = $1`, id)
}

func (a *ContactAdapter) Create(ctx context.Context, c *domain.Contact) error {
	c.Email = domain.NormalizeEmail(c.Email)
	err := a.db.QueryRowxContext(ctx, `
		INSERT INTO contacts (email, name, contact_type, source)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		c.Email, nullString(c.Name), nullString(c.ContactType), nullString(c.Source),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return mapInsertError(err)
}
