package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied idempotently at startup. The unique indexes on contacts,
// leads and commission snapshots are what makes concurrent passes safe.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS email_rules (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT,
		priority    INTEGER NOT NULL DEFAULT 0,
		enabled     BOOLEAN NOT NULL DEFAULT TRUE,
		conditions  JSONB NOT NULL DEFAULT '[]',
		actions     JSONB NOT NULL DEFAULT '[]',
		hit_count   INTEGER NOT NULL DEFAULT 0,
		last_hit_at TIMESTAMPTZ,
		created_by  UUID,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_email_rules_name ON email_rules (name)`,
	`CREATE INDEX IF NOT EXISTS idx_email_rules_order ON email_rules (enabled, priority DESC, id ASC)`,

	`CREATE TABLE IF NOT EXISTS category_mappings (
		id              BIGSERIAL PRIMARY KEY,
		category_name   TEXT NOT NULL UNIQUE,
		crm_field_type  TEXT NOT NULL,
		crm_field_value TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS contacts (
		id           BIGSERIAL PRIMARY KEY,
		email        TEXT NOT NULL,
		name         TEXT,
		contact_type TEXT,
		source       TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_email_normalized ON contacts (lower(trim(email)))`,

	`CREATE TABLE IF NOT EXISTS stages (
		id       BIGSERIAL PRIMARY KEY,
		name     TEXT NOT NULL UNIQUE,
		position INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS opportunities (
		id          BIGSERIAL PRIMARY KEY,
		contact_id  BIGINT NOT NULL REFERENCES contacts(id),
		title       TEXT NOT NULL,
		source      TEXT,
		sub_source  TEXT,
		stage_id    BIGINT REFERENCES stages(id),
		status      TEXT NOT NULL DEFAULT 'open',
		value       DOUBLE PRECISION NOT NULL DEFAULT 0,
		assigned_to TEXT,
		email_id    BIGINT,
		closed_at   TIMESTAMPTZ,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS leads (
		id              BIGSERIAL PRIMARY KEY,
		contact_id      BIGINT NOT NULL REFERENCES contacts(id),
		conversation_id TEXT,
		source          TEXT,
		status          TEXT NOT NULL DEFAULT 'new',
		assigned_to     TEXT,
		notes           TEXT,
		value           DOUBLE PRECISION NOT NULL DEFAULT 0,
		email_id        BIGINT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_contact_conversation ON leads (contact_id, conversation_id) WHERE conversation_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_leads_contact_source ON leads (contact_id, source, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS activities (
		id              BIGSERIAL PRIMARY KEY,
		contact_id      BIGINT NOT NULL REFERENCES contacts(id),
		opportunity_id  BIGINT,
		type            TEXT NOT NULL,
		description     TEXT,
		direction       TEXT,
		conversation_id TEXT,
		email_id        BIGINT,
		user_name       TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS follow_ups (
		id         BIGSERIAL PRIMARY KEY,
		contact_id BIGINT NOT NULL REFERENCES contacts(id),
		lead_id    BIGINT REFERENCES leads(id),
		type       TEXT NOT NULL,
		notes      TEXT,
		due_date   TIMESTAMPTZ NOT NULL,
		status     TEXT NOT NULL DEFAULT 'pending',
		email_id   BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS commission_snapshots (
		id             BIGSERIAL PRIMARY KEY,
		opportunity_id BIGINT NOT NULL REFERENCES opportunities(id),
		email_id       BIGINT,
		value          DOUBLE PRECISION NOT NULL DEFAULT 0,
		source         TEXT,
		sub_source     TEXT,
		locked_by      UUID,
		locked_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_commission_opportunity_email ON commission_snapshots (opportunity_id, email_id) WHERE email_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS emails (
		id                 BIGSERIAL PRIMARY KEY,
		external_id        TEXT,
		provider           TEXT,
		subject            TEXT,
		body               TEXT,
		from_email         TEXT,
		to_email           TEXT,
		contact_id         BIGINT REFERENCES contacts(id),
		opportunity_id     BIGINT REFERENCES opportunities(id),
		conversation_id    TEXT,
		direction          TEXT,
		categories         TEXT NOT NULL DEFAULT '[]',
		is_flagged         BOOLEAN NOT NULL DEFAULT FALSE,
		flag_due_date      TIMESTAMPTZ,
		folder_id          TEXT,
		processed_by_rules BOOLEAN NOT NULL DEFAULT FALSE,
		received_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_emails_unprocessed ON emails (received_at DESC) WHERE processed_by_rules = FALSE`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
