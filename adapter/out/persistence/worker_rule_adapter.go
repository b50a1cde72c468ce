package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crm_worker/core/domain"
	"crm_worker/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// RuleAdapter implements out.RuleRepository using PostgreSQL.
type RuleAdapter struct {
	db *sqlx.DB
}

// NewRuleAdapter creates a new RuleAdapter.
func NewRuleAdapter(db *sqlx.DB) *RuleAdapter {
	return &RuleAdapter{db: db}
}

type ruleRow struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	Priority    int            `db:"priority"`
	Enabled     bool           `db:"enabled"`
	Conditions  []byte         `db:"conditions"`
	Actions     []byte         `db:"actions"`
	HitCount    int            `db:"hit_count"`
	LastHitAt   sql.NullTime   `db:"last_hit_at"`
	CreatedBy   uuid.NullUUID  `db:"created_by"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// toDomain decodes the stored JSON. A rule whose blobs do not decode is
// returned with ParseError set so evaluation can skip it.
func (r *ruleRow) toDomain() *domain.Rule {
	rule := &domain.Rule{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		Priority:    r.Priority,
		Enabled:     r.Enabled,
		HitCount:    r.HitCount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.LastHitAt.Valid {
		t := r.LastHitAt.Time
		rule.LastHitAt = &t
	}
	if r.CreatedBy.Valid {
		u := r.CreatedBy.UUID
		rule.CreatedBy = &u
	}

	conds, err := domain.ParseConditions(r.Conditions)
	if err != nil {
		rule.ParseError = err.Error()
		logger.Warn("[RuleAdapter] rule %d has malformed conditions: %v", r.ID, err)
		return rule
	}
	actions, err := domain.ParseActions(r.Actions)
	if err != nil {
		rule.ParseError = err.Error()
		logger.Warn("[RuleAdapter] rule %d has malformed actions: %v", r.ID, err)
		return rule
	}
	rule.Conditions = conds
	rule.Actions = actions
	return rule
}

const ruleColumns = `id, name, description, priority, enabled, conditions, actions,
	hit_count, last_hit_at, created_by, created_at, updated_at`

func (a *RuleAdapter) list(ctx context.Context, query string, args ...any) ([]*domain.Rule, error) {
	var rows []ruleRow
	if err := a.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	rules := make([]*domain.Rule, 0, len(rows))
	for i := range rows {
		rules = append(rules, rows[i].toDomain())
	}
	return rules, nil
}

// ListEnabled returns enabled rules ordered by priority DESC, id ASC.
func (a *RuleAdapter) ListEnabled(ctx context.Context) ([]*domain.Rule, error) {
	return a.list(ctx, `SELECT `+ruleColumns+` FROM email_rules WHERE enabled = TRUE ORDER BY priority DESC, id ASC`)
}

func (a *RuleAdapter) List(ctx context.Context) ([]*domain.Rule, error) {
	return a.list(ctx, `SELECT `+ruleColumns+` FROM email_rules ORDER BY priority DESC, id ASC`)
}

func (a *RuleAdapter) get(ctx context.Context, query string, arg any) (*domain.Rule, error) {
	var row ruleRow
	err := a.db.GetContext(ctx, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (a *RuleAdapter) GetByID(ctx context.Context, id int64) (*domain.Rule, error) {
	return a.get(ctx, `SELECT `+ruleColumns+` FROM email_rules WHERE id = $1`, id)
}

func (a *RuleAdapter) GetByName(ctx context.Context, name string) (*domain.Rule, error) {
	return a.get(ctx, `SELECT `+ruleColumns+` FROM email_rules WHERE name = $1`, name)
}

// errUndecodedRule is returned when a rule whose stored body failed to decode
// is about to be written back over that body.
var errUndecodedRule = errors.New("rule body was not decoded")

func encodeRuleBody(rule *domain.Rule) (string, string, error) {
	if rule.Malformed() {
		return "", "", fmt.Errorf("rule %d: %w: %s", rule.ID, errUndecodedRule, rule.ParseError)
	}
	conds := rule.Conditions
	if conds == nil {
		conds = []domain.Condition{}
	}
	actions := rule.Actions
	if actions == nil {
		actions = []domain.Action{}
	}
	c, err := json.Marshal(conds)
	if err != nil {
		return "", "", err
	}
	ac, err := json.Marshal(actions)
	if err != nil {
		return "", "", err
	}
	return string(c), string(ac), nil
}

func (a *RuleAdapter) Create(ctx context.Context, rule *domain.Rule) error {
	conds, actions, err := encodeRuleBody(rule)
	if err != nil {
		return err
	}
	var createdBy uuid.NullUUID
	if rule.CreatedBy != nil {
		createdBy = uuid.NullUUID{UUID: *rule.CreatedBy, Valid: true}
	}
	err = a.db.QueryRowxContext(ctx, `
		INSERT INTO email_rules (name, description, priority, enabled, conditions, actions, created_by)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7)
		RETURNING id, created_at, updated_at`,
		rule.Name, nullString(rule.Description), rule.Priority, rule.Enabled, conds, actions, createdBy,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	return mapInsertError(err)
}

func (a *RuleAdapter) Update(ctx context.Context, rule *domain.Rule) error {
	conds, actions, err := encodeRuleBody(rule)
	if err != nil {
		return err
	}
	rule.UpdatedAt = time.Now()
	res, err := a.db.ExecContext(ctx, `
		UPDATE email_rules
		SET name = $2, description = $3, priority = $4, enabled = $5,
			conditions = $6::jsonb, actions = $7::jsonb, updated_at = $8
		WHERE id = $1`,
		rule.ID, rule.Name, nullString(rule.Description), rule.Priority, rule.Enabled, conds, actions, rule.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return requireAffected(res, err)
}

func (a *RuleAdapter) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	return requireAffected(a.db.ExecContext(ctx,
		`UPDATE email_rules SET enabled = $2, updated_at = NOW() WHERE id = $1`, id, enabled))
}

func (a *RuleAdapter) Delete(ctx context.Context, id int64) error {
	return requireAffected(a.db.ExecContext(ctx, `DELETE FROM email_rules WHERE id = $1`, id))
}

func (a *RuleAdapter) IncrementHitCount(ctx context.Context, id int64, at time.Time) error {
	_, err := a.db.ExecContext(ctx,
		`UPDATE email_rules SET hit_count = hit_count + 1, last_hit_at = $2 WHERE id = $1`, id, at)
	return err
}

// =============================================================================
// Category mappings
// =============================================================================

// CategoryMappingAdapter implements out.CategoryMappingRepository using PostgreSQL.
type CategoryMappingAdapter struct {
	db *sqlx.DB
}

// NewCategoryMappingAdapter creates a new CategoryMappingAdapter.
func NewCategoryMappingAdapter(db *sqlx.DB) *CategoryMappingAdapter {
	return &CategoryMappingAdapter{db: db}
}

type categoryMappingRow struct {
	ID            int64     `db:"id"`
	CategoryName  string    `db:"category_name"`
	CRMFieldType  string    `db:"crm_field_type"`
	CRMFieldValue string    `db:"crm_field_value"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r *categoryMappingRow) toDomain() *domain.CategoryMapping {
	return &domain.CategoryMapping{
		ID:            r.ID,
		CategoryName:  r.CategoryName,
		CRMFieldType:  r.CRMFieldType,
		CRMFieldValue: r.CRMFieldValue,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (a *CategoryMappingAdapter) List(ctx context.Context) ([]*domain.CategoryMapping, error) {
	var rows []categoryMappingRow
	if err := a.db.SelectContext(ctx, &rows, `SELECT * FROM category_mappings ORDER BY id`); err != nil {
		return nil, err
	}
	mappings := make([]*domain.CategoryMapping, 0, len(rows))
	for i := range rows {
		mappings = append(mappings, rows[i].toDomain())
	}
	return mappings, nil
}

func (a *CategoryMappingAdapter) GetByName(ctx context.Context, name string) (*domain.CategoryMapping, error) {
	var row categoryMappingRow
	err := a.db.GetContext(ctx, &row, `SELECT * FROM category_mappings WHERE category_name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (a *CategoryMappingAdapter) Upsert(ctx context.Context, m *domain.CategoryMapping) error {
	return a.db.QueryRowxContext(ctx, `
		INSERT INTO category_mappings (category_name, crm_field_type, crm_field_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (category_name) DO UPDATE
		SET crm_field_type = EXCLUDED.crm_field_type,
			crm_field_value = EXCLUDED.crm_field_value,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		m.CategoryName, m.CRMFieldType, m.CRMFieldValue,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

func (a *CategoryMappingAdapter) Delete(ctx context.Context, id int64) error {
	return requireAffected(a.db.ExecContext(ctx, `DELETE FROM category_mappings WHERE id = $1`, id))
}
