package http

import (
	"context"

	"crm_worker/core/domain"
	"crm_worker/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RuleAdmin is the authoring service behind the rule and mapping routes.
type RuleAdmin interface {
	ListRules(ctx context.Context) ([]*domain.Rule, error)
	GetRule(ctx context.Context, id int64) (*domain.Rule, error)
	CreateRule(ctx context.Context, rule *domain.Rule) error
	UpdateRule(ctx context.Context, rule *domain.Rule) error
	SetEnabled(ctx context.Context, id int64, enabled bool) (*domain.Rule, error)
	DeleteRule(ctx context.Context, id int64) error
	ListMappings(ctx context.Context) ([]*domain.CategoryMapping, error)
	UpsertMapping(ctx context.Context, m *domain.CategoryMapping) error
	DeleteMapping(ctx context.Context, id int64) error
}

// CacheInvalidator drops cached rules and mappings.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type RulesHandler struct {
	admin RuleAdmin
	cache CacheInvalidator
}

func NewRulesHandler(admin RuleAdmin, cache CacheInvalidator) *RulesHandler {
	return &RulesHandler{admin: admin, cache: cache}
}

func (h *RulesHandler) Register(router fiber.Router) {
	rules := router.Group("/rules")

	rules.Get("/", h.List)
	rules.Post("/", h.Create)
	rules.Post("/cache/invalidate", h.InvalidateCache)
	rules.Get("/:id<int>", h.Get)
	rules.Put("/:id<int>", h.Update)
	rules.Delete("/:id<int>", h.Delete)
	rules.Post("/:id<int>/enable", h.Enable)
	rules.Post("/:id<int>/disable", h.Disable)

	mappings := router.Group("/category-mappings")
	mappings.Get("/", h.ListMappings)
	mappings.Put("/", h.UpsertMapping)
	mappings.Delete("/:id<int>", h.DeleteMapping)
}

type ruleRequest struct {
	Name        string             `json:"name" validate:"required,max=200"`
	Description string             `json:"description" validate:"max=2000"`
	Priority    int                `json:"priority" validate:"min=-10000,max=10000"`
	Enabled     *bool              `json:"enabled"`
	Conditions  []domain.Condition `json:"conditions" validate:"required,min=1,dive"`
	Actions     []domain.Action    `json:"actions" validate:"required,min=1,dive"`
}

func (r *ruleRequest) apply(rule *domain.Rule) {
	rule.Name = r.Name
	rule.Description = r.Description
	rule.Priority = r.Priority
	rule.Conditions = r.Conditions
	rule.Actions = r.Actions
	if r.Enabled != nil {
		rule.Enabled = *r.Enabled
	}
}

type mappingRequest struct {
	CategoryName  string `json:"category_name" validate:"required,max=255"`
	CRMFieldType  string `json:"crm_field_type" validate:"required,max=64"`
	CRMFieldValue string `json:"crm_field_value" validate:"max=255"`
}

func (h *RulesHandler) List(c *fiber.Ctx) error {
	rules, err := h.admin.ListRules(c.Context())
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, rules, &response.Meta{Total: len(rules)})
}

func (h *RulesHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	rule, err := h.admin.GetRule(c.Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, rule)
}

func (h *RulesHandler) Create(c *fiber.Ctx) error {
	var req ruleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	rule := &domain.Rule{Enabled: true}
	req.apply(rule)
	if uid := GetUserID(c); uid != uuid.Nil {
		rule.CreatedBy = &uid
	}

	if err := h.admin.CreateRule(c.Context(), rule); err != nil {
		return err
	}
	return response.Created(c, rule)
}

func (h *RulesHandler) Update(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req ruleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	rule, err := h.admin.GetRule(c.Context(), id)
	if err != nil {
		return err
	}
	req.apply(rule)
	rule.ParseError = ""

	if err := h.admin.UpdateRule(c.Context(), rule); err != nil {
		return err
	}
	return response.OK(c, rule)
}

func (h *RulesHandler) Delete(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.admin.DeleteRule(c.Context(), id); err != nil {
		return err
	}
	return response.NoContent(c)
}

func (h *RulesHandler) Enable(c *fiber.Ctx) error  { return h.setEnabled(c, true) }
func (h *RulesHandler) Disable(c *fiber.Ctx) error { return h.setEnabled(c, false) }

func (h *RulesHandler) setEnabled(c *fiber.Ctx, enabled bool) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	rule, err := h.admin.SetEnabled(c.Context(), id, enabled)
	if err != nil {
		return err
	}
	return response.OK(c, rule)
}

func (h *RulesHandler) InvalidateCache(c *fiber.Ctx) error {
	if h.cache != nil {
		if err := h.cache.Invalidate(c.Context()); err != nil {
			return err
		}
	}
	return response.OK(c, fiber.Map{"invalidated": h.cache != nil})
}

func (h *RulesHandler) ListMappings(c *fiber.Ctx) error {
	mappings, err := h.admin.ListMappings(c.Context())
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, mappings, &response.Meta{Total: len(mappings)})
}

func (h *RulesHandler) UpsertMapping(c *fiber.Ctx) error {
	var req mappingRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	m := &domain.CategoryMapping{
		CategoryName:  req.CategoryName,
		CRMFieldType:  req.CRMFieldType,
		CRMFieldValue: req.CRMFieldValue,
	}
	if err := h.admin.UpsertMapping(c.Context(), m); err != nil {
		return err
	}
	return response.OK(c, m)
}

func (h *RulesHandler) DeleteMapping(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.admin.DeleteMapping(c.Context(), id); err != nil {
		return err
	}
	return response.NoContent(c)
}
