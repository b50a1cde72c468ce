package http

import (
	"context"
	"time"

	"crm_worker/adapter/out/mongodb"
	"crm_worker/core/domain"
	"crm_worker/core/port/in"
	"crm_worker/core/port/out"
	"crm_worker/pkg/apperr"
	"crm_worker/pkg/logger"
	"crm_worker/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// RunReader reads the rule-run audit log.
type RunReader interface {
	Recent(ctx context.Context, emailID int64, limit int64) ([]mongodb.RuleRun, error)
}

// ProcessingHandler exposes processing triggers, dry-run evaluation and the
// run log. Triggers publish a job unless ?sync=true or no producer is wired.
type ProcessingHandler struct {
	engine   in.RulesEngine
	producer out.JobProducer
	runs     RunReader
}

func NewProcessingHandler(engine in.RulesEngine, producer out.JobProducer, runs RunReader) *ProcessingHandler {
	return &ProcessingHandler{engine: engine, producer: producer, runs: runs}
}

func (h *ProcessingHandler) Register(router fiber.Router) {
	rules := router.Group("/rules")

	rules.Post("/process", h.Process)
	rules.Post("/reprocess", h.Reprocess)
	rules.Post("/inbox", h.ProcessInbox)
	rules.Post("/test", h.Test)
	rules.Get("/runs", h.Runs)
}

type processRequest struct {
	MessageIDs []int64 `json:"message_ids" validate:"required,min=1,max=500,dive,gt=0"`
	Force      bool    `json:"force"`
}

type testRequest struct {
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	FromEmail      string   `json:"from_email"`
	ToEmail        string   `json:"to_email"`
	Categories     []string `json:"categories"`
	ContactID      *int64   `json:"contact_id"`
	OpportunityID  *int64   `json:"opportunity_id"`
	ConversationID string   `json:"conversation_id"`
	Direction      string   `json:"direction" validate:"omitempty,oneof=inbound outbound"`
	FolderID       string   `json:"folder_id"`
	IsFlagged      bool     `json:"is_flagged"`
	Provider       string   `json:"provider" validate:"omitempty,oneof=outlook google gmail"`
}

type matchedRule struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

func (h *ProcessingHandler) options(c *fiber.Ctx, force bool) in.ProcessOptions {
	return in.ProcessOptions{
		AccessToken: providerToken(c),
		Force:       force,
		ActingUser:  GetUserID(c),
	}
}

func (h *ProcessingHandler) async(c *fiber.Ctx) bool {
	return h.producer != nil && !wantSync(c)
}

func (h *ProcessingHandler) Process(c *fiber.Ctx) error {
	var req processRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if h.async(c) {
		job := &out.ProcessEmailJob{
			MessageIDs:  req.MessageIDs,
			AccessToken: providerToken(c),
			Force:       req.Force,
			RequestedBy: requestedBy(c),
		}
		if err := h.producer.PublishProcessEmail(c.Context(), job); err != nil {
			return apperr.ExternalError("job queue", err)
		}
		return response.Accepted(c, fiber.Map{"queued": len(req.MessageIDs)})
	}

	summary, err := h.engine.ProcessEmailsByID(c.Context(), req.MessageIDs, h.options(c, req.Force))
	if err != nil {
		return apperr.InternalWithError(err)
	}
	return response.OK(c, summary)
}

func (h *ProcessingHandler) Reprocess(c *fiber.Ctx) error {
	if h.async(c) {
		job := &out.ReprocessJob{AccessToken: providerToken(c), RequestedBy: requestedBy(c)}
		if err := h.producer.PublishReprocess(c.Context(), job); err != nil {
			return apperr.ExternalError("job queue", err)
		}
		return response.Accepted(c, fiber.Map{"queued": true})
	}

	summary, err := h.engine.ReprocessAllEmails(c.Context(), h.options(c, false))
	if err != nil {
		return apperr.InternalWithError(err)
	}
	return response.OK(c, summary)
}

func (h *ProcessingHandler) ProcessInbox(c *fiber.Ctx) error {
	if h.async(c) {
		job := &out.ProcessInboxJob{AccessToken: providerToken(c), RequestedBy: requestedBy(c)}
		if err := h.producer.PublishProcessInbox(c.Context(), job); err != nil {
			return apperr.ExternalError("job queue", err)
		}
		return response.Accepted(c, fiber.Map{"queued": true})
	}

	summary, err := h.engine.ProcessAllInboxEmails(c.Context(), h.options(c, true))
	if err != nil {
		return apperr.InternalWithError(err)
	}
	return response.OK(c, summary)
}

// Test evaluates the enabled rules against a supplied message without
// executing any action.
func (h *ProcessingHandler) Test(c *fiber.Ctx) error {
	var req testRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	msg := &domain.Message{
		Subject:        req.Subject,
		Body:           req.Body,
		FromEmail:      req.FromEmail,
		ToEmail:        req.ToEmail,
		Categories:     req.Categories,
		ContactID:      req.ContactID,
		OpportunityID:  req.OpportunityID,
		ConversationID: req.ConversationID,
		Direction:      req.Direction,
		FolderID:       req.FolderID,
		IsFlagged:      req.IsFlagged,
		Provider:       req.Provider,
		ReceivedAt:     time.Now().UTC(),
	}
	if msg.Direction == "" {
		msg.Direction = domain.DirectionInbound
	}

	matched, err := h.engine.TestRules(c.Context(), msg)
	if err != nil {
		return apperr.InternalWithError(err)
	}

	result := make([]matchedRule, 0, len(matched))
	for _, r := range matched {
		result = append(result, matchedRule{ID: r.ID, Name: r.Name, Priority: r.Priority})
	}
	logger.Debug("[ProcessingHandler.Test] %d rules matched", len(result))
	return response.OK(c, fiber.Map{"matched_rules": result})
}

func (h *ProcessingHandler) Runs(c *fiber.Ctx) error {
	if h.runs == nil {
		return apperr.NotImplemented("rule run log")
	}
	emailID := int64(c.QueryInt("email_id", 0))
	if emailID <= 0 {
		return apperr.InvalidInput("email_id", "must be a positive integer")
	}

	runs, err := h.runs.Recent(c.Context(), emailID, int64(c.QueryInt("limit", 20)))
	if err != nil {
		return apperr.ExternalError("rule run log", err)
	}
	return response.OK(c, runs)
}
