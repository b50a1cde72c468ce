package rules

import (
	"context"
	"fmt"
	"time"

	"crm_worker/core/domain"
	"crm_worker/core/port/out"
	"crm_worker/pkg/apperr"
	"crm_worker/pkg/logger"

	"github.com/google/uuid"
)

// DefaultLeadDedupWindow is how far back a lead for the same contact and
// source suppresses a new one when the message has no conversation.
const DefaultLeadDedupWindow = 7 * 24 * time.Hour

// actionContext carries one message through the actions of one pass.
type actionContext struct {
	msg         *domain.Message
	obs         *ObservedState
	hints       *domain.CategoryMappingResult
	accessToken string
	actingUser  uuid.UUID
}

type actionHandler func(ctx context.Context, ac *actionContext, action domain.Action) domain.ActionResult

// ActionExecutor performs the side effects of matched rules against the CRM store.
type ActionExecutor struct {
	store      out.CRMStore
	tagger     out.CategoryProvider
	leadWindow time.Duration
	now        func() time.Time
	handlers   map[domain.ActionType]actionHandler
}

// ActionExecutorConfig configures an ActionExecutor.
type ActionExecutorConfig struct {
	// Tagger writes categories back to the provider. Optional.
	Tagger          out.CategoryProvider
	LeadDedupWindow time.Duration
	Now             func() time.Time
}

// NewActionExecutor creates an action executor.
func NewActionExecutor(store out.CRMStore, cfg ActionExecutorConfig) *ActionExecutor {
	if cfg.LeadDedupWindow <= 0 {
		cfg.LeadDedupWindow = DefaultLeadDedupWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &ActionExecutor{
		store:      store,
		tagger:     cfg.Tagger,
		leadWindow: cfg.LeadDedupWindow,
		now:        cfg.Now,
		handlers:   make(map[domain.ActionType]actionHandler, len(domain.ActionTypes)),
	}
	for _, t := range domain.ActionTypes {
		e.handlers[t] = e.handlerFor(t)
	}
	return e
}

// handlerFor is the single dispatch point from action kind to handler.
// Every domain.ActionTypes entry must have a case.
func (e *ActionExecutor) handlerFor(t domain.ActionType) actionHandler {
	switch t {
	case domain.ActionAssignCategory:
		return e.assignCategory
	case domain.ActionCreateContact:
		return e.createContact
	case domain.ActionCreateOpportunity:
		return e.createOpportunity
	case domain.ActionCreateLead:
		return e.createLead
	case domain.ActionCreateActivity:
		return e.createActivity
	case domain.ActionCreateFollowUp:
		return e.createFollowUp
	case domain.ActionUpdateOpportunityStage:
		return e.updateOpportunityStage
	case domain.ActionLinkToOpportunity:
		return e.linkToOpportunity
	case domain.ActionMarkOpportunityWon:
		return e.markOpportunityWon
	case domain.ActionCreateCommissionSnapshot:
		return e.createCommissionSnapshot
	}
	return nil
}

// Execute runs one action. It never returns an error: failures come back as
// ActionResult{Success: false}.
func (e *ActionExecutor) Execute(ctx context.Context, ac *actionContext, action domain.Action) domain.ActionResult {
	handler, ok := e.handlers[action.Type]
	if !ok || handler == nil {
		logger.Warn("[ActionExecutor.Execute] unknown action type %q", action.Type)
		return failure(apperr.CodeUnknownAction, "unknown action type %q", action.Type)
	}
	return handler(ctx, ac, action)
}

func failure(code, format string, args ...any) domain.ActionResult {
	return domain.ActionResult{
		Success: false,
		Code:    code,
		Error:   fmt.Sprintf(format, args...),
	}
}

func dbFailure(op string, err error) domain.ActionResult {
	return failure(apperr.CodeDatabaseError, "%s: %v", op, err)
}

func idPtr(id int64) *int64 {
	return &id
}

// firstNonEmpty returns the first non-empty argument.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (ac *actionContext) hint(field string) string {
	if ac.hints == nil {
		return ""
	}
	return ac.hints.MappedFields[field]
}

func (ac *actionContext) messageID() *int64 {
	if ac.msg.ID == 0 {
		return nil
	}
	return idPtr(ac.msg.ID)
}

func (ac *actionContext) direction() string {
	if ac.msg.Direction == "" {
		return domain.DirectionInbound
	}
	return ac.msg.Direction
}
