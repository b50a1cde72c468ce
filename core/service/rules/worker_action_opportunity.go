package rules

import (
	"context"
	"errors"
	"fmt"

	"crm_worker/core/domain"
	"crm_worker/core/port/out"
	"crm_worker/pkg/apperr"

	"github.com/google/uuid"
)

// createOpportunity always inserts: every matching message is a separate enquiry.
func (e *ActionExecutor) createOpportunity(ctx context.Context, ac *actionContext, action domain.Action) domain.ActionResult {
	contactID, fail := e.resolveContact(ctx, ac)
	if fail != nil {
		return *fail
	}

	var stageID *int64
	if stageName := firstNonEmpty(action.String("stage_name"), ac.hint(domain.FieldTypeStage)); stageName != "" {
		stage, err := e.store.Stages.GetByName(ctx, stageName)
		if err != nil {
			return dbFailure("lookup stage", err)
		}
		if stage != nil {
			stageID = idPtr(stage.ID)
		}
	}

	value, _ := action.Float("value")
	opp := &domain.Opportunity{
		ContactID:  contactID,
		Title:      firstNonEmpty(action.String("title"), ac.msg.Subject, fmt.Sprintf("Enquiry from %s", ac.msg.FromEmail)),
		Source:     firstNonEmpty(action.String("source"), ac.hint(domain.FieldTypeSource)),
		SubSource:  firstNonEmpty(action.String("sub_source"), ac.hint(domain.FieldTypeSubSource)),
		StageID:    stageID,
		Status:     domain.OpportunityStatusOpen,
		Value:      value,
		AssignedTo: action.String("assigned_to"),
		EmailID:    ac.messageID(),
	}
	if err := e.store.Opportunities.Create(ctx, opp); err != nil {
		return dbFailure("create opportunity", err)
	}

	if ac.obs.OpportunityID(ac.msg) == nil && ac.msg.ID != 0 {
		if err := e.store.Messages.SetOpportunity(ctx, ac.msg.ID, opp.ID); err != nil {
			return dbFailure("link opportunity", err)
		}
	}
	ac.obs.setOpportunity(opp.ID)

	return domain.ActionResult{
		Success:       true,
		Created:       true,
		ContactID:     idPtr(contactID),
		OpportunityID: idPtr(opp.ID),
		RecordID:      idPtr(opp.ID),
	}
}

// targetOpportunity resolves the opportunity an action applies to: explicit
// param, then one touched earlier in the pass, then the message's own.
func targetOpportunity(ac *actionContext, action domain.Action) (int64, bool) {
	if id, ok := action.Int64("opportunity_id"); ok {
		return id, true
	}
	if id := ac.obs.OpportunityID(ac.msg); id != nil {
		return *id, true
	}
	return 0, false
}

func (e *ActionExecutor) updateOpportunityStage(ctx context.Context, ac *actionContext, action domain.Action) domain.ActionResult {
	stageName := firstNonEmpty(action.String("stage_name"), ac.hint(domain.FieldTypeStage))
	if stageName == "" {
		return failure(apperr.CodeMissingField, "missing required param: stage_name")
	}
	stage, err := e.store.Stages.GetByName(ctx, stageName)
	if err != nil {
		return dbFailure("lookup stage", err)
	}
	if stage == nil {
		return failure(apperr.CodeStageNotFound, "stage %q not found", stageName)
	}

	oppID, ok := targetOpportunity(ac, action)
	if !ok {
		return failure(apperr.CodeOpportunityNotFound, "no opportunity to update for message %d", ac.msg.ID)
	}
	if err := e.store.Opportunities.UpdateStage(ctx, oppID, stage.ID); err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return failure(apperr.CodeOpportunityNotFound, "opportunity %d not found", oppID)
		}
		return dbFailure("update stage", err)
	}
	return domain.ActionResult{
		Success:       true,
		OpportunityID: idPtr(oppID),
		RecordID:      idPtr(stage.ID),
	}
}

func (e *ActionExecutor) linkToOpportunity(ctx context.Context, ac *actionContext, action domain.Action) domain.ActionResult {
	oppID, ok := targetOpportunity(ac, action)
	if !ok {
		return failure(apperr.CodeMissingField, "missing required param: opportunity_id")
	}
	if ac.msg.ID == 0 {
		return failure(apperr.CodeMissingField, "message has no id")
	}
	if err := e.store.Messages.SetOpportunity(ctx, ac.msg.ID, oppID); err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return failure(apperr.CodeNotFound, "message %d not found", ac.msg.ID)
		}
		return dbFailure("link opportunity", err)
	}
	ac.obs.setOpportunity(oppID)
	return domain.ActionResult{
		Success:       true,
		OpportunityID: idPtr(oppID),
	}
}

// markOpportunityWon does not check the current status.
func (e *ActionExecutor) markOpportunityWon(ctx context.Context, ac *actionContext, action domain.Action) domain.ActionResult {
	oppID, ok := targetOpportunity(ac, action)
	if !ok {
		return failure(apperr.CodeOpportunityNotFound, "no opportunity to mark won for message %d", ac.msg.ID)
	}
	if err := e.store.Opportunities.MarkWon(ctx, oppID, e.now()); err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return failure(apperr.CodeOpportunityNotFound, "opportunity %d not found", oppID)
		}
		return dbFailure("mark won", err)
	}
	return domain.ActionResult{
		Success:       true,
		OpportunityID: idPtr(oppID),
	}
}

// createCommissionSnapshot writes one snapshot per (opportunity, message).
// Reprocessing a message reuses its snapshot; another message winning the
// same opportunity adds a new one to the history.
func (e *ActionExecutor) createCommissionSnapshot(ctx context.Context, ac *actionContext, action domain.Action) domain.ActionResult {
	oppID, ok := targetOpportunity(ac, action)
	if !ok {
		return failure(apperr.CodeOpportunityNotFound, "no opportunity to snapshot for message %d", ac.msg.ID)
	}
	opp, err := e.store.Opportunities.GetByID(ctx, oppID)
	if err != nil {
		return dbFailure("lookup opportunity", err)
	}
	if opp == nil {
		return failure(apperr.CodeOpportunityNotFound, "opportunity %d not found", oppID)
	}

	if ac.msg.ID != 0 {
		existing, err := e.store.Commissions.GetByOpportunityAndEmail(ctx, oppID, ac.msg.ID)
		if err != nil {
			return dbFailure("lookup snapshot", err)
		}
		if existing != nil {
			return domain.ActionResult{
				Success:       true,
				OpportunityID: idPtr(oppID),
				RecordID:      idPtr(existing.ID),
				Message:       "snapshot exists for this message",
			}
		}
	}

	snap := &domain.CommissionSnapshot{
		OpportunityID: oppID,
		EmailID:       ac.messageID(),
		Value:         opp.Value,
		Source:        opp.Source,
		SubSource:     opp.SubSource,
		LockedAt:      e.now(),
	}
	if ac.actingUser != uuid.Nil {
		u := ac.actingUser
		snap.LockedBy = &u
	}
	err = e.store.Commissions.Create(ctx, snap)
	if errors.Is(err, out.ErrDuplicate) && ac.msg.ID != 0 {
		winner, lookupErr := e.store.Commissions.GetByOpportunityAndEmail(ctx, oppID, ac.msg.ID)
		if lookupErr == nil && winner != nil {
			return domain.ActionResult{
				Success:       true,
				OpportunityID: idPtr(oppID),
				RecordID:      idPtr(winner.ID),
				Message:       "snapshot created concurrently",
			}
		}
	}
	if err != nil {
		return dbFailure("create snapshot", err)
	}
	return domain.ActionResult{
		Success:       true,
		Created:       true,
		OpportunityID: idPtr(oppID),
		RecordID:      idPtr(snap.ID),
	}
}
