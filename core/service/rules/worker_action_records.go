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

// createLead creates at most one lead per (contact, conversation). Any lead
// for the same contact and source inside the dedup window also suppresses a
// new one.
func (e *ActionExecutor) createLead(ctx context.Context, ac *actionContext, action domain.Action) domain.ActionResult {
	contactID, fail := e.resolveContact(ctx, ac)
	if fail != nil {
		return *fail
	}
	source := firstNonEmpty(action.String("source"), ac.hint(domain.FieldTypeSource))
	conversationID := ac.msg.ConversationID

	if conversationID != "" {
		existing, err := e.store.Leads.FindByConversation(ctx, contactID, conversationID)
		if err != nil {
			return dbFailure("lookup lead by conversation", err)
		}
		if existing != nil {
			return reusedLead(contactID, existing, "lead exists for conversation")
		}
	}

	since := e.now().Add(-e.leadWindow)
	recent, err := e.store.Leads.FindRecentBySource(ctx, contactID, source, since)
	if err != nil {
		return dbFailure("lookup recent lead", err)
	}
	if recent != nil {
		return reusedLead(contactID, recent, "recent lead exists for source")
	}

	value, _ := action.Float("value")
	lead := &domain.Lead{
		ContactID:      contactID,
		ConversationID: conversationID,
		Source:         source,
		Status:         firstNonEmpty(action.String("status"), domain.LeadStatusNew),
		AssignedTo:     action.String("assigned_to"),
		Notes:          action.String("notes"),
		Value:          value,
		EmailID:        ac.messageID(),
	}
	err = e.store.Leads.Create(ctx, lead)
	if errors.Is(err, out.ErrDuplicate) && conversationID != "" {
		winner, lookupErr := e.store.Leads.FindByConversation(ctx, contactID, conversationID)
		if lookupErr != nil {
			return dbFailure("re-read lead after conflict", lookupErr)
		}
		if winner != nil {
			return reusedLead(contactID, winner, "lead created concurrently for conversation")
		}
	}
	if err != nil {
		return dbFailure("create lead", err)
	}
	return domain.ActionResult{
		Success:   true,
		Created:   true,
		ContactID: idPtr(contactID),
		RecordID:  idPtr(lead.ID),
	}
}

func reusedLead(contactID int64, lead *domain.Lead, reason string) domain.ActionResult {
	return domain.ActionResult{
		Success:   true,
		Created:   false,
		ContactID: idPtr(contactID),
		RecordID:  idPtr(lead.ID),
		Message:   reason,
	}
}

func (e *ActionExecutor) createActivity(ctx context.Context, ac *actionContext, action domain.Action) domain.ActionResult {
	contactID, fail := e.existingContact(ctx, ac)
	if fail != nil {
		return *fail
	}

	user := action.String("user")
	if user == "" && ac.actingUser != uuid.Nil {
		user = ac.actingUser.String()
	}
	activity := &domain.Activity{
		ContactID:      contactID,
		OpportunityID:  ac.obs.OpportunityID(ac.msg),
		Type:           firstNonEmpty(action.String("type"), "email"),
		Description:    firstNonEmpty(action.String("description"), fmt.Sprintf("Email: %s", ac.msg.Subject)),
		Direction:      ac.direction(),
		ConversationID: ac.msg.ConversationID,
		EmailID:        ac.messageID(),
		User:           user,
	}
	if err := e.store.Activities.Create(ctx, activity); err != nil {
		return dbFailure("create activity", err)
	}
	return domain.ActionResult{
		Success:   true,
		Created:   true,
		ContactID: idPtr(contactID),
		RecordID:  idPtr(activity.ID),
	}
}

// createFollowUp needs a due date from params or the message flag, and an
// existing contact. It attaches to the contact's most recent lead if any.
func (e *ActionExecutor) createFollowUp(ctx context.Context, ac *actionContext, action domain.Action) domain.ActionResult {
	due, ok := action.Time("due_date")
	if !ok {
		if !ac.msg.IsFlagged || ac.msg.FlagDueDate == nil {
			return failure(apperr.CodeMissingField, "follow-up needs due_date or a flagged message with a due date")
		}
		due = *ac.msg.FlagDueDate
	}

	contactID, fail := e.existingContact(ctx, ac)
	if fail != nil {
		return *fail
	}

	var leadID *int64
	lead, err := e.store.Leads.LatestForContact(ctx, contactID)
	if err != nil {
		return dbFailure("lookup latest lead", err)
	}
	if lead != nil {
		leadID = idPtr(lead.ID)
	}

	followUp := &domain.FollowUp{
		ContactID: contactID,
		LeadID:    leadID,
		Type:      firstNonEmpty(action.String("type"), "email"),
		Notes:     firstNonEmpty(action.String("notes"), ac.msg.Subject),
		DueDate:   due,
		Status:    domain.FollowUpStatusPending,
		EmailID:   ac.messageID(),
	}
	if err := e.store.FollowUps.Create(ctx, followUp); err != nil {
		return dbFailure("create follow-up", err)
	}
	return domain.ActionResult{
		Success:   true,
		Created:   true,
		ContactID: idPtr(contactID),
		RecordID:  idPtr(followUp.ID),
	}
}
