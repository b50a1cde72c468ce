package rules

import (
	"context"
	"errors"

	"crm_worker/core/domain"
	"crm_worker/core/port/out"
	"crm_worker/pkg/apperr"
	"crm_worker/pkg/logger"
)

// contactOutcome is the resolved contact of a message and whether this pass inserted it.
type contactOutcome struct {
	id      int64
	created bool
}

func (e *ActionExecutor) createContact(ctx context.Context, ac *actionContext, action domain.Action) domain.ActionResult {
	res, fail := e.findOrCreateContact(ctx, ac, action.String("contact_type"))
	if fail != nil {
		return *fail
	}
	return domain.ActionResult{
		Success:   true,
		Created:   res.created,
		ContactID: idPtr(res.id),
	}
}

// findOrCreateContact implements the contact dedup contract: one contact per
// normalized sender email. A unique violation on insert means a concurrent
// pass won; the winner is re-read and linked instead.
func (e *ActionExecutor) findOrCreateContact(ctx context.Context, ac *actionContext, contactType string) (*contactOutcome, *domain.ActionResult) {
	email := domain.NormalizeEmail(ac.msg.FromEmail)
	if email == "" {
		f := failure(apperr.CodeMissingField, "message has no sender address")
		return nil, &f
	}

	existing, err := e.store.Contacts.GetByEmail(ctx, email)
	if err != nil {
		f := dbFailure("lookup contact", err)
		return nil, &f
	}
	if existing != nil {
		if err := e.linkContact(ctx, ac, existing.ID); err != nil {
			f := dbFailure("link contact", err)
			return nil, &f
		}
		return &contactOutcome{id: existing.ID}, nil
	}

	contact := &domain.Contact{
		Email:       email,
		ContactType: contactType,
		Source:      ac.hint(domain.FieldTypeSource),
	}
	err = e.store.Contacts.Create(ctx, contact)
	if errors.Is(err, out.ErrDuplicate) {
		winner, lookupErr := e.store.Contacts.GetByEmail(ctx, email)
		if lookupErr != nil {
			f := dbFailure("re-read contact after conflict", lookupErr)
			return nil, &f
		}
		if winner == nil {
			f := failure(apperr.CodeConflict, "contact for %s conflicted but could not be re-read", email)
			return nil, &f
		}
		logger.Debug("[ActionExecutor.createContact] conflict on %s, linking to contact %d", email, winner.ID)
		if err := e.linkContact(ctx, ac, winner.ID); err != nil {
			f := dbFailure("link contact", err)
			return nil, &f
		}
		return &contactOutcome{id: winner.ID}, nil
	}
	if err != nil {
		f := dbFailure("create contact", err)
		return nil, &f
	}

	if err := e.linkContact(ctx, ac, contact.ID); err != nil {
		f := dbFailure("link contact", err)
		return nil, &f
	}
	return &contactOutcome{id: contact.ID, created: true}, nil
}

// linkContact records the contact for the rest of the pass and links the
// message when it has no contact yet.
func (e *ActionExecutor) linkContact(ctx context.Context, ac *actionContext, contactID int64) error {
	if ac.obs.ContactID(ac.msg) == nil && ac.msg.ID != 0 {
		if err := e.store.Messages.SetContact(ctx, ac.msg.ID, contactID); err != nil {
			return err
		}
	}
	if ac.obs.ContactID(ac.msg) == nil {
		ac.obs.setContact(contactID)
	}
	return nil
}

// resolveContact returns the message's contact, creating it from the sender when absent.
func (e *ActionExecutor) resolveContact(ctx context.Context, ac *actionContext) (int64, *domain.ActionResult) {
	if id := ac.obs.ContactID(ac.msg); id != nil {
		return *id, nil
	}
	res, fail := e.findOrCreateContact(ctx, ac, "")
	if fail != nil {
		return 0, fail
	}
	return res.id, nil
}

// existingContact returns the message's contact without creating one.
func (e *ActionExecutor) existingContact(ctx context.Context, ac *actionContext) (int64, *domain.ActionResult) {
	if id := ac.obs.ContactID(ac.msg); id != nil {
		return *id, nil
	}
	email := domain.NormalizeEmail(ac.msg.FromEmail)
	if email != "" {
		c, err := e.store.Contacts.GetByEmail(ctx, email)
		if err != nil {
			f := dbFailure("lookup contact", err)
			return 0, &f
		}
		if c != nil {
			return c.ID, nil
		}
	}
	f := failure(apperr.CodeContactNotFound, "no contact for message %d", ac.msg.ID)
	return 0, &f
}
