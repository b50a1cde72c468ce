package rules

import (
	"context"
	"errors"

	"crm_worker/core/domain"
	"crm_worker/core/port/out"
	"crm_worker/pkg/apperr"
)

// assignCategory tags the message on the provider and records the category
// locally. Without a tagger or an access token it reports NOT_IMPLEMENTED.
func (e *ActionExecutor) assignCategory(ctx context.Context, ac *actionContext, action domain.Action) domain.ActionResult {
	category := action.String("category")
	if category == "" {
		return failure(apperr.CodeMissingField, "missing required param: category")
	}
	if containsFold(ac.obs.Categories(ac.msg), category) {
		return domain.ActionResult{Success: true, Message: "category already assigned"}
	}
	if e.tagger == nil || ac.accessToken == "" || ac.msg.ExternalID == "" {
		return failure(apperr.CodeNotImplemented, "provider category assignment unavailable for message %d", ac.msg.ID)
	}

	err := e.tagger.AssignCategory(ctx, ac.msg.Provider, ac.accessToken, ac.msg.ExternalID, category)
	if errors.Is(err, out.ErrCategoryUnsupported) {
		return failure(apperr.CodeNotImplemented, "provider %q cannot assign categories", ac.msg.Provider)
	}
	if err != nil {
		return failure(apperr.CodeExternalError, "assign category: %v", err)
	}

	ac.obs.addCategory(category)
	return domain.ActionResult{Success: true, Created: true}
}
