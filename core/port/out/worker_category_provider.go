package out

import (
	"context"
	"errors"
	"fmt"
)

// ErrCategoryUnsupported is returned when no provider can tag the message.
var ErrCategoryUnsupported = errors.New("category assignment not supported")

// CategoryProvider reads and writes provider-side categories of a message.
// accessToken is opaque and passed through unchanged.
type CategoryProvider interface {
	FetchCategories(ctx context.Context, provider, accessToken, externalID string) ([]string, error)
	AssignCategory(ctx context.Context, provider, accessToken, externalID, category string) error
}

// ProviderError represents an error from an external mail provider.
type ProviderError struct {
	Provider  string
	Operation string
	Code      int
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed (%d): %v", e.Provider, e.Operation, e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a provider error.
func NewProviderError(provider, operation string, code int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Operation: operation, Code: code, Err: err}
}
