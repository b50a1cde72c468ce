package provider

import (
	"context"
	"strings"

	"crm_worker/core/domain"
	"crm_worker/core/port/out"
)

// CategoryClient is one provider's category API.
type CategoryClient interface {
	FetchCategories(ctx context.Context, accessToken, externalID string) ([]string, error)
	AssignCategory(ctx context.Context, accessToken, externalID, category string) error
}

// Router implements out.CategoryProvider by dispatching on the message's
// provider name.
type Router struct {
	clients         map[string]CategoryClient
	defaultProvider string
}

// RouterConfig holds the router's clients.
type RouterConfig struct {
	Outlook CategoryClient
	Gmail   CategoryClient
	// DefaultProvider is used for messages that carry no provider name.
	DefaultProvider string
}

// NewRouter creates a Router. Nil clients are left unregistered.
func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		clients:         make(map[string]CategoryClient),
		defaultProvider: strings.ToLower(cfg.DefaultProvider),
	}
	if r.defaultProvider == "" {
		r.defaultProvider = domain.ProviderOutlook
	}
	if cfg.Outlook != nil {
		r.clients[domain.ProviderOutlook] = cfg.Outlook
	}
	if cfg.Gmail != nil {
		r.clients[domain.ProviderGoogle] = cfg.Gmail
		r.clients["gmail"] = cfg.Gmail
	}
	return r
}

func (r *Router) client(provider string) (CategoryClient, bool) {
	name := strings.ToLower(strings.TrimSpace(provider))
	if name == "" {
		name = r.defaultProvider
	}
	c, ok := r.clients[name]
	return c, ok
}

func (r *Router) FetchCategories(ctx context.Context, provider, accessToken, externalID string) ([]string, error) {
	c, ok := r.client(provider)
	if !ok {
		return nil, out.ErrCategoryUnsupported
	}
	return c.FetchCategories(ctx, accessToken, externalID)
}

func (r *Router) AssignCategory(ctx context.Context, provider, accessToken, externalID, category string) error {
	c, ok := r.client(provider)
	if !ok {
		return out.ErrCategoryUnsupported
	}
	return c.AssignCategory(ctx, accessToken, externalID, category)
}

var _ out.CategoryProvider = (*Router)(nil)
