package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"crm_worker/core/domain"
	"crm_worker/core/port/out"
	"crm_worker/pkg/httputil"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// graphError is a non-2xx response from Microsoft Graph.
type graphError struct {
	Status int
	Body   string
}

func (e *graphError) Error() string {
	return fmt.Sprintf("graph API error: %d - %s", e.Status, e.Body)
}

// OutlookAdapter reads and writes Outlook message categories through Graph.
type OutlookAdapter struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
}

// NewOutlookAdapter creates an adapter against the public Graph endpoint.
// An empty baseURL selects graphBaseURL.
func NewOutlookAdapter(baseURL string) *OutlookAdapter {
	if baseURL == "" {
		baseURL = graphBaseURL
	}
	return &OutlookAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httputil.NewClient(httputil.OutlookClientConfig()),
		cb:      newBreaker("outlook-graph"),
	}
}

// authorized returns a client that sends accessToken as a bearer token.
func (a *OutlookAdapter) authorized(ctx context.Context, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}

type graphCategories struct {
	Categories []string `json:"categories"`
}

// FetchCategories returns the message's current Outlook categories.
func (a *OutlookAdapter) FetchCategories(ctx context.Context, accessToken, externalID string) ([]string, error) {
	var msg graphCategories
	path := fmt.Sprintf("/me/messages/%s?$select=categories", url.PathEscape(externalID))
	err := executeWithCircuitBreaker(a.cb, "outlook.fetch_categories", func() error {
		return a.do(ctx, accessToken, http.MethodGet, path, nil, &msg)
	})
	if err != nil {
		return nil, out.NewProviderError(domain.ProviderOutlook, "fetch_categories", statusCode(err), err)
	}
	return msg.Categories, nil
}

// AssignCategory adds category to the message. Graph replaces the whole
// list on PATCH, so the current categories are read first.
func (a *OutlookAdapter) AssignCategory(ctx context.Context, accessToken, externalID, category string) error {
	current, err := a.FetchCategories(ctx, accessToken, externalID)
	if err != nil {
		return err
	}
	for _, c := range current {
		if strings.EqualFold(c, category) {
			return nil
		}
	}

	body := graphCategories{Categories: append(current, category)}
	path := "/me/messages/" + url.PathEscape(externalID)
	err = executeWithCircuitBreaker(a.cb, "outlook.assign_category", func() error {
		return a.do(ctx, accessToken, http.MethodPatch, path, body, nil)
	})
	if err != nil {
		return out.NewProviderError(domain.ProviderOutlook, "assign_category", statusCode(err), err)
	}
	return nil
}

func (a *OutlookAdapter) do(ctx context.Context, accessToken, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.authorized(ctx, accessToken).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &graphError{Status: resp.StatusCode, Body: string(data)}
	}
	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}
