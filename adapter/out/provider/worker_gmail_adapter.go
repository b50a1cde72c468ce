package provider

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"crm_worker/core/domain"
	"crm_worker/core/port/out"
	"crm_worker/pkg/httputil"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailAdapter maps categories onto Gmail user labels.
type GmailAdapter struct {
	endpoint string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker

	createMu sync.Mutex
}

// NewGmailAdapter creates a Gmail adapter. An empty endpoint selects the
// public Gmail API.
func NewGmailAdapter(endpoint string) *GmailAdapter {
	return &GmailAdapter{
		endpoint: endpoint,
		client:   httputil.NewClient(httputil.GmailClientConfig()),
		cb:       newBreaker("gmail-api"),
	}
}

func (a *GmailAdapter) getService(ctx context.Context, accessToken string) (*gmail.Service, error) {
	base := context.WithValue(ctx, oauth2.HTTPClient, a.client)
	httpClient := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	return gmail.NewService(ctx, opts...)
}

// FetchCategories returns the names of the user labels on the message.
// System labels such as INBOX and UNREAD are not categories.
func (a *GmailAdapter) FetchCategories(ctx context.Context, accessToken, externalID string) ([]string, error) {
	svc, err := a.getService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var msg *gmail.Message
	var labels []*gmail.Label
	err = executeWithCircuitBreaker(a.cb, "gmail.fetch_categories", func() error {
		var err error
		msg, err = svc.Users.Messages.Get("me", externalID).Format("minimal").Context(ctx).Do()
		if err != nil {
			return err
		}
		labels, err = a.listLabels(ctx, svc)
		return err
	})
	if err != nil {
		return nil, out.NewProviderError(domain.ProviderGoogle, "fetch_categories", statusCode(err), err)
	}

	names := make(map[string]string, len(labels))
	for _, l := range labels {
		if l.Type == "user" {
			names[l.Id] = l.Name
		}
	}
	categories := make([]string, 0, len(msg.LabelIds))
	for _, id := range msg.LabelIds {
		if name, ok := names[id]; ok {
			categories = append(categories, name)
		}
	}
	return categories, nil
}

// AssignCategory applies the user label named category, creating it first
// when it does not exist.
func (a *GmailAdapter) AssignCategory(ctx context.Context, accessToken, externalID, category string) error {
	svc, err := a.getService(ctx, accessToken)
	if err != nil {
		return err
	}

	err = executeWithCircuitBreaker(a.cb, "gmail.assign_category", func() error {
		labelID, err := a.ensureLabel(ctx, svc, category)
		if err != nil {
			return err
		}
		_, err = svc.Users.Messages.Modify("me", externalID, &gmail.ModifyMessageRequest{
			AddLabelIds: []string{labelID},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return out.NewProviderError(domain.ProviderGoogle, "assign_category", statusCode(err), err)
	}
	return nil
}

func (a *GmailAdapter) listLabels(ctx context.Context, svc *gmail.Service) ([]*gmail.Label, error) {
	resp, err := svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Labels, nil
}

func (a *GmailAdapter) ensureLabel(ctx context.Context, svc *gmail.Service, name string) (string, error) {
	a.createMu.Lock()
	defer a.createMu.Unlock()

	labels, err := a.listLabels(ctx, svc)
	if err != nil {
		return "", err
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, name) {
			return l.Id, nil
		}
	}

	created, err := svc.Users.Labels.Create("me", &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}
