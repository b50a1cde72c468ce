package http

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"crm_worker/core/domain"
	"crm_worker/core/port/in"
	"crm_worker/core/port/out"
	"crm_worker/infra/middleware"
	"crm_worker/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

type fakeAdmin struct {
	rules    map[int64]*domain.Rule
	mappings []*domain.CategoryMapping
	nextID   int64
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{rules: map[int64]*domain.Rule{}, nextID: 1}
}

func (f *fakeAdmin) ListRules(ctx context.Context) ([]*domain.Rule, error) {
	var rules []*domain.Rule
	for _, r := range f.rules {
		rules = append(rules, r)
	}
	return rules, nil
}

func (f *fakeAdmin) GetRule(ctx context.Context, id int64) (*domain.Rule, error) {
	r, ok := f.rules[id]
	if !ok {
		return nil, apperr.NotFound("rule")
	}
	return r, nil
}

func (f *fakeAdmin) CreateRule(ctx context.Context, rule *domain.Rule) error {
	rule.ID = f.nextID
	f.nextID++
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeAdmin) UpdateRule(ctx context.Context, rule *domain.Rule) error {
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeAdmin) SetEnabled(ctx context.Context, id int64, enabled bool) (*domain.Rule, error) {
	r, err := f.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Enabled = enabled
	return r, nil
}

func (f *fakeAdmin) DeleteRule(ctx context.Context, id int64) error {
	if _, ok := f.rules[id]; !ok {
		return apperr.NotFound("rule")
	}
	delete(f.rules, id)
	return nil
}

func (f *fakeAdmin) ListMappings(ctx context.Context) ([]*domain.CategoryMapping, error) {
	return f.mappings, nil
}

func (f *fakeAdmin) UpsertMapping(ctx context.Context, m *domain.CategoryMapping) error {
	f.mappings = append(f.mappings, m)
	return nil
}

func (f *fakeAdmin) DeleteMapping(ctx context.Context, id int64) error { return nil }

type fakeEngine struct {
	processedIDs []int64
	reprocessed  int
	matched      []*domain.Rule
	tested       *domain.Message
}

func (f *fakeEngine) ProcessEmail(ctx context.Context, msg *domain.Message, opts in.ProcessOptions) (*domain.EmailResult, error) {
	return &domain.EmailResult{Success: true, EmailID: msg.ID}, nil
}

func (f *fakeEngine) ProcessEmails(ctx context.Context, msgs []*domain.Message, opts in.ProcessOptions) (*domain.BatchSummary, error) {
	return &domain.BatchSummary{}, nil
}

func (f *fakeEngine) ProcessEmailsByID(ctx context.Context, ids []int64, opts in.ProcessOptions) (*domain.BatchSummary, error) {
	f.processedIDs = append(f.processedIDs, ids...)
	return &domain.BatchSummary{Processed: len(ids)}, nil
}

func (f *fakeEngine) ReprocessAllEmails(ctx context.Context, opts in.ProcessOptions) (*domain.BatchSummary, error) {
	f.reprocessed++
	return &domain.BatchSummary{}, nil
}

func (f *fakeEngine) ProcessAllInboxEmails(ctx context.Context, opts in.ProcessOptions) (*domain.BatchSummary, error) {
	return &domain.BatchSummary{}, nil
}

func (f *fakeEngine) TestRules(ctx context.Context, msg *domain.Message) ([]*domain.Rule, error) {
	f.tested = msg
	return f.matched, nil
}

type fakeProducer struct {
	emailJobs []*out.ProcessEmailJob
	reprocess int
	inbox     int
}

func (f *fakeProducer) PublishProcessEmail(ctx context.Context, job *out.ProcessEmailJob) error {
	f.emailJobs = append(f.emailJobs, job)
	return nil
}

func (f *fakeProducer) PublishReprocess(ctx context.Context, job *out.ReprocessJob) error {
	f.reprocess++
	return nil
}

func (f *fakeProducer) PublishProcessInbox(ctx context.Context, job *out.ProcessInboxJob) error {
	f.inbox++
	return nil
}

func newTestApp(admin RuleAdmin, engine in.RulesEngine, producer out.JobProducer) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	api := app.Group("/api/v1")
	NewRulesHandler(admin, nil).Register(api)
	NewProcessingHandler(engine, producer, nil).Register(api)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

const validRule = `{
	"name": "Inbound lead",
	"priority": 10,
	"conditions": [{"type": "category", "operator": "equals", "value": "Lead"}],
	"actions": [{"type": "create_contact", "params": {"contact_type": "lead"}}]
}`

func TestRulesHandler_CRUD(t *testing.T) {
	admin := newFakeAdmin()
	app := newTestApp(admin, &fakeEngine{}, nil)

	status, body := do(t, app, "POST", "/api/v1/rules", validRule)
	if status != fiber.StatusCreated {
		t.Fatalf("create status = %d, body %s", status, body)
	}
	rule := admin.rules[1]
	if rule == nil || !rule.Enabled || rule.Priority != 10 || rule.CreatedBy != nil {
		t.Fatalf("unexpected stored rule: %+v", rule)
	}

	if status, _ := do(t, app, "GET", "/api/v1/rules/1", ""); status != fiber.StatusOK {
		t.Errorf("get status = %d", status)
	}
	if status, _ := do(t, app, "POST", "/api/v1/rules/1/disable", ""); status != fiber.StatusOK || admin.rules[1].Enabled {
		t.Errorf("disable status = %d enabled = %v", status, admin.rules[1].Enabled)
	}
	if status, _ := do(t, app, "GET", "/api/v1/rules/99", ""); status != fiber.StatusNotFound {
		t.Errorf("missing rule status = %d", status)
	}
	if status, _ := do(t, app, "DELETE", "/api/v1/rules/1", ""); status != fiber.StatusNoContent {
		t.Errorf("delete status = %d", status)
	}
}

func TestRulesHandler_CreateValidation(t *testing.T) {
	app := newTestApp(newFakeAdmin(), &fakeEngine{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"no conditions", `{"name":"x","conditions":[],"actions":[{"type":"create_contact"}]}`},
		{"no actions", `{"name":"x","conditions":[{"type":"subject","value":"a"}]}`},
		{"no name", `{"conditions":[{"type":"subject","value":"a"}],"actions":[{"type":"create_contact"}]}`},
		{"condition without type", `{"name":"x","conditions":[{"value":"a"}],"actions":[{"type":"create_contact"}]}`},
		{"bad json", `{"name":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, "POST", "/api/v1/rules", tt.body)
			if status != fiber.StatusBadRequest {
				t.Errorf("status = %d, body %s", status, body)
			}
		})
	}
}

func TestProcessingHandler_ProcessPublishesByDefault(t *testing.T) {
	engine := &fakeEngine{}
	producer := &fakeProducer{}
	app := newTestApp(newFakeAdmin(), engine, producer)

	status, _ := do(t, app, "POST", "/api/v1/rules/process", `{"message_ids":[1,2]}`)
	if status != fiber.StatusAccepted {
		t.Fatalf("status = %d", status)
	}
	if len(producer.emailJobs) != 1 || len(engine.processedIDs) != 0 {
		t.Fatalf("jobs = %d, engine ids = %v", len(producer.emailJobs), engine.processedIDs)
	}

	status, _ = do(t, app, "POST", "/api/v1/rules/process?sync=true", `{"message_ids":[3]}`)
	if status != fiber.StatusOK {
		t.Fatalf("sync status = %d", status)
	}
	if len(engine.processedIDs) != 1 || engine.processedIDs[0] != 3 {
		t.Errorf("engine ids = %v", engine.processedIDs)
	}

	if status, _ := do(t, app, "POST", "/api/v1/rules/process", `{"message_ids":[]}`); status != fiber.StatusBadRequest {
		t.Errorf("empty ids status = %d", status)
	}
}

func TestProcessingHandler_NoProducerRunsInline(t *testing.T) {
	engine := &fakeEngine{}
	app := newTestApp(newFakeAdmin(), engine, nil)

	if status, _ := do(t, app, "POST", "/api/v1/rules/reprocess", ""); status != fiber.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if engine.reprocessed != 1 {
		t.Errorf("reprocessed = %d", engine.reprocessed)
	}
}

func TestProcessingHandler_Test(t *testing.T) {
	engine := &fakeEngine{matched: []*domain.Rule{{ID: 4, Name: "Lead", Priority: 5}}}
	app := newTestApp(newFakeAdmin(), engine, &fakeProducer{})

	status, body := do(t, app, "POST", "/api/v1/rules/test", `{"subject":"hi","categories":["Lead"]}`)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d body %s", status, body)
	}
	if !strings.Contains(body, `"id":4`) {
		t.Errorf("body missing matched rule: %s", body)
	}
}

func TestProcessingHandler_TestMessageFields(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		check      func(t *testing.T, msg *domain.Message)
	}{
		{
			name:       "defaults to inbound",
			body:       `{"subject":"hi"}`,
			wantStatus: fiber.StatusOK,
			check: func(t *testing.T, msg *domain.Message) {
				if msg.Direction != domain.DirectionInbound {
					t.Errorf("direction = %q", msg.Direction)
				}
			},
		},
		{
			name:       "outbound in a folder",
			body:       `{"subject":"re: quote","direction":"outbound","folder_id":"sent","conversation_id":"conv-1","opportunity_id":7}`,
			wantStatus: fiber.StatusOK,
			check: func(t *testing.T, msg *domain.Message) {
				if msg.Direction != domain.DirectionOutbound || msg.FolderID != "sent" || msg.ConversationID != "conv-1" {
					t.Errorf("message = %+v", msg)
				}
				if msg.OpportunityID == nil || *msg.OpportunityID != 7 {
					t.Errorf("opportunity id = %v", msg.OpportunityID)
				}
			},
		},
		{
			name:       "unknown direction",
			body:       `{"subject":"hi","direction":"sideways"}`,
			wantStatus: fiber.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			app := newTestApp(newFakeAdmin(), engine, nil)
			status, body := do(t, app, "POST", "/api/v1/rules/test", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", status, tt.wantStatus, body)
			}
			if tt.check != nil {
				if engine.tested == nil {
					t.Fatal("engine was not called")
				}
				tt.check(t, engine.tested)
			}
		})
	}
}

func TestProcessingHandler_RunsWithoutLog(t *testing.T) {
	app := newTestApp(newFakeAdmin(), &fakeEngine{}, nil)
	status, body := do(t, app, "GET", "/api/v1/rules/runs?email_id=1", "")
	if status != fiber.StatusNotImplemented {
		t.Errorf("status = %d", status)
	}
	if !strings.Contains(body, apperr.CodeNotImplemented) {
		t.Errorf("body = %s", body)
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   int
	}{
		{"healthy", map[string]Check{"postgres": func(context.Context) error { return nil }}, fiber.StatusOK},
		{"unconfigured", map[string]Check{"mongodb": nil}, fiber.StatusOK},
		{"failing", map[string]Check{"redis": func(context.Context) error { return errors.New("down") }}, fiber.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			NewHealthHandler(tt.checks).Register(app)
			if status, _ := do(t, app, "GET", "/ready", ""); status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
		})
	}
}
