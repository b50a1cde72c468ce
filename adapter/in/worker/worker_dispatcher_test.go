package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crm_worker/core/domain"
	"crm_worker/core/port/in"
	"crm_worker/core/port/out"

	"github.com/google/uuid"
)

type fakeEngine struct {
	mu        sync.Mutex
	byID      [][]int64
	opts      []in.ProcessOptions
	reprocess int
	inbox     int
	err       error
}

func (f *fakeEngine) ProcessEmail(ctx context.Context, msg *domain.Message, opts in.ProcessOptions) (*domain.EmailResult, error) {
	return &domain.EmailResult{Success: true, EmailID: msg.ID}, nil
}

func (f *fakeEngine) ProcessEmails(ctx context.Context, msgs []*domain.Message, opts in.ProcessOptions) (*domain.BatchSummary, error) {
	return &domain.BatchSummary{}, nil
}

func (f *fakeEngine) ProcessEmailsByID(ctx context.Context, ids []int64, opts in.ProcessOptions) (*domain.BatchSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID = append(f.byID, ids)
	f.opts = append(f.opts, opts)
	return &domain.BatchSummary{Processed: len(ids)}, f.err
}

func (f *fakeEngine) ReprocessAllEmails(ctx context.Context, opts in.ProcessOptions) (*domain.BatchSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reprocess++
	return &domain.BatchSummary{}, f.err
}

func (f *fakeEngine) ProcessAllInboxEmails(ctx context.Context, opts in.ProcessOptions) (*domain.BatchSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox++
	return &domain.BatchSummary{}, f.err
}

func (f *fakeEngine) TestRules(ctx context.Context, msg *domain.Message) ([]*domain.Rule, error) {
	return nil, nil
}

func TestHandler_Dispatch(t *testing.T) {
	engine := &fakeEngine{}
	h := NewHandler(NewRulesProcessor(engine))
	user := uuid.New()

	msgs := []*Message{
		NewMessage(JobRulesProcessEmail, map[string]any{
			"message_ids":  []any{float64(3), float64(4)},
			"access_token": "tok",
			"force":        true,
			"requested_by": user.String(),
		}),
		NewMessage(JobRulesReprocess, map[string]any{}),
		NewMessage(JobRulesProcessInbox, map[string]any{}),
		NewMessage("unknown.type", nil),
	}
	for _, m := range msgs {
		if err := h.Process(context.Background(), m); err != nil {
			t.Fatalf("Process(%s): %v", m.Type, err)
		}
	}

	if len(engine.byID) != 1 || len(engine.byID[0]) != 2 || engine.byID[0][1] != 4 {
		t.Fatalf("byID = %v", engine.byID)
	}
	opts := engine.opts[0]
	if !opts.Force || opts.AccessToken != "tok" || opts.ActingUser != user {
		t.Errorf("opts = %+v", opts)
	}
	if engine.reprocess != 1 || engine.inbox != 1 {
		t.Errorf("reprocess=%d inbox=%d", engine.reprocess, engine.inbox)
	}
}

func TestHandler_EngineErrorFailsJob(t *testing.T) {
	engine := &fakeEngine{err: errors.New("rules unavailable")}
	h := NewHandler(NewRulesProcessor(engine))

	err := h.Process(context.Background(), NewMessage(JobRulesReprocess, nil))
	if err == nil {
		t.Fatal("expected engine error to fail the job")
	}
}

func TestActingUser_InvalidIsNil(t *testing.T) {
	if got := actingUser("not-a-uuid"); got != uuid.Nil {
		t.Errorf("actingUser = %v, want Nil", got)
	}
}

type recordingSubmitter struct {
	msgs   []*Message
	reject bool
}

func (s *recordingSubmitter) Submit(msg *Message) bool {
	if s.reject {
		return false
	}
	s.msgs = append(s.msgs, msg)
	return true
}

func TestStreamBridge_Handle(t *testing.T) {
	sub := &recordingSubmitter{}
	b := NewStreamBridge(sub)

	tests := []struct {
		name    string
		stream  string
		data    string
		wantErr bool
		wantJob JobType
	}{
		{"process email", out.StreamRulesProcessEmail, `{"message_ids":[1],"force":true}`, false, JobRulesProcessEmail},
		{"reprocess", out.StreamRulesReprocess, `{}`, false, JobRulesReprocess},
		{"inbox", out.StreamRulesProcessInbox, `{}`, false, JobRulesProcessInbox},
		{"unknown stream", "mail:sync", `{}`, true, ""},
		{"bad json", out.StreamRulesReprocess, `{`, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(sub.msgs)
			err := b.Handle(context.Background(), tt.stream, []byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(sub.msgs) != before+1 || sub.msgs[before].Type != tt.wantJob {
				t.Errorf("submitted = %+v", sub.msgs)
			}
		})
	}

	sub.reject = true
	if err := b.Handle(context.Background(), out.StreamRulesReprocess, []byte(`{}`)); err == nil {
		t.Error("rejected submit should surface an error")
	}
}

func TestRateLimiter(t *testing.T) {
	r := NewRateLimiter(2, time.Hour)
	if !r.Allow() || !r.Allow() {
		t.Fatal("first two calls should pass")
	}
	if r.Allow() {
		t.Error("third call within the interval should be limited")
	}
}

func TestRedactPayload(t *testing.T) {
	got := redactPayload(map[string]any{"access_token": "secret", "force": true})
	if got["access_token"] != "[redacted]" || got["force"] != true {
		t.Errorf("redacted = %v", got)
	}
}

func TestPostSyncScheduler(t *testing.T) {
	engine := &fakeEngine{}
	s := NewPostSyncScheduler(engine, 5*time.Millisecond)
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for {
		engine.mu.Lock()
		n := engine.reprocess
		engine.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduler never ran a pass")
		}
		time.Sleep(time.Millisecond)
	}
	s.Stop()

	disabled := &fakeEngine{}
	off := NewPostSyncScheduler(disabled, 0)
	off.Start()
	time.Sleep(20 * time.Millisecond)
	off.Stop()
	if disabled.reprocess != 0 {
		t.Errorf("disabled scheduler ran %d passes", disabled.reprocess)
	}
}
