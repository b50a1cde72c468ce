package worker

import (
	"context"
	"fmt"

	"crm_worker/core/domain"
	"crm_worker/core/port/in"
	"crm_worker/pkg/logger"

	"github.com/google/uuid"
)

// RulesProcessor runs queued rules jobs against the engine.
type RulesProcessor struct {
	engine in.RulesEngine
}

func NewRulesProcessor(engine in.RulesEngine) *RulesProcessor {
	return &RulesProcessor{engine: engine}
}

func actingUser(raw string) uuid.UUID {
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		logger.Warn("[RulesProcessor] ignoring invalid requested_by %q", raw)
		return uuid.Nil
	}
	return id
}

// ProcessEmails handles JobRulesProcessEmail. Per-message failures are part
// of the summary; only an engine-level error fails the job.
func (p *RulesProcessor) ProcessEmails(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[ProcessEmailPayload](msg)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if len(payload.MessageIDs) == 0 {
		return nil
	}

	summary, err := p.engine.ProcessEmailsByID(ctx, payload.MessageIDs, in.ProcessOptions{
		AccessToken: payload.AccessToken,
		Force:       payload.Force,
		ActingUser:  actingUser(payload.RequestedBy),
	})
	if err != nil {
		return err
	}
	logSummary("process_email", summary)
	return nil
}

// Reprocess handles JobRulesReprocess.
func (p *RulesProcessor) Reprocess(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[BatchPayload](msg)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	summary, err := p.engine.ReprocessAllEmails(ctx, in.ProcessOptions{
		AccessToken: payload.AccessToken,
		ActingUser:  actingUser(payload.RequestedBy),
	})
	if err != nil {
		return err
	}
	logSummary("reprocess", summary)
	return nil
}

// ProcessInbox handles JobRulesProcessInbox.
func (p *RulesProcessor) ProcessInbox(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[BatchPayload](msg)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	summary, err := p.engine.ProcessAllInboxEmails(ctx, in.ProcessOptions{
		AccessToken: payload.AccessToken,
		ActingUser:  actingUser(payload.RequestedBy),
	})
	if err != nil {
		return err
	}
	logSummary("process_inbox", summary)
	return nil
}

func logSummary(job string, s *domain.BatchSummary) {
	logger.Info("[RulesProcessor.%s] processed=%d skipped=%d failed=%d contacts_created=%d",
		job, s.Processed, s.Skipped, s.Failed, s.ContactsCreated)
}
