package rules

import (
	"context"
	"fmt"
	"time"

	"crm_worker/core/domain"
	"crm_worker/core/port/in"
	"crm_worker/core/port/out"
	"crm_worker/pkg/logger"
	"crm_worker/pkg/metrics"
)

// DefaultBatchLimit bounds reprocess and inbox passes.
const DefaultBatchLimit = 500

// Processor orchestrates one or many messages through mapping, rule
// evaluation and action execution.
type Processor struct {
	source   *RuleSource
	mapper   *CategoryMapper
	executor *ActionExecutor
	messages out.MessageRepository
	provider out.CategoryProvider
	lock     out.MessageLock
	runLog   out.RunLog
	metrics  *metrics.RulesMetrics

	batchLimit int
	now        func() time.Time
}

var _ in.RulesEngine = (*Processor)(nil)

// ProcessorDeps holds dependencies for creating a Processor.
type ProcessorDeps struct {
	Source   *RuleSource
	Executor *ActionExecutor
	Messages out.MessageRepository

	// Optional
	Provider out.CategoryProvider
	Lock     out.MessageLock
	RunLog   out.RunLog
	Metrics  *metrics.RulesMetrics

	BatchLimit int
	Now        func() time.Time
}

// NewProcessor creates a new rules processor.
func NewProcessor(deps ProcessorDeps) *Processor {
	if deps.BatchLimit <= 0 {
		deps.BatchLimit = DefaultBatchLimit
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Processor{
		source:     deps.Source,
		mapper:     NewCategoryMapper(deps.Source),
		executor:   deps.Executor,
		messages:   deps.Messages,
		provider:   deps.Provider,
		lock:       deps.Lock,
		runLog:     deps.RunLog,
		metrics:    deps.Metrics,
		batchLimit: deps.BatchLimit,
		now:        deps.Now,
	}
}

// ProcessEmail runs every enabled rule against one message and persists the
// processed state. An error means the message could not be processed at all.
func (p *Processor) ProcessEmail(ctx context.Context, msg *domain.Message, opts in.ProcessOptions) (*domain.EmailResult, error) {
	if msg.ProcessedByRules && !opts.Force {
		p.metrics.ObserveSkipped()
		return &domain.EmailResult{Success: true, EmailID: msg.ID, Skipped: true, Processed: true}, nil
	}

	if p.lock != nil && msg.ID != 0 {
		acquired, err := p.lock.Acquire(ctx, msg.ID)
		switch {
		case err != nil:
			logger.Warn("[Processor.ProcessEmail] lock for message %d unavailable: %v", msg.ID, err)
		case !acquired:
			p.metrics.ObserveSkipped()
			return &domain.EmailResult{Success: true, EmailID: msg.ID, Skipped: true, Error: "message is being processed by another pass"}, nil
		default:
			defer func() {
				if err := p.lock.Release(context.WithoutCancel(ctx), msg.ID); err != nil {
					logger.Warn("[Processor.ProcessEmail] release lock for message %d: %v", msg.ID, err)
				}
			}()
		}
	}

	start := p.now()
	rules, err := p.source.EnabledRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	working := msg.Clone()
	if working.Direction == "" {
		working.Direction = domain.DirectionInbound
	}
	p.fetchCategories(ctx, working, opts.AccessToken)

	mapping, err := p.mapper.MapCategoriesToCRMFields(ctx, working)
	if err != nil {
		logger.Warn("[Processor.ProcessEmail] category mapping for message %d failed: %v", msg.ID, err)
		mapping = MapCategories(working.Categories, nil)
	}

	obs := NewObservedState()
	ac := &actionContext{
		msg:         working,
		obs:         obs,
		hints:       mapping,
		accessToken: opts.AccessToken,
		actingUser:  opts.ActingUser,
	}

	result := &domain.EmailResult{
		EmailID:         msg.ID,
		CategoryMapping: mapping,
		RuleResults:     []domain.RuleResult{},
	}
	actionsFailed := 0

	// Sequential on purpose: each rule sees what earlier rules did through obs.
	for _, rule := range rules {
		if !EvaluateRule(rule, working, obs) {
			continue
		}
		result.MatchedRules = append(result.MatchedRules, rule.ID)
		p.source.RecordHit(ctx, rule.ID, start)

		for _, action := range rule.Actions {
			res := p.executor.Execute(ctx, ac, action)
			if !res.Success {
				actionsFailed++
				logger.Warn("[Processor.ProcessEmail] rule %d (%s) action %s failed on message %d: %s",
					rule.ID, rule.Name, action.Type, msg.ID, res.Error)
			}
			result.RuleResults = append(result.RuleResults, domain.RuleResult{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Action:   action.Type,
				Result:   res,
			})
		}
	}

	final := obs.Apply(working)
	final.ProcessedByRules = true
	if final.ID != 0 {
		if err := p.messages.SaveProcessingState(ctx, final); err != nil {
			return nil, fmt.Errorf("save processing state: %w", err)
		}
	}
	*msg = *final

	result.Success = true
	result.Processed = true
	result.Duration = p.now().Sub(start)
	p.metrics.ObserveMessage(result.Duration, len(result.MatchedRules), actionsFailed, result.ContactsCreated())

	if p.runLog != nil {
		if err := p.runLog.Record(ctx, result); err != nil {
			logger.Warn("[Processor.ProcessEmail] run log for message %d: %v", msg.ID, err)
		}
	}

	logger.Debug("[Processor.ProcessEmail] message %d: %d rules matched, %d actions, %d failed",
		msg.ID, len(result.MatchedRules), len(result.RuleResults), actionsFailed)
	return result, nil
}

// fetchCategories fills categories from the provider when a token is given
// and the message has none. Failures leave the categories empty.
func (p *Processor) fetchCategories(ctx context.Context, msg *domain.Message, accessToken string) {
	if accessToken == "" || len(msg.Categories) > 0 || p.provider == nil || msg.ExternalID == "" {
		return
	}
	cats, err := p.provider.FetchCategories(ctx, msg.Provider, accessToken, msg.ExternalID)
	if err != nil {
		logger.Warn("[Processor.fetchCategories] message %d: %v", msg.ID, err)
		return
	}
	msg.Categories = domain.Categories(cats)
}

// ProcessEmails processes messages strictly in order. A failing message is
// recorded and the loop continues.
func (p *Processor) ProcessEmails(ctx context.Context, msgs []*domain.Message, opts in.ProcessOptions) (*domain.BatchSummary, error) {
	summary := &domain.BatchSummary{Results: make([]domain.EmailResult, 0, len(msgs))}
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		res, err := p.ProcessEmail(ctx, msg, opts)
		if err != nil {
			p.metrics.ObserveFailed()
			logger.Error("[Processor.ProcessEmails] message %d failed: %v", msg.ID, err)
			summary.Add(domain.EmailResult{Success: false, EmailID: msg.ID, Error: err.Error(), RuleResults: []domain.RuleResult{}})
			continue
		}
		summary.Add(*res)
	}
	return summary, nil
}

// ProcessEmailsByID loads and processes messages by id, in the given order.
func (p *Processor) ProcessEmailsByID(ctx context.Context, ids []int64, opts in.ProcessOptions) (*domain.BatchSummary, error) {
	summary := &domain.BatchSummary{Results: make([]domain.EmailResult, 0, len(ids))}
	for _, id := range ids {
		msg, err := p.messages.GetByID(ctx, id)
		if err == nil && msg == nil {
			err = out.ErrNotFound
		}
		if err != nil {
			p.metrics.ObserveFailed()
			summary.Add(domain.EmailResult{Success: false, EmailID: id, Error: fmt.Sprintf("load message: %v", err), RuleResults: []domain.RuleResult{}})
			continue
		}
		batch, _ := p.ProcessEmails(ctx, []*domain.Message{msg}, opts)
		for _, r := range batch.Results {
			summary.Add(r)
		}
	}
	return summary, nil
}

// ReprocessAllEmails processes the most recent unprocessed messages.
func (p *Processor) ReprocessAllEmails(ctx context.Context, opts in.ProcessOptions) (*domain.BatchSummary, error) {
	msgs, err := p.messages.ListUnprocessed(ctx, p.batchLimit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed messages: %w", err)
	}
	opts.Force = true
	summary, err := p.ProcessEmails(ctx, msgs, opts)
	if err == nil {
		logger.Info("[Processor.ReprocessAllEmails] processed=%d skipped=%d failed=%d contacts_created=%d",
			summary.Processed, summary.Skipped, summary.Failed, summary.ContactsCreated)
	}
	return summary, err
}

// ProcessAllInboxEmails reapplies the current rules to every provider-sourced
// message in the bounded batch.
func (p *Processor) ProcessAllInboxEmails(ctx context.Context, opts in.ProcessOptions) (*domain.BatchSummary, error) {
	msgs, err := p.messages.ListProviderSourced(ctx, p.batchLimit)
	if err != nil {
		return nil, fmt.Errorf("list inbox messages: %w", err)
	}
	opts.Force = true
	summary, err := p.ProcessEmails(ctx, msgs, opts)
	if err == nil {
		logger.Info("[Processor.ProcessAllInboxEmails] processed=%d skipped=%d failed=%d contacts_created=%d",
			summary.Processed, summary.Skipped, summary.Failed, summary.ContactsCreated)
	}
	return summary, err
}

// TestRules returns the rules that would match the message. No actions run.
func (p *Processor) TestRules(ctx context.Context, msg *domain.Message) ([]*domain.Rule, error) {
	rules, err := p.source.EnabledRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	working := msg.Clone()
	if working.Direction == "" {
		working.Direction = domain.DirectionInbound
	}
	return SelectMatchingRules(rules, working, NewObservedState()), nil
}
