package worker

import (
	"context"
	"sync"
	"time"

	"crm_worker/core/port/in"
	"crm_worker/pkg/logger"
)

// PostSyncScheduler periodically runs the engine over messages that mail
// sync stored but rules have not seen yet.
type PostSyncScheduler struct {
	engine   in.RulesEngine
	interval time.Duration
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPostSyncScheduler creates a scheduler. It does nothing when interval <= 0.
func NewPostSyncScheduler(engine in.RulesEngine, interval time.Duration) *PostSyncScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &PostSyncScheduler{
		engine:   engine,
		interval: interval,
		timeout:  5 * time.Minute,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *PostSyncScheduler) Start() {
	if s.interval <= 0 {
		logger.Info("[PostSyncScheduler] Disabled")
		return
	}
	logger.Info("[PostSyncScheduler] Starting with interval %v", s.interval)
	s.wg.Add(1)
	go s.run()
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (s *PostSyncScheduler) Stop() {
	logger.Info("[PostSyncScheduler] Stopping...")
	s.cancel()
	s.wg.Wait()
}

func (s *PostSyncScheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("[PostSyncScheduler] Stopped")
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *PostSyncScheduler) runOnce() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	summary, err := s.engine.ReprocessAllEmails(ctx, in.ProcessOptions{})
	if err != nil {
		logger.Error("[PostSyncScheduler] Pass failed: %v", err)
		return
	}
	if summary.Processed+summary.Failed+summary.Skipped == 0 {
		return
	}
	logSummary("post_sync", summary)
}
