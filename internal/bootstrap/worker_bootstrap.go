package bootstrap

import (
	"context"
	"errors"
	"os"
	"sync"

	"crm_worker/adapter/in/worker"
	"crm_worker/adapter/out/messaging"
	"crm_worker/core/port/out"
	"crm_worker/pkg/errtrack"
	"crm_worker/pkg/logger"

	"github.com/rs/zerolog"
)

// Worker runs rules jobs: the stream consumer feeds the pool, and the
// post-sync scheduler reprocesses unprocessed messages on a ticker.
type Worker struct {
	pool      *worker.Pool
	consumer  *messaging.Consumer
	scheduler *worker.PostSyncScheduler
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	zlog      zerolog.Logger
}

func NewWorker(deps *Dependencies) *Worker {
	cfg := deps.Config

	zlog := zerolog.New(os.Stdout).With().Timestamp().Str("component", "worker").Logger()
	if cfg.IsDevelopment() {
		zlog = zlog.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	handler := worker.NewHandler(worker.NewRulesProcessor(deps.Engine))

	poolConfig := worker.DefaultPoolConfig()
	if cfg.WorkerMax > 0 {
		poolConfig.Workers = cfg.WorkerMax
	}
	if cfg.WorkerQueueSize > 0 {
		poolConfig.WorkerChanSize = cfg.WorkerQueueSize
	}
	if cfg.WorkerRatePerSec > 0 {
		poolConfig.RatePerSecond = cfg.WorkerRatePerSec
	}
	if cfg.JobTimeout > 0 {
		poolConfig.JobTimeoutByType[worker.JobRulesReprocess] = cfg.JobTimeout
		poolConfig.JobTimeoutByType[worker.JobRulesProcessInbox] = cfg.JobTimeout
	}
	if cfg.JobMaxRetries > 0 {
		poolConfig.MaxRetries = cfg.JobMaxRetries
	}
	poolConfig.OnDeadLetter = func(msg *worker.Message, err error) {
		errtrack.CaptureError(err, map[string]string{
			"job_type": string(msg.Type),
			"job_id":   msg.ID,
		}, map[string]any{"retries": msg.Retries})
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		pool:      worker.NewPool(handler, poolConfig, zlog),
		scheduler: worker.NewPostSyncScheduler(deps.Engine, cfg.RulesPostSyncInterval),
		ctx:       ctx,
		cancel:    cancel,
		zlog:      zlog,
	}

	if deps.Redis != nil {
		streams := []string{
			out.StreamRulesProcessEmail,
			out.StreamRulesReprocess,
			out.StreamRulesProcessInbox,
		}
		w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
			Group:                cfg.ConsumerGroup,
			Consumer:             cfg.WorkerID,
			Streams:              streams,
			Handler:              worker.NewStreamBridge(w.pool),
			Logger:               zlog,
			BatchSize:            cfg.ConsumerBatchSize,
			Block:                msDuration(cfg.ConsumerBlockMS),
			PendingCheckInterval: secDuration(cfg.ConsumerPendingCheckSec),
			PendingIdleTime:      secDuration(cfg.ConsumerPendingIdleSec),
			MaxRetries:           cfg.ConsumerMaxRetries,
			OnDeadLetter: func(dl messaging.DeadLetter) {
				errtrack.CaptureError(errors.New("stream message moved to dead letter queue"), map[string]string{
					"stream":     dl.Stream,
					"dlq_stream": dl.DLQStream,
					"message_id": dl.ID,
				}, map[string]any{"retries": dl.Retries})
			},
		})
		logger.Info("Redis Stream Consumer configured for %d streams", len(streams))
	} else {
		logger.Warn("Redis not available, worker will only run the post-sync scheduler")
	}

	return w
}

// Start blocks until Stop is called.
func (w *Worker) Start() error {
	if err := w.pool.Start(); err != nil {
		return err
	}

	if w.consumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.zlog.Info().Msg("Starting Redis Stream Consumer...")
			if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.zlog.Error().Err(err).Msg("Redis Stream Consumer error")
			}
		}()
	}

	w.scheduler.Start()

	<-w.ctx.Done()
	return nil
}

// Stop halts intake first, then drains the pool.
func (w *Worker) Stop() {
	w.cancel()
	w.scheduler.Stop()
	w.wg.Wait()
	w.pool.Stop()
}

// Metrics reports pool counters for /metrics/rules.
func (w *Worker) Metrics() any {
	return w.pool.GetMetrics()
}
