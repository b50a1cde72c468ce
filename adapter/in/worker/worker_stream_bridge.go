package worker

import (
	"context"
	"fmt"

	"crm_worker/core/port/out"

	"github.com/goccy/go-json"
)

// Submitter accepts jobs for asynchronous execution.
type Submitter interface {
	Submit(msg *Message) bool
}

// StreamBridge turns stream entries into pool jobs. It implements
// messaging.JobHandler.
type StreamBridge struct {
	pool Submitter
}

func NewStreamBridge(pool Submitter) *StreamBridge {
	return &StreamBridge{pool: pool}
}

var streamJobTypes = map[string]JobType{
	out.StreamRulesProcessEmail: JobRulesProcessEmail,
	out.StreamRulesReprocess:    JobRulesReprocess,
	out.StreamRulesProcessInbox: JobRulesProcessInbox,
}

// Handle returns an error when the job cannot be queued so the stream entry
// stays pending and is retried.
func (b *StreamBridge) Handle(ctx context.Context, stream string, data []byte) error {
	jobType, ok := streamJobTypes[stream]
	if !ok {
		return fmt.Errorf("no job type for stream %s", stream)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode %s entry: %w", stream, err)
	}

	if !b.pool.Submit(NewMessage(jobType, payload)) {
		return fmt.Errorf("worker pool rejected %s job", jobType)
	}
	return nil
}
