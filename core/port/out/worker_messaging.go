package out

import "context"

// Rules streams.
const (
	StreamRulesProcessEmail = "rules:process_email"
	StreamRulesReprocess    = "rules:reprocess"
	StreamRulesProcessInbox = "rules:process_inbox"
)

// JobProducer publishes rules jobs to the queue.
type JobProducer interface {
	PublishProcessEmail(ctx context.Context, job *ProcessEmailJob) error
	PublishReprocess(ctx context.Context, job *ReprocessJob) error
	PublishProcessInbox(ctx context.Context, job *ProcessInboxJob) error
}

// ProcessEmailJob runs the engine on specific messages.
type ProcessEmailJob struct {
	MessageIDs  []int64 `json:"message_ids"`
	AccessToken string  `json:"access_token,omitempty"`
	Force       bool    `json:"force"`
	RequestedBy string  `json:"requested_by,omitempty"`
}

// ReprocessJob runs the engine on unprocessed messages.
type ReprocessJob struct {
	AccessToken string `json:"access_token,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// ProcessInboxJob reapplies current rules to every provider-sourced message.
type ProcessInboxJob struct {
	AccessToken string `json:"access_token,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}
