package worker

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of a job.
type JobType = string

// Job types.
const (
	JobRulesProcessEmail JobType = "rules.process_email"
	JobRulesReprocess    JobType = "rules.reprocess"
	JobRulesProcessInbox JobType = "rules.process_inbox"
)

type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
	Retries   int            `json:"retries"`
}

func NewMessage(jobType string, payload map[string]any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// ProcessEmailPayload runs the engine on specific messages.
type ProcessEmailPayload struct {
	MessageIDs  []int64 `json:"message_ids"`
	AccessToken string  `json:"access_token,omitempty"`
	Force       bool    `json:"force"`
	RequestedBy string  `json:"requested_by,omitempty"` // uuid string
}

// BatchPayload drives the reprocess and inbox passes.
type BatchPayload struct {
	AccessToken string `json:"access_token,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}
