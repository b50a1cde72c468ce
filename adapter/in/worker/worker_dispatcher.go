package worker

import (
	"context"

	"crm_worker/pkg/logger"

	"github.com/goccy/go-json"
)

type Handler struct {
	rulesProcessor *RulesProcessor
}

func NewHandler(rulesProcessor *RulesProcessor) *Handler {
	return &Handler{rulesProcessor: rulesProcessor}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	logger.Debug("Processing message: %s", msg.Type)

	switch msg.Type {
	case JobRulesProcessEmail:
		return h.rulesProcessor.ProcessEmails(ctx, msg)
	case JobRulesReprocess:
		return h.rulesProcessor.Reprocess(ctx, msg)
	case JobRulesProcessInbox:
		return h.rulesProcessor.ProcessInbox(ctx, msg)
	default:
		logger.Warn("Unknown job type: %s", msg.Type)
		return nil
	}
}

func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
