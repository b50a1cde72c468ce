package middleware

import (
	"context"
	"strings"
	"time"

	"crm_worker/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AuditEvent records one administrative change to the rules engine.
type AuditEvent struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	UserID      string    `json:"user_id,omitempty"`
	Action      string    `json:"action"`
	Resource    string    `json:"resource"`
	ResourceID  string    `json:"resource_id,omitempty"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	IP          string    `json:"ip"`
	StatusCode  int       `json:"status_code"`
	Duration    int64     `json:"duration_ms"`
	RequestID   string    `json:"request_id"`
	Success     bool      `json:"success"`
	ErrorDetail string    `json:"error_detail,omitempty"`
}

// AuditLogger appends events to a Redis stream.
type AuditLogger struct {
	redis  *redis.Client
	stream string
}

// NewAuditLogger returns nil when no Redis client is available; a nil
// logger drops events.
func NewAuditLogger(redisClient *redis.Client) *AuditLogger {
	if redisClient == nil {
		logger.Warn("Redis client not provided, audit logging disabled")
		return nil
	}
	return &AuditLogger{redis: redisClient, stream: "audit:events"}
}

func (a *AuditLogger) Log(ctx context.Context, event *AuditEvent) error {
	if a == nil {
		return nil
	}

	event.ID = uuid.NewString()
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return a.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: a.stream,
		Values: map[string]any{"event": string(data)},
		MaxLen: 100000,
		Approx: true,
	}).Err()
}

type auditRoute struct {
	prefix string
	action string
}

// auditRoutes is matched in order; longer prefixes come first.
var auditRoutes = []auditRoute{
	{"POST:/api/v1/rules/test", ""},
	{"POST:/api/v1/rules/process", "rules_process"},
	{"POST:/api/v1/rules/reprocess", "rules_reprocess"},
	{"POST:/api/v1/rules/inbox", "rules_process_inbox"},
	{"POST:/api/v1/rules/cache/invalidate", "rules_cache_invalidate"},
	{"POST:/api/v1/rules", "rule_create"},
	{"PUT:/api/v1/rules", "rule_update"},
	{"DELETE:/api/v1/rules", "rule_delete"},
	{"PUT:/api/v1/category-mappings", "category_mapping_upsert"},
	{"DELETE:/api/v1/category-mappings", "category_mapping_delete"},
}

func auditAction(method, path string) string {
	key := method + ":" + path
	for _, r := range auditRoutes {
		if strings.HasPrefix(key, r.prefix) {
			return r.action
		}
	}
	return ""
}

// Middleware logs rule and mapping changes plus processing triggers.
func (a *AuditLogger) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		action := auditAction(c.Method(), c.Path())
		if a == nil || action == "" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else if status < 400 {
				status = fiber.StatusInternalServerError
			}
		}

		requestID, _ := c.Locals("request_id").(string)
		event := &AuditEvent{
			Action:     action,
			Resource:   extractResource(c.Path()),
			ResourceID: c.Params("id", c.Params("name")),
			Method:     c.Method(),
			Path:       c.Path(),
			IP:         c.IP(),
			StatusCode: status,
			Duration:   time.Since(start).Milliseconds(),
			RequestID:  requestID,
			Success:    err == nil && status < 400,
		}
		if userID, ok := c.Locals("user_id").(uuid.UUID); ok {
			event.UserID = userID.String()
		}
		if err != nil {
			event.ErrorDetail = err.Error()
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if logErr := a.Log(ctx, event); logErr != nil {
				logger.WithError(logErr).Warn("Failed to log audit event")
			}
		}()

		return err
	}
}

// extractResource returns the segment after /api/v1.
func extractResource(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 {
		return parts[2]
	}
	return ""
}
