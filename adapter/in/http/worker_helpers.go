package http

import (
	"strconv"
	"strings"

	"crm_worker/infra/middleware"
	"crm_worker/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ProviderTokenHeader carries the caller's mail provider access token.
const ProviderTokenHeader = "X-Provider-Token"

// GetUserID returns the authenticated user, or uuid.Nil when the route is
// not behind auth.
func GetUserID(c *fiber.Ctx) uuid.UUID {
	if id, ok := c.Locals("user_id").(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func requestedBy(c *fiber.Ctx) string {
	if id := GetUserID(c); id != uuid.Nil {
		return id.String()
	}
	return ""
}

func providerToken(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(ProviderTokenHeader))
}

func wantSync(c *fiber.Ctx) bool {
	return c.QueryBool("sync", false)
}

func parseID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.InvalidInput(name, "must be a positive integer")
	}
	return id, nil
}

// parseBody decodes the JSON body into v and runs its validate tags.
func parseBody(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	return middleware.ValidateStruct(v)
}
