package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestAuditAction(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{"POST", "/api/v1/rules", "rule_create"},
		{"PUT", "/api/v1/rules/12", "rule_update"},
		{"DELETE", "/api/v1/rules/12", "rule_delete"},
		{"POST", "/api/v1/rules/test", ""},
		{"POST", "/api/v1/rules/reprocess", "rules_reprocess"},
		{"PUT", "/api/v1/category-mappings/Lead", "category_mapping_upsert"},
		{"GET", "/api/v1/rules", ""},
	}
	for _, tt := range tests {
		if got := auditAction(tt.method, tt.path); got != tt.want {
			t.Errorf("auditAction(%s %s) = %q, want %q", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestExtractResource(t *testing.T) {
	if got := extractResource("/api/v1/rules/3"); got != "rules" {
		t.Errorf("got %q", got)
	}
	if got := extractResource("/health"); got != "" {
		t.Errorf("got %q", got)
	}
}

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestJWTAuth(t *testing.T) {
	const secret = "test-secret"
	userID := uuid.New()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Get("/me", JWTAuth(secret), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(uuid.UUID).String())
	})

	valid := signedToken(t, secret, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})
	expired := signedToken(t, secret, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := signedToken(t, "other", jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, fiber.StatusOK},
		{"missing", "", fiber.StatusUnauthorized},
		{"expired", "Bearer " + expired, fiber.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, fiber.StatusUnauthorized},
		{"bad scheme", "Basic " + valid, fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _, _ := rl.allow("k"); !ok {
			t.Fatalf("request %d rejected", i)
		}
	}
	if ok, _, _ := rl.allow("k"); ok {
		t.Fatal("third request allowed")
	}
	if ok, _, _ := rl.allow("other"); !ok {
		t.Fatal("separate key rejected")
	}

	now = now.Add(2 * time.Minute)
	if ok, _, _ := rl.allow("k"); !ok {
		t.Fatal("request after window rejected")
	}
}

func TestValidateStruct(t *testing.T) {
	type body struct {
		Name   string `validate:"required,max=10"`
		Action string `validate:"oneof=a b"`
	}
	if err := ValidateStruct(body{Name: "ok", Action: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateStruct(body{Action: "c"}); err == nil {
		t.Fatal("expected validation error")
	}
}
