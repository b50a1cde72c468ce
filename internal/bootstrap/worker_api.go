package bootstrap

import (
	"strings"
	"time"

	"crm_worker/adapter/in/http"
	"crm_worker/infra/middleware"
	"crm_worker/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// NewAPI builds the fiber app over deps. poolMetrics is non-nil when the
// worker runs in the same process.
func NewAPI(deps *Dependencies, poolMetrics func() any) *fiber.App {
	cfg := deps.Config

	middleware.InitTokenBlacklist(deps.Redis)
	audit := middleware.NewAuditLogger(deps.Redis)

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             cfg.MaxRequestBodyBytes,
		ReadTimeout:           30 * time.Second,
		// Synchronous inbox passes can run for minutes.
		WriteTimeout:       15 * time.Minute,
		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID," + http.ProviderTokenHeader,
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Unauthenticated
	http.NewHealthHandler(deps.HealthChecks()).Register(app)
	http.NewMetricsHandler(deps.Metrics, poolMetrics).Register(app)

	api := app.Group("/api/v1")
	api.Use(middleware.MaxBodySize(cfg.MaxRequestBodyBytes))
	if cfg.JWTSecret != "" {
		api.Use(middleware.JWTAuth(cfg.JWTSecret))
	} else {
		logger.Warn("JWT_SECRET not set, API routes are unauthenticated")
	}
	api.Use(audit.Middleware())

	triggerLimiter := middleware.NewRateLimiter(cfg.TriggerRateLimit, time.Minute)
	for _, path := range []string{"/rules/process", "/rules/reprocess", "/rules/inbox"} {
		api.Use(path, triggerLimiter.Handler())
	}

	http.NewRulesHandler(deps.Admin, deps.RuleSource).Register(api)

	var runs http.RunReader
	if deps.RunLog != nil {
		runs = deps.RunLog
	}
	http.NewProcessingHandler(deps.Engine, deps.Producer, runs).Register(api)

	logger.Info("API server initialized")
	return app
}
