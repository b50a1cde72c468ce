package bootstrap

import (
	"context"
	"time"

	"crm_worker/adapter/in/http"
	"crm_worker/adapter/out/cache"
	"crm_worker/adapter/out/messaging"
	"crm_worker/adapter/out/mongodb"
	"crm_worker/adapter/out/persistence"
	"crm_worker/adapter/out/provider"
	"crm_worker/config"
	"crm_worker/core/port/out"
	"crm_worker/core/service/rules"
	"crm_worker/infra/database"
	redisCache "crm_worker/pkg/cache"
	"crm_worker/pkg/errtrack"
	"crm_worker/pkg/logger"
	"crm_worker/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Dependencies is the object graph shared by the API and the worker.
// Redis and MongoDB are optional: without Redis there is no cache, lock or
// job queue; without MongoDB there is no run log.
type Dependencies struct {
	Config   *config.Config
	Postgres *database.Postgres
	Redis    *redis.Client
	MongoDB  *mongo.Client

	Store     out.CRMStore
	RuleRepo  *persistence.RuleAdapter
	Mappings  *persistence.CategoryMappingAdapter
	Messages  *persistence.EmailAdapter
	RunLog    *mongodb.RuleRunAdapter
	Producer  out.JobProducer
	Providers *provider.Router

	RuleSource *rules.RuleSource
	Admin      *rules.RuleAdmin
	Engine     *rules.Processor
	Metrics    *metrics.RulesMetrics
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deps := &Dependencies{Config: cfg, Metrics: metrics.NewRulesMetrics()}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if err := errtrack.Init(cfg.SentryDSN, cfg.Environment, cfg.Release); err != nil {
		logger.Warn("Sentry init failed: %v", err)
	}

	// PostgreSQL
	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Driver = cfg.DatabaseDriver
	pgCfg.MaxConns = int32(cfg.DBMaxConns)
	pg, err := database.NewPostgres(ctx, cfg.DatabaseURL, pgCfg)
	if err != nil {
		return nil, nil, err
	}
	deps.Postgres = pg
	cleanups = append(cleanups, pg.Close)
	logger.Info("PostgreSQL connected (driver=%s)", pgCfg.Driver)

	if err := persistence.Migrate(ctx, pg.DB); err != nil {
		cleanup()
		return nil, nil, err
	}

	// Redis
	var ruleCache out.RuleCache
	var lock out.MessageLock
	if cfg.RedisURL != "" {
		client, err := database.NewRedis(ctx, cfg.RedisURL, nil)
		if err != nil {
			logger.Warn("Redis connection failed, running without cache and queue: %v", err)
		} else {
			deps.Redis = client
			cleanups = append(cleanups, func() { _ = client.Close() })

			rc := redisCache.NewRedisCache(client)
			ruleCache = cache.NewRuleCacheAdapter(rc, cfg.RulesCacheTTL)
			lock = cache.NewMessageLockAdapter(rc, cfg.RulesLockTTL)
			deps.Producer = messaging.NewRedisProducer(client)
			logger.Info("Redis connected")
		}
	}

	// MongoDB
	if cfg.MongoDBURL != "" {
		client, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			logger.Warn("MongoDB connection failed, rule runs will not be recorded: %v", err)
		} else {
			deps.MongoDB = client
			cleanups = append(cleanups, func() { _ = client.Disconnect(context.Background()) })

			deps.RunLog = mongodb.NewRuleRunAdapter(client.Database(cfg.MongoDBName), cfg.RuleRunRetention)
			if err := deps.RunLog.EnsureIndexes(ctx); err != nil {
				logger.Warn("rule_runs index creation failed: %v", err)
			}
			logger.Info("MongoDB connected")
		}
	}

	// Repositories
	deps.Store = persistence.NewCRMStore(pg.DB)
	deps.RuleRepo = persistence.NewRuleAdapter(pg.DB)
	deps.Mappings = persistence.NewCategoryMappingAdapter(pg.DB)
	deps.Messages = persistence.NewEmailAdapter(pg.DB)

	// Mail providers
	deps.Providers = provider.NewRouter(provider.RouterConfig{
		Outlook:         provider.NewOutlookAdapter(cfg.GraphBaseURL),
		Gmail:           provider.NewGmailAdapter(cfg.GmailEndpoint),
		DefaultProvider: cfg.DefaultProvider,
	})

	// Rules engine
	deps.RuleSource = rules.NewRuleSource(deps.RuleRepo, deps.Mappings, ruleCache)
	deps.Admin = rules.NewRuleAdmin(deps.RuleRepo, deps.Mappings, deps.RuleSource)

	executor := rules.NewActionExecutor(deps.Store, rules.ActionExecutorConfig{
		Tagger:          deps.Providers,
		LeadDedupWindow: cfg.RulesLeadDedupWindow,
	})

	engineDeps := rules.ProcessorDeps{
		Source:     deps.RuleSource,
		Executor:   executor,
		Messages:   deps.Messages,
		Provider:   deps.Providers,
		Lock:       lock,
		Metrics:    deps.Metrics,
		BatchLimit: cfg.RulesBatchLimit,
	}
	if deps.RunLog != nil {
		engineDeps.RunLog = deps.RunLog
	}
	deps.Engine = rules.NewProcessor(engineDeps)

	return deps, cleanup, nil
}

// Seed applies the configured seed file.
func (d *Dependencies) Seed(ctx context.Context) error {
	seed, err := config.LoadSeed(d.Config.RulesSeedPath)
	if err != nil {
		return err
	}
	if len(seed.CategoryMappings) == 0 && len(seed.Rules) == 0 {
		return nil
	}
	return d.Admin.Seed(ctx, seed.CategoryMappings, seed.DomainRules())
}

// HealthChecks returns the dependency probes for /ready.
func (d *Dependencies) HealthChecks() map[string]http.Check {
	checks := map[string]http.Check{
		"postgres": d.Postgres.Ping,
		"redis":    nil,
		"mongodb":  nil,
	}
	if d.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }
	}
	if d.MongoDB != nil {
		checks["mongodb"] = func(ctx context.Context) error { return d.MongoDB.Ping(ctx, readpref.Primary()) }
	}
	return checks
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
func secDuration(s int) time.Duration { return time.Duration(s) * time.Second }
