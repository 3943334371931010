package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"mentorchat/backend/internal/generation"
	"mentorchat/backend/internal/linkpreview"
	"mentorchat/backend/internal/market"
	"mentorchat/backend/internal/orchestrator"
	"mentorchat/backend/internal/persona"
	"mentorchat/backend/internal/retrieval"
	"mentorchat/backend/internal/room"
	"mentorchat/backend/internal/session"
	"mentorchat/backend/pkg/cache"
	"mentorchat/backend/pkg/config"
	"mentorchat/backend/pkg/health"
	"mentorchat/backend/pkg/jwt"
	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/pkg/middleware"
	"mentorchat/backend/pkg/secrets"
	"mentorchat/backend/shared/redis"
)

// Container holds all the dependencies for the application
type Container struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           *gorm.DB
	Redis        *redis.RedisClient
	Secrets      *secrets.VaultManager
	Cache        *cache.Cache
	Store        *session.Store
	Personas     *persona.Registry
	Index        *retrieval.Index
	Market       market.Service
	Drafter      *generation.Guarded
	Validator    *generation.Guarded
	Orchestrator *orchestrator.Orchestrator
	Links        *linkpreview.Fetcher
	Hub          *room.Hub
	Tickets      *jwt.Service
	Health       *health.Checker
	RateLimiter  *middleware.RateLimiter

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Options override pieces of the container, mostly for tests
type Options struct {
	// DB replaces the configured database connection
	DB *gorm.DB
	// Generator replaces both configured providers
	Generator generation.Generator
	// Market replaces the configured quote service
	Market market.Service
}

// New creates a new dependency injection container
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Container, error) {
	if log == nil {
		log = logger.Discard()
	}

	// Secrets first so credentials below come from Vault when enabled
	sm, err := secrets.Load(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	c := &Container{
		Config:  cfg,
		Logger:  log,
		Secrets: sm,
		Cache: cache.New(cache.Options{
			DefaultExpiration: cfg.Cache.TTL,
			CleanupInterval:   cfg.Cache.PurgeWindow,
			MaxItems:          cfg.Cache.MaxSize,
		}),
	}

	db := opts.DB
	if db == nil {
		if db, err = config.OpenDB(cfg); err != nil {
			c.Close()
			return nil, err
		}
	}
	c.DB = db

	repo, err := session.NewGormRepository(db)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to migrate message log: %w", err)
	}
	c.Store = session.NewStore(repo, log)

	if cfg.Redis.Enabled {
		c.Redis = redis.NewRedisClient(cfg)
	}

	if c.Personas, err = persona.Load(cfg.PersonasFile); err != nil {
		c.Close()
		return nil, err
	}

	docs, err := retrieval.LoadCorpora(cfg.Retrieval.CorpusDir)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load corpora: %w", err)
	}
	c.Index = retrieval.NewIndex(docs)
	log.Info("Corpora indexed", "documents", len(docs))

	c.Market = c.marketService(opts.Market)

	c.Drafter = generation.NewFromConfig(cfg, cfg.Generation.Model, log)
	c.Validator = c.Drafter
	if cfg.Generation.ValidatorModel != cfg.Generation.Model {
		c.Validator = generation.NewFromConfig(cfg, cfg.Generation.ValidatorModel, log)
	}
	var drafter, validator generation.Generator = c.Drafter, c.Validator
	if opts.Generator != nil {
		drafter, validator = opts.Generator, opts.Generator
	}

	router := retrieval.NewRouter(cfg)
	fetcher := retrieval.NewFetcher(c.Index, c.Market, log)
	loop := generation.NewLoop(drafter, validator, fetcher, router, generation.LoopConfigFrom(cfg), log)

	c.Orchestrator = orchestrator.New(orchestrator.Deps{
		Router:       router,
		Fetcher:      fetcher,
		Loop:         loop,
		Synthesizer:  persona.NewSynthesizer(c.Personas, drafter, log),
		Personas:     c.Personas,
		Store:        c.Store,
		Seeds:        c.Index,
		Analyst:      drafter,
		HistoryTurns: cfg.Generation.HistoryTurns,
		Logger:       log,
	})

	c.Links = linkpreview.New(linkpreview.OptionsFrom(cfg), c.Cache, log)
	c.Hub = room.NewHub(c.Store, c.Personas, c.Orchestrator, c.Links, room.OptionsFrom(cfg), log)
	c.Tickets = jwt.NewService(cfg.Tickets.Secret, cfg.Tickets.TTL)
	c.RateLimiter = middleware.NewRateLimiter(log, middleware.RateLimiterOptionsFrom(cfg))
	c.Health = c.healthChecks()

	return c, nil
}

// marketService picks the quote upstream and puts a cache in front of it
func (c *Container) marketService(override market.Service) market.Service {
	if override != nil {
		return override
	}

	var upstream market.Service
	if c.Config.Market.BaseURL == "" {
		c.Logger.Warn("MARKET_DATA_URL not set, market lookups will find nothing")
		upstream = market.NewStatic()
	} else {
		upstream = market.NewHTTPClient(c.Config, c.Logger)
	}

	var quotes market.Cache = market.NewMemoryCache(c.Cache)
	if c.Redis != nil {
		quotes = market.NewRedisCache(c.Redis)
	}
	return market.NewCachedService(upstream, quotes, c.Config.Market.CacheTTL)
}

func (c *Container) healthChecks() *health.Checker {
	checker := health.NewChecker(c.Logger, 30*time.Second, c.Config.Server.Version)

	checker.RegisterPingCheck("database", true, health.PingerFunc(func(ctx context.Context) error {
		sqlDB, err := c.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}))
	if c.Redis != nil {
		checker.RegisterPingCheck("redis", false, c.Redis)
	}
	checker.RegisterBreakerCheck("generation", c.Drafter.Breaker())
	if c.Validator != c.Drafter {
		checker.RegisterBreakerCheck("validation", c.Validator.Breaker())
	}
	checker.RegisterGauge("rooms", c.Hub.Rooms)
	return checker
}

// Start runs the background loops: periodic health checks and rate limiter
// cleanup. They stop on Close.
func (c *Container) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.Health.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.RateLimiter.Run(ctx)
	}()
}

// Close stops background work and releases connections. Room replies still
// in flight are cancelled.
func (c *Container) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if c.Hub != nil {
		c.Hub.Close()
	}
	if c.Secrets != nil {
		c.Secrets.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.LogError(err, "Failed to close redis")
		}
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if c.Cache != nil {
		c.Cache.Close()
	}
}
