package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"

	"github.com/Simoroui/autotech-file-service-sub001/cmd/middleware"
	"github.com/Simoroui/autotech-file-service-sub001/internal/api"
	"github.com/Simoroui/autotech-file-service-sub001/internal/api/handlers"
	"github.com/Simoroui/autotech-file-service-sub001/internal/configuration"
	"github.com/Simoroui/autotech-file-service-sub001/internal/discussion"
	natshandlers "github.com/Simoroui/autotech-file-service-sub001/internal/nats"
	"github.com/Simoroui/autotech-file-service-sub001/internal/notifications"
	"github.com/Simoroui/autotech-file-service-sub001/internal/pricing"
	"github.com/Simoroui/autotech-file-service-sub001/internal/services"
	"github.com/Simoroui/autotech-file-service-sub001/internal/storage"
	"github.com/Simoroui/autotech-file-service-sub001/internal/submission"
	"github.com/Simoroui/autotech-file-service-sub001/internal/workflow"
)

const serviceName = "ecu-file-service"

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// deps is everything the HTTP layer needs, wired from configuration.
type deps struct {
	Store    storage.Storage
	Blobs    services.BlobStore
	Cache    notifications.UnreadCache
	Events   services.Publisher
	Verifier middleware.TokenVerifier
	Health   []handlers.HealthCheck
	Tracing  bool
}

func buildHandlers(cfg *configuration.Config, d deps, logger *zap.Logger) (*handlers.Handlers, error) {
	policy, err := workflow.ParsePolicy(cfg.Workflow.Transitions)
	if err != nil {
		return nil, err
	}

	feed := notifications.NewService(d.Store, d.Cache, logger)
	return &handlers.Handlers{
		Files: submission.NewService(d.Store, d.Blobs, pricing.Default(), feed, d.Events,
			submission.Options{MaxFileBytes: cfg.Server.MaxUploadBytes}, logger),
		Workflow: workflow.NewHandler(d.Store, feed, d.Events,
			workflow.Options{Policy: policy, AllowExperts: cfg.Workflow.AllowExpertStatus}, logger),
		Discussion: discussion.NewService(d.Store, d.Blobs, feed, d.Events, d.Store,
			discussion.Options{MaxImageBytes: cfg.Workflow.CommentImageMaxBytes}, logger),
		Notifications: feed,
		HealthChecks:  d.Health,
		MaxImageBytes: cfg.Workflow.CommentImageMaxBytes,
		Logger:        logger,
	}, nil
}

func newRouter(cfg *configuration.Config, d deps, logger *zap.Logger) (*gin.Engine, *handlers.Handlers, error) {
	h, err := buildHandlers(cfg, d, logger)
	if err != nil {
		return nil, nil, err
	}
	auth := middleware.NewAuth(d.Verifier, cfg.ClientID, d.Store, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	if d.Tracing {
		r.Use(gintrace.Middleware(serviceName))
	}
	api.RegisterRoutes(r, h, auth.RequireAuth())
	return r, h, nil
}

// app owns the connections opened at startup.
type app struct {
	router  *gin.Engine
	closers []func()
	logger  *zap.Logger
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openStore(cfg *configuration.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StoreBackend == "memory" {
		logger.Warn("using in-memory store", zap.String("snapshot", cfg.SnapshotPath))
		return storage.NewLocalStorage(cfg.SnapshotPath, logger)
	}
	dsn := cfg.Database.ConnectionString()
	if err := storage.Migrate(dsn, logger); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return storage.NewPostgresStorage(dsn, logger)
}

func buildApp(ctx context.Context, cfg *configuration.Config, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, func() { _ = store.Close() })

	minio, err := services.NewMinioService(ctx, cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey,
		cfg.MinIO.BucketName, cfg.MinIO.UseSSL, logger)
	if err != nil {
		return fail(fmt.Errorf("minio: %w", err))
	}

	d := deps{
		Store:   store,
		Blobs:   minio,
		Events:  services.NoopPublisher{},
		Tracing: cfg.DDEnabled,
		Health: []handlers.HealthCheck{
			{Name: "store", Check: store.Ping},
			{Name: "object_storage", Check: minio.CheckConnection},
		},
	}

	if cfg.Redis.Addr != "" {
		cache, err := notifications.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 0)
		if err != nil {
			logger.Warn("redis unavailable, unread counts will not be cached", zap.Error(err))
		} else {
			d.Cache = cache
			a.closers = append(a.closers, func() { _ = cache.Close() })
		}
	}

	var bus *services.EventBus
	if cfg.NATSURL != "" {
		bus, err = services.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn("NATS unavailable, events disabled", zap.Error(err))
			bus = nil
		} else {
			d.Events = bus
			a.closers = append(a.closers, bus.Close)
			d.Health = append(d.Health, handlers.HealthCheck{Name: "events", Check: func(context.Context) error {
				if !bus.Connected() {
					return errors.New("not connected")
				}
				return nil
			}})
		}
	}

	verifier, err := middleware.NewOIDCVerifier(ctx, cfg.KeycloakUrl)
	if err != nil {
		return fail(fmt.Errorf("oidc: %w", err))
	}
	d.Verifier = verifier

	router, h, err := newRouter(cfg, d, logger)
	if err != nil {
		return fail(err)
	}
	a.router = router

	if bus != nil {
		consumers := &natshandlers.Handlers{Notifications: h.Notifications, Blobs: minio, Logger: logger}
		if cfg.CLAMAVURL != "" {
			av := services.NewClamdScanner(cfg.CLAMAVURL)
			if err := av.Ping(); err != nil {
				logger.Warn("clamd not reachable, scans will record errors", zap.Error(err))
			}
			consumers.Scanner = services.NewScanner(av, minio, store, logger)
		}
		subs, err := natshandlers.SubscribeAll(bus, natshandlers.Routes(consumers), logger)
		if err != nil {
			return fail(fmt.Errorf("subscribe: %w", err))
		}
		a.closers = append(a.closers, func() {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
		})
	}

	return a, nil
}
