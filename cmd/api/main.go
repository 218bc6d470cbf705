package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/petstore-api/internal/api/http"
	"github.com/spec-kit/petstore-api/internal/api/http/handlers"
	"github.com/spec-kit/petstore-api/internal/auth"
	"github.com/spec-kit/petstore-api/internal/config"
	"github.com/spec-kit/petstore-api/internal/docs"
	"github.com/spec-kit/petstore-api/internal/domain"
	"github.com/spec-kit/petstore-api/internal/observability"
	"github.com/spec-kit/petstore-api/internal/orm"
	"github.com/spec-kit/petstore-api/internal/persistence"
	"github.com/spec-kit/petstore-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	healthDeps := map[string]handlers.Pinger{}
	var data orm.Client
	if pool := pg.PoolHandle(); pool != nil {
		data = orm.NewPostgresClient(pool)
		healthDeps["postgres"] = pg
	} else {
		data = newMemoryStore(ctx, logger)
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	if err != nil {
		logger.Fatal("failed to init token manager", zap.Error(err))
	}

	authService := service.NewAuthService(service.AuthDependencies{
		Users:   data,
		Tokens:  tokens,
		Logger:  logger,
		Metrics: metrics,
	})
	resolver := auth.NewResolver(authService.TokenManager(), logger, metrics)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	if err := httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthDeps),
		Login:    handlers.NewLoginHandler(authService),
		Resolver: resolver,
		Metrics:  metrics,
		Docs: docs.Options{
			Strategy:     docs.AssetStrategy(cfg.Docs.AssetStrategy),
			RemoteCSSURL: cfg.Docs.RemoteCSSURL,
			BundleURL:    cfg.Docs.BundleURL,
		},
		DataClient:  data,
		APIEndpoint: cfg.API.Endpoint,
		BcryptCost:  cfg.Auth.BcryptCost,
	}); err != nil {
		logger.Fatal("failed to register routes", zap.Error(err))
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("docs_assets", cfg.Docs.AssetStrategy))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func newMemoryStore(ctx context.Context, logger *zap.Logger) *orm.MemoryClient {
	store := orm.NewMemoryClient()
	for _, pet := range domain.SamplePets() {
		if _, err := store.Create(ctx, domain.ModelPet, pet); err != nil {
			logger.Fatal("failed to seed pets", zap.Error(err))
		}
	}
	logger.Warn("using in-memory store; data is lost on restart")
	return store
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
