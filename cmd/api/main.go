package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/student-service/internal/api/http"
	"github.com/spec-kit/student-service/internal/api/http/handlers"
	"github.com/spec-kit/student-service/internal/auth"
	"github.com/spec-kit/student-service/internal/config"
	"github.com/spec-kit/student-service/internal/events"
	"github.com/spec-kit/student-service/internal/observability"
	"github.com/spec-kit/student-service/internal/persistence"
	"github.com/spec-kit/student-service/internal/ratelimit"
	"github.com/spec-kit/student-service/internal/repository"
	"github.com/spec-kit/student-service/internal/service"
	"github.com/spec-kit/student-service/internal/worker"
	"github.com/spec-kit/student-service/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Auth.InsecureSecret {
		logger.Warn("SECRET_KEY not set, using development signing key")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userRepo, closeStore := openUserStore(ctx, cfg, logger)
	defer closeStore()

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	tokens, err := auth.NewTokenService(cfg.Auth.TokenConfig())
	if err != nil {
		logger.Fatal("failed to init token service", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))
	metrics.SubscribeAuthEvents(dispatcher)

	authService, err := service.NewAuthService(service.AuthDependencies{
		UserRepo: userRepo,
		Hasher:   auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		Tokens:   tokens,
		Limiter: ratelimit.NewLoginLimiter(redis.Client, ratelimit.LoginLimiterConfig{
			Enabled:     cfg.LoginLimit.Enabled,
			MaxAttempts: cfg.LoginLimit.MaxAttempts,
			Window:      cfg.LoginLimit.Window(),
		}),
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to init auth service", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.IsProduction(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		APIPrefix: cfg.App.APIPrefix,
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"store": userRepo,
			"redis": redis,
		}),
		Auth: handlers.NewAuthHandler(authService, handlers.AuthHandlerOptions{
			CookiePath:         cfg.App.APIPrefix + "/auth",
			CookieSecure:       cfg.Auth.CookieSecure,
			AllowRoleSelection: cfg.Auth.AllowRoleSelection,
		}),
		Users:          handlers.NewUsersHandler(authService),
		AuthMiddleware: auth.NewAuthMiddleware(authService),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func openUserStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.UserRepository, func()) {
	switch cfg.Storage.Driver {
	case config.DriverMongo:
		mg, err := persistence.NewMongo(ctx, cfg.Mongo, logger)
		if err != nil {
			logger.Fatal("failed to connect mongodb", zap.Error(err))
		}
		if err := repository.EnsureUserIndexes(ctx, mg.DB); err != nil {
			logger.Fatal("failed to ensure user indexes", zap.Error(err))
		}
		return repository.NewMongoUserRepository(mg.DB), func() { mg.Close(context.Background()) }
	default:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), migrations.Files, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		return repository.NewUserRepository(pg.PoolHandle()), pg.Close
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
