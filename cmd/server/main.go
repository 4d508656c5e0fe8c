package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/rolegate/api/handler"
	"github.com/fastygo/rolegate/internal/config"
	"github.com/fastygo/rolegate/internal/identity"
	"github.com/fastygo/rolegate/internal/infrastructure/buffer"
	"github.com/fastygo/rolegate/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/rolegate/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/rolegate/internal/infrastructure/redis"
	"github.com/fastygo/rolegate/internal/metrics"
	"github.com/fastygo/rolegate/internal/middleware"
	"github.com/fastygo/rolegate/internal/router"
	"github.com/fastygo/rolegate/internal/services"
	"github.com/fastygo/rolegate/internal/services/lifecycle"
	"github.com/fastygo/rolegate/pkg/httpcontext"
	"github.com/fastygo/rolegate/pkg/logger"
	"github.com/fastygo/rolegate/repository/postgres"
	redisRepo "github.com/fastygo/rolegate/repository/redis"
	authUC "github.com/fastygo/rolegate/usecase/auth"
	bridgeUC "github.com/fastygo/rolegate/usecase/bridge"
	"github.com/fastygo/rolegate/usecase/gate"
	resolveUC "github.com/fastygo/rolegate/usecase/resolve"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Encoding:    cfg.Logger.Encoding,
		Service:     cfg.AppName,
		Environment: cfg.Environment,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx := context.Background()
	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, cfg.AppName, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pgInfra.Close(pool, zapLogger)
		return nil
	})

	redisClient, err := redisInfra.NewClient(appCtx, cfg.Redis, zapLogger)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	outbox, err := buffer.Open(cfg.Audit.OutboxPath, "")
	if err != nil {
		zapLogger.Fatal("failed to open audit outbox", zap.Error(err))
	}
	manager.Register("audit_outbox", func(ctx context.Context) error {
		return outbox.Close()
	})

	mon := monitor.New(monitor.Checks{
		Postgres: pool.Ping,
		Redis: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
		Outbox: outbox.Size,
	}, 10*time.Second, zapLogger)
	mon.Refresh(appCtx)
	manager.Go("monitor", mon.Run)

	roleService := postgres.NewRoleService(pool)
	userRepo := postgres.NewUserRepository(pool)
	riderRepo := postgres.NewRiderRepository(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	sessionRepo := redisRepo.NewSessionRepository(redisClient, cfg.Session.TTL)
	sessionEvents := redisRepo.NewSessionEvents(redisClient, zapLogger)
	revocations := redisRepo.NewTokenRevocations(redisClient, cfg.Session.RevocationTTL)

	collectors := metrics.New()

	authUseCase := authUC.New(authUC.Options{
		Accounts:    accountRepo,
		Sessions:    sessionRepo,
		Events:      sessionEvents,
		Revocations: revocations,
		TTL:         cfg.Session.TTL,
		BcryptCost:  cfg.Session.BcryptCost,
		Logger:      zapLogger,
	})
	identityBridge := bridgeUC.New(
		authUseCase,
		bridgeUC.NewDeriver(cfg.Identity.CredentialPepper),
		cfg.Resolution.BridgeTimeout,
		collectors,
		zapLogger,
	)
	engine := resolveUC.New(
		roleService,
		userRepo,
		riderRepo,
		authUseCase,
		resolveUC.Config{
			Timeout:           cfg.Resolution.Timeout,
			RetryAttempts:     cfg.Resolution.RetryAttempts,
			RetryDelay:        cfg.Resolution.RetryDelay,
			UpgradeOnFallback: cfg.Resolution.UpgradeOnFallback,
		},
		collectors,
		zapLogger,
	)

	auditProcessor := services.NewAuditProcessor(
		outbox,
		mon,
		auditRepo,
		zapLogger,
		services.ProcessorConfig{
			Interval:   cfg.Audit.SyncInterval,
			BatchSize:  cfg.Audit.BatchSize,
			MaxRetries: cfg.Audit.MaxRetry,
		},
	)
	manager.Go("audit_processor", auditProcessor.Run)

	var verifiers []identity.Verifier
	if cfg.Identity.OTPSecret != "" {
		verifiers = append(verifiers, identity.NewOTPVerifier(cfg.Identity.OTPSecret, cfg.Identity.OTPIssuer))
	}
	if cfg.Identity.OIDCIssuer != "" {
		oidcVerifier, err := identity.NewOIDCVerifier(appCtx, cfg.Identity.OIDCIssuer, cfg.Identity.OIDCClientID)
		if err != nil {
			zapLogger.Fatal("oidc discovery failed", zap.String("issuer", cfg.Identity.OIDCIssuer), zap.Error(err))
		}
		verifiers = append(verifiers, oidcVerifier)
	}
	tokenVerifier := identity.NewChain(revocations, zapLogger, verifiers...)

	paths := gate.Paths{
		Login:         cfg.Routes.Login,
		AccountStatus: cfg.Routes.AccountStatus,
		AdminHome:     cfg.Routes.AdminHome,
		RiderHome:     cfg.Routes.RiderHome,
		CustomerHome:  cfg.Routes.CustomerHome,
	}
	routes := gate.DefaultRoutes(paths)
	gates := middleware.GateFactory{
		Sessions:               authUseCase,
		Resolver:               engine,
		Audit:                  services.NewAuditBridge(auditProcessor),
		Observer:               collectors,
		Paths:                  paths,
		PlaceholderEmailDomain: cfg.Identity.PlaceholderEmailDomain,
		Logger:                 zapLogger,
	}

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Auth: apiHandler.NewAuthHandler(apiHandler.AuthOptions{
			Bridge:                 identityBridge,
			Sessions:               authUseCase,
			Resolver:               engine,
			CookieName:             cfg.Session.CookieName,
			PlaceholderEmailDomain: cfg.Identity.PlaceholderEmailDomain,
		}, ctxAdapter, zapLogger),
		Guard: apiHandler.NewGuardHandler(apiHandler.GuardOptions{
			Factory:    gates,
			Routes:     routes,
			Events:     sessionEvents,
			CookieName: cfg.Session.CookieName,
		}, ctxAdapter, zapLogger),
		Page:   apiHandler.NewPageHandler(ctxAdapter, zapLogger),
		Health: apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}
	if cfg.HTTP.EnableMetrics {
		handlers.Metrics = collectors.Handler()
	}

	r := router.New(handlers, router.Middlewares{
		ExternalToken: middleware.ExternalToken(tokenVerifier, ctxAdapter, zapLogger),
		Session:       middleware.RequireSession(authUseCase, cfg.Session.CookieName, ctxAdapter, zapLogger),
		Guard:         middleware.Guard(gates, routes, cfg.Session.CookieName, ctxAdapter),
	}, paths.AdminHome, paths.RiderHome, paths.CustomerHome)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	manager.Go("http_server", func(ctx context.Context) error {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		return server.ListenAndServe(cfg.Address())
	})
	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	if err := manager.Run(appCtx); err != nil {
		zapLogger.Error("service stopped with error", zap.Error(err))
	}
}
