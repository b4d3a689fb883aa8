// Package main provides the main entry point for the onboarding service
//
// @title Onboarding API
// @version 1.0
// @description Role-aware account registration with email verification.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/onboarding/app/handlers"
	"github.com/amirphl/onboarding/app/middleware"
	"github.com/amirphl/onboarding/app/router"
	"github.com/amirphl/onboarding/app/services"
	businessflow "github.com/amirphl/onboarding/business_flow"
	"github.com/amirphl/onboarding/config"
	"github.com/amirphl/onboarding/logger"
	"github.com/amirphl/onboarding/repository"
	"github.com/amirphl/onboarding/repository/memory"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.Config
	logger    *zap.Logger
	stopFuncs []func()
}

// storage bundles the persistence capabilities the flows depend on
type storage struct {
	tx          repository.Transactor
	accounts    repository.AccountRepository
	profiles    repository.ProfileRepository
	businesses  repository.BusinessRepository
	attachments repository.AccountBusinessRepository
	challenges  repository.VerificationChallengeRepository
	auditLogs   repository.AuditLogRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging, "onboarding")
	defer func() { _ = log.Sync() }()

	app, err := initializeApplication(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.router.Start(cfg.Server.Addr()); err != nil {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-sigChan
	log.Info("shutting down gracefully")

	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// initializeApplication wires storage, services, flows, handlers and the router
func initializeApplication(cfg *config.Config, log *zap.Logger) (*Application, error) {
	var stopFuncs []func()
	checks := map[string]router.HealthCheck{}

	store, err := initializeStorage(cfg, log, checks, &stopFuncs)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache, log)
	if err != nil {
		return nil, err
	}
	var cache redis.UniversalClient
	if rc != nil {
		cache = rc
		checks["cache"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.HealthCheckInterval, log))
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
	}

	notificationService := initializeNotificationService(cfg.Email, log)

	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	log.Info("token service initialized", zap.String("issuer", cfg.JWT.Issuer), zap.String("audience", cfg.JWT.Audience))

	accountStore := repository.NewAccountStore(
		store.tx,
		store.accounts,
		store.profiles,
		store.businesses,
		store.attachments,
		cfg.Security.BcryptCost,
	)

	issuer := businessflow.NewVerificationIssuer(
		store.challenges,
		notificationService,
		businessflow.IssuerOptions{
			CodeTTL:     cfg.Verification.CodeTTL,
			MaxAttempts: cfg.Verification.MaxAttempts,
		},
		log.Named("verification"),
	)

	registrationFlow := businessflow.NewRegistrationFlow(
		store.tx,
		accountStore,
		issuer,
		store.auditLogs,
		log.Named("registration"),
	)

	verificationFlow := businessflow.NewVerificationFlow(
		store.tx,
		accountStore,
		store.challenges,
		issuer,
		store.auditLogs,
		cache,
		cfg.Cache.RedisPrefix,
		cfg.Verification.ResendCooldown,
		log.Named("verification"),
	)

	callerResolver := businessflow.NewCallerBusinessResolver(
		store.attachments,
		cache,
		cfg.Cache.RedisPrefix,
		cfg.Cache.CallerBusinessTTL,
		log,
	)

	fiberRouter := router.NewFiberRouter(cfg, router.Handlers{
		Registration: handlers.NewRegistrationHandler(registrationFlow, log),
		Verification: handlers.NewVerificationHandler(verificationFlow, log),
		Auth:         middleware.NewAuthMiddleware(tokenService, callerResolver, log),
	}, checks, log)

	return &Application{
		router:    fiberRouter,
		config:    cfg,
		logger:    log,
		stopFuncs: stopFuncs,
	}, nil
}

// initializeStorage selects the persistence backend
func initializeStorage(cfg *config.Config, log *zap.Logger, checks map[string]router.HealthCheck, stopFuncs *[]func()) (*storage, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("using the in-memory store; data is lost on restart")
		m := memory.New()
		return &storage{
			tx:          m.Transactor(),
			accounts:    m.Accounts(),
			profiles:    m.Profiles(),
			businesses:  m.Businesses(),
			attachments: m.Attachments(),
			challenges:  m.Challenges(),
			auditLogs:   m.AuditLogs(),
		}, nil
	}

	db, err := initializeDatabase(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	checks["database"] = sqlDB.PingContext
	*stopFuncs = append(*stopFuncs, func() { _ = sqlDB.Close() })

	return &storage{
		tx:          repository.NewTransactor(db),
		accounts:    repository.NewAccountRepository(db),
		profiles:    repository.NewProfileRepository(db),
		businesses:  repository.NewBusinessRepository(db),
		attachments: repository.NewAccountBusinessRepository(db),
		challenges:  repository.NewVerificationChallengeRepository(db),
		auditLogs:   repository.NewAuditLogRepository(db),
	}, nil
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	logLevel := gormlogger.Silent
	if cfg.SlowQueryLog {
		logLevel = gormlogger.Warn
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(zap.NewStdLog(log.Named("gorm")), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connection established",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)
	return db, nil
}

// initializeCache initializes the redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig, log *zap.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("redis connection established", zap.Int("db", cfg.RedisDB))
	return rc, nil
}

// startCacheHealthMonitor periodically pings redis. The returned function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, log *zap.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Warn("redis healthcheck failed", zap.Error(err))
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeNotificationService picks the email provider
func initializeNotificationService(cfg config.EmailConfig, log *zap.Logger) services.NotificationService {
	var emailProvider services.EmailProvider
	switch cfg.Provider {
	case "smtp":
		emailProvider = services.NewSMTPEmailProvider(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.FromEmail)
	default:
		emailProvider = services.NewMockEmailProvider(log.Named("email"))
	}
	return services.NewNotificationService(emailProvider)
}
