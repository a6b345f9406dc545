// Command kobo-server starts the Kobo sync and admin HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/and161185/kobo-sync/internal/cache"
	"github.com/and161185/kobo-sync/internal/config"
	"github.com/and161185/kobo-sync/internal/limiter"
	"github.com/and161185/kobo-sync/internal/migrate"
	"github.com/and161185/kobo-sync/internal/repository/postgres"
	"github.com/and161185/kobo-sync/internal/schema"
	httpserver "github.com/and161185/kobo-sync/internal/server/http"
	"github.com/and161185/kobo-sync/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownGrace = 10 * time.Second

// main loads configuration, migrates and reconciles the schema, and serves HTTP until signalled.
func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ver, err := migrate.Up(ctx, cfg.DSN, logger)
	if err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	logger.Info("migrations applied", zap.Int64("version", ver))

	db, err := postgres.New(ctx, cfg.DSN, int32(cfg.DBMaxConns))
	if err != nil {
		logger.Fatal("postgres pool", zap.Error(err))
	}
	defer db.Close()

	// The reconciler is advisory: a failure is logged and serving continues.
	if rep, err := schema.New(db.Pool, logger).Run(ctx); err != nil {
		logger.Error("schema reconcile failed", zap.Error(err))
	} else if len(rep.Added) > 0 {
		logger.Info("schema reconciled", zap.Strings("added", rep.Added))
	}

	reportCache, closeCache := newReportCache(ctx, cfg, logger)
	defer closeCache()

	sentryOn := initSentry(cfg, logger)
	if sentryOn {
		defer sentry.Flush(2 * time.Second)
	}

	// Repositories
	users := postgres.NewUserRepo(db)
	items := postgres.NewItemRepo(db)
	sales := postgres.NewSaleRepo(db)
	logins := postgres.NewLoginRepo(db)
	reports := postgres.NewReportRepo(db)

	lim := limiter.NewPG(db.Pool, limiter.Policy{
		Window:   cfg.LoginWindow,
		MaxFails: cfg.LoginMaxFails,
		BlockFor: cfg.LoginBlock,
	})

	// Services
	syncSvc := service.NewSyncService(users, items, sales, reportCache, logger, cfg.MaxBatch)
	authSvc := service.NewAuthService(users, logins, lim, reportCache,
		service.MasterAdmin{KoboID: cfg.MasterAdminID, PIN: cfg.MasterAdminPIN}, logger)
	adminSvc := service.NewAdminService(users, items, sales, logins, reports, reportCache, logger)
	reportSvc := service.NewReportService(reports, reportCache, logger)

	app := httpserver.New(syncSvc, authSvc, adminSvc, reportSvc, db, logger)
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: app.Router(httpserver.Options{
			CORSOrigins:    cfg.CORSOrigins,
			StaticDir:      cfg.StaticDir,
			RequestTimeout: cfg.RequestTimeout,
			Sentry:         sentryOn,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// newReportCache falls back to no caching when Redis is absent or unreachable.
func newReportCache(ctx context.Context, cfg config.Config, log *zap.Logger) (service.ReportCache, func()) {
	if cfg.RedisURL == "" {
		return cache.Nop{}, func() {}
	}
	c, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.ReportTTL)
	if err != nil {
		log.Warn("redis unavailable, report caching disabled", zap.Error(err))
		return cache.Nop{}, func() {}
	}
	return c, func() { _ = c.Close() }
}

func initSentry(cfg config.Config, log *zap.Logger) bool {
	if cfg.SentryDSN == "" {
		return false
	}
	env := "production"
	if cfg.Dev {
		env = "development"
	}
	err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Release: version, Environment: env})
	if err != nil {
		log.Warn("sentry init", zap.Error(err))
		return false
	}
	return true
}
