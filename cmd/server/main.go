// Command server runs the consent and audit service: profile-backed consent
// state, an append-only consent history, and a transactional audit trail
// relayed to Kafka.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"othertales/internal/audit"
	"othertales/internal/audit/relay"
	"othertales/internal/consentlog"
	"othertales/internal/identity/handler"
	"othertales/internal/identity/service"
	"othertales/internal/jwtauth"
	"othertales/internal/platform/config"
	"othertales/internal/platform/database"
	"othertales/internal/platform/httpserver"
	platformlogger "othertales/internal/platform/logger"
	"othertales/internal/platform/metrics"
	platformredis "othertales/internal/platform/redis"
	"othertales/internal/profile"
	"othertales/internal/ratelimit"
)

func main() {
	logger := platformlogger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	m := metrics.New()
	tracer := otel.Tracer("othertales/identity")

	var (
		stores   service.Stores
		txRunner service.TxRunner
		outbox   relay.OutboxSource
	)
	if cfg.DatabaseURL != "" {
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := database.Migrate(ctx, db, cfg.MigrationsDir); err != nil {
			logger.Error("migrations failed", "error", err)
			os.Exit(1)
		}

		auditStore := audit.NewPostgres(db)
		stores = service.Stores{
			Profiles: profile.NewPostgres(db),
			History:  consentlog.NewPostgres(db),
			Audit:    audit.NewRecorder(auditStore),
		}
		txRunner = newSQLTx(db, stores)
		outbox = auditStore
		logger.Info("using postgres storage")
	} else {
		profileStore := profile.NewMemoryStore()
		historyStore := consentlog.NewMemoryStore()
		auditStore := audit.NewMemoryStore()
		stores = service.Stores{
			Profiles: profileStore,
			History:  historyStore,
			Audit:    audit.NewRecorder(auditStore),
		}
		txRunner = service.NewMemoryTx(stores, profileStore, historyStore, auditStore)
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		logger.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var writeLimit func(http.Handler) http.Handler
	if redisClient != nil && cfg.ConsentWriteLimit > 0 {
		limiter := ratelimit.New(redisClient.Client, cfg.ConsentWriteLimit, logger)
		writeLimit = limiter.Middleware
	}

	identitySvc := service.New(stores.Profiles, stores.History, txRunner, logger, m, tracer)
	validator := jwtauth.NewValidator(cfg.JWTSigningKey)
	identityHandler := handler.New(identitySvc, logger, validator, writeLimit)

	router := chi.NewRouter()
	identityHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if outbox != nil && len(cfg.Kafka.Brokers) > 0 {
		auditRelay, err := relay.New(ctx, cfg.Kafka, outbox, logger, m)
		if err != nil {
			logger.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		if auditRelay != nil {
			defer auditRelay.Close()
			group.Go(func() error {
				logger.Info("audit outbox relay started", "topic", cfg.Kafka.AuditTopic)
				if err := auditRelay.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		}
	}

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
