package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	alerthandler "saferide/internal/alert/handler"
	alertservice "saferide/internal/alert/service"
	alertstore "saferide/internal/alert/store"
	"saferide/internal/audit"
	challengehandler "saferide/internal/challenge/handler"
	challengeservice "saferide/internal/challenge/service"
	"saferide/internal/challenge/store/profile"
	"saferide/internal/driver"
	escalationhandler "saferide/internal/escalation/handler"
	escalationmetrics "saferide/internal/escalation/metrics"
	"saferide/internal/escalation/publisher"
	escalationservice "saferide/internal/escalation/service"
	escalationstore "saferide/internal/escalation/store"
	jwttoken "saferide/internal/jwt_token"
	"saferide/internal/platform/config"
	"saferide/internal/platform/httpserver"
	"saferide/internal/platform/logger"
	"saferide/internal/platform/metrics"
	"saferide/internal/platform/postgres"
	redisclient "saferide/internal/platform/redis"
	"saferide/internal/storage"
	trackinghandler "saferide/internal/tracking/handler"
	"saferide/internal/tracking/hub"
	trackingmetrics "saferide/internal/tracking/metrics"
	trackingservice "saferide/internal/tracking/service"
	trackingstore "saferide/internal/tracking/store"
	httptransport "saferide/internal/transport/http"
	verificationhandler "saferide/internal/verification/handler"
	verificationmetrics "saferide/internal/verification/metrics"
	verificationservice "saferide/internal/verification/service"
	verificationstore "saferide/internal/verification/store"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/retry"
)

// auditInboxSize bounds the queue between request handlers and the audit worker.
const auditInboxSize = 256

// infra holds the optional external backends. A nil field means the
// in-process fallback is used.
type infra struct {
	db      *sql.DB
	redis   *redisclient.Client
	kafka   *publisher.Kafka
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	guard   storage.Guard
	logger  *slog.Logger
}

// stores groups the persistence implementations picked for this process.
type stores struct {
	alerts       alertservice.Store
	profiles     challengeservice.ProfileStore
	verification verificationservice.Store
	tracking     trackingservice.Store
	escalation   escalationservice.Store
	audit        audit.Store
	drivers      verificationservice.DriverDirectory
}

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	infra, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.close()

	st := buildStores(infra)
	inbox := make(chan audit.Event, auditInboxSize)
	auditor := audit.NewPublisher(st.audit, audit.WithLogger(log), audit.WithInbox(inbox))
	worker := audit.NewWorker(st.audit, inbox, log)

	alerts := alertservice.New(st.alerts,
		alertservice.WithLogger(log),
		alertservice.WithGuard(infra.guard),
	)
	challenges := challengeservice.New(st.profiles,
		challengeservice.WithLogger(log),
		challengeservice.WithGuard(infra.guard),
		challengeservice.WithAuditPublisher(auditor),
		challengeservice.WithHashCost(cfg.Engine.AnswerHashCost),
	)

	trackingOpts := []trackingservice.Option{
		trackingservice.WithLogger(log),
		trackingservice.WithGuard(infra.guard),
		trackingservice.WithAuditPublisher(auditor),
		trackingservice.WithMetrics(trackingmetrics.New(infra.reg)),
	}
	if infra.redis != nil {
		trackingOpts = append(trackingOpts, trackingservice.WithHub(hub.NewRedis(infra.redis.Client, log)))
	}
	tracking := trackingservice.New(st.tracking, alerts, trackingOpts...)
	alerts.AttachTracking(tracking)

	escalationOpts := []escalationservice.Option{
		escalationservice.WithLogger(log),
		escalationservice.WithGuard(infra.guard),
		escalationservice.WithAuditPublisher(auditor),
		escalationservice.WithMetrics(escalationmetrics.New(infra.reg)),
		escalationservice.WithFallbackLocation(id.Coordinates{
			Latitude:  cfg.Engine.FallbackLatitude,
			Longitude: cfg.Engine.FallbackLongitude,
		}),
	}
	if infra.kafka != nil {
		escalationOpts = append(escalationOpts, escalationservice.WithIntentPublisher(infra.kafka))
	}
	escalation := escalationservice.New(st.escalation, alerts, escalationOpts...)

	verification := verificationservice.New(st.verification, alerts, challenges, tracking, escalation,
		verificationservice.WithLogger(log),
		verificationservice.WithGuard(infra.guard),
		verificationservice.WithDriverDirectory(st.drivers),
		verificationservice.WithAuditPublisher(auditor),
		verificationservice.WithMetrics(verificationmetrics.New(infra.reg)),
		verificationservice.WithTrackingOpenWait(cfg.Engine.TrackingOpenWait),
	)

	jwtService := jwttoken.NewJWTService(cfg.Auth.OperatorJWTKey, cfg.Auth.Issuer)
	alertHandler := alerthandler.New(alerts, auditor, log)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:        log,
		Validator:     jwttoken.NewJWTServiceAdapter(jwtService),
		PlatformToken: cfg.Auth.PlatformToken,
		Metrics:       infra.metrics,
		Gatherer:      infra.reg,
		Readiness:     infra.readiness(),
	}, alertHandler,
		verificationhandler.New(verification, log),
		challengehandler.New(challenges, log),
		trackinghandler.New(tracking, log, cfg.Server.AllowedOrigins...),
		escalationhandler.New(escalation, log),
		alertHandler,
	)
	if cfg.Auth.PlatformToken == "" {
		log.Warn("PLATFORM_TOKEN not set, platform routes are disabled")
	}

	srv := httpserver.New(cfg.Server.Addr, router)

	// The worker outlives the server so events emitted while draining are
	// still persisted.
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorker()
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- worker.Run(workerCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting saferide", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "error", err)
		}
		if err := verification.Drain(shutdownCtx); err != nil {
			log.Error("background tracking opens did not finish", "error", err)
		}
		close(inbox)
		select {
		case <-workerDone:
		case <-shutdownCtx.Done():
			stopWorker()
		}
		return nil
	})
	return g.Wait()
}

func buildInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	policy := retry.DefaultPolicy()
	policy.Attempts = cfg.Engine.StoreRetryAttempts
	platformMetrics := metrics.New(reg)
	guard := storage.NewGuard(cfg.Engine.StoreTimeout, policy, log)
	guard.OnRetry = platformMetrics.IncrementStoreRetry
	out := &infra{
		reg:     reg,
		metrics: platformMetrics,
		guard:   guard,
		logger:  log,
	}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	out.db = db
	if db == nil {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	} else if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			out.close()
			return nil, err
		}
		log.Info("database schema applied")
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		out.close()
		return nil, err
	}
	out.redis = rc

	kafka, err := publisher.NewKafka(cfg.Kafka, log)
	if err != nil {
		out.close()
		return nil, err
	}
	if kafka != nil {
		if err := kafka.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("could not ensure escalation topic", "topic", cfg.Kafka.EscalationTopic, "error", err)
		}
		out.kafka = kafka
	}
	return out, nil
}

func buildStores(in *infra) stores {
	if in.db == nil {
		return stores{
			alerts:       alertstore.NewInMemory(),
			profiles:     profile.NewInMemory(),
			verification: verificationstore.NewInMemory(),
			tracking:     trackingstore.NewInMemory(),
			escalation:   escalationstore.NewInMemory(),
			audit:        audit.NewInMemoryStore(),
			drivers:      driver.NewInMemory(),
		}
	}
	return stores{
		alerts:       alertstore.NewPostgres(in.db),
		profiles:     profile.NewPostgres(in.db),
		verification: verificationstore.NewPostgres(in.db),
		tracking:     trackingstore.NewPostgres(in.db),
		escalation:   escalationstore.NewPostgres(in.db),
		audit:        audit.NewPostgresStore(in.db),
		drivers:      driver.NewPostgres(in.db),
	}
}

func (in *infra) readiness() map[string]httptransport.ReadinessCheck {
	checks := map[string]httptransport.ReadinessCheck{}
	if in.db != nil {
		checks["postgres"] = in.db.PingContext
	}
	if in.redis != nil {
		checks["redis"] = in.redis.Health
	}
	if in.kafka != nil {
		checks["kafka"] = in.kafka.Health
	}
	return checks
}

func (in *infra) close() {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			in.logger.Warn("closing redis", "error", err)
		}
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			in.logger.Warn("closing postgres", "error", err)
		}
	}
}
