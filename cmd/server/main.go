package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"secretsportal/internal/audit"
	"secretsportal/internal/events"
	"secretsportal/internal/jwttoken"
	"secretsportal/internal/notify"
	"secretsportal/internal/permissions"
	"secretsportal/internal/platform/config"
	"secretsportal/internal/platform/httpserver"
	kafkaconsumer "secretsportal/internal/platform/kafka/consumer"
	"secretsportal/internal/platform/logger"
	"secretsportal/internal/platform/metrics"
	platformredis "secretsportal/internal/platform/redis"
	"secretsportal/internal/retry"
	"secretsportal/internal/rotation"
	"secretsportal/internal/secrets/service"
	"secretsportal/internal/secrets/store"
	"secretsportal/internal/tracker"
	httptransport "secretsportal/internal/transport/http"
	"secretsportal/internal/vault"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	exec := retry.New(log, retry.WithMetrics(m))

	// Stores: postgres when DATABASE_URL is set, in-memory otherwise.
	metadataStore := store.MetadataStore(store.NewInMemory())
	auditStore := audit.Store(audit.NewInMemoryStore())
	changeStore := tracker.ConsoleChangeStore(tracker.NewInMemoryChangeStore())
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pgMetadata := store.NewPostgres(db)
		pgAudit := audit.NewPostgresStore(db)
		pgChanges := tracker.NewPostgresChangeStore(db)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		for _, ensure := range []func(context.Context) error{
			pgMetadata.EnsureSchema, pgAudit.EnsureSchema, pgChanges.EnsureSchema,
		} {
			if err := ensure(ctx); err != nil {
				cancel()
				log.Error("failed to ensure database schema", "error", err)
				os.Exit(1)
			}
		}
		cancel()
		metadataStore = pgMetadata
		auditStore = pgAudit
		changeStore = pgChanges
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	grantCache := permissions.NewGrantCache(redisClient, cfg.Redis.GrantTTL, log)

	var dispatcher notify.Dispatcher
	if cfg.WebhookURL != "" {
		breaker := notify.NewCircuitBreaker(5, 30*time.Second)
		dispatcher = notify.NewBreakerDispatcher(notify.NewWebhookDispatcher(cfg.WebhookURL, log), breaker)
	} else {
		dispatcher = notify.NewLogDispatcher(log)
	}

	auditor := audit.NewWriter(auditStore, exec)
	secretVault := vault.NewInMemory(cfg.Region)
	secrets := service.New(metadataStore, secretVault, auditor, dispatcher, exec, log, cfg.Region,
		service.WithMetrics(m))
	reconciler := tracker.NewReconciler(metadataStore, changeStore, auditor, dispatcher, exec, log,
		tracker.WithMetrics(m), tracker.WithVault(secretVault))
	scanner := rotation.NewScanner(metadataStore, dispatcher, exec, log,
		rotation.WithMetrics(m))
	runner := rotation.NewRunner(scanner, cfg.ScanInterval, log)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Secrets:   httptransport.NewSecretsHandler(secrets, log),
		Reports:   httptransport.NewReportsHandler(auditor, changeStore, log),
		Validator: jwtService,
		Grants:    grantCache,
		Logger:    log,
	})
	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting secrets portal", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return runner.Run(ctx)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		handler := events.NewChangeEventHandler(reconciler, log)
		cons, err := kafkaconsumer.New(cfg.Kafka, handler, log)
		if err != nil {
			log.Error("failed to create kafka consumer", "error", err)
			os.Exit(1)
		}
		topicCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := cons.EnsureTopic(topicCtx, cfg.Kafka.Topic); err != nil {
			log.Warn("topic bootstrap failed, consuming anyway", "error", err)
		}
		cancel()
		g.Go(func() error {
			return cons.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
