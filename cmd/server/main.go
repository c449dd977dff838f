package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"tml/internal/actor"
	"tml/internal/assignment"
	assignmenthandler "tml/internal/assignment/handler"
	"tml/internal/attestation"
	attestationhandler "tml/internal/attestation/handler"
	"tml/internal/certificate"
	"tml/internal/dispute"
	disputehandler "tml/internal/dispute/handler"
	"tml/internal/jwtauth"
	"tml/internal/platform/config"
	"tml/internal/platform/httpserver"
	"tml/internal/platform/locks"
	"tml/internal/platform/logger"
	"tml/internal/platform/metrics"
	platformredis "tml/internal/platform/redis"
	"tml/internal/project"
	projecthandler "tml/internal/project/handler"
	"tml/internal/quorum"
	quorumhandler "tml/internal/quorum/handler"
	"tml/internal/signing"
	httptransport "tml/internal/transport/http"
	"tml/internal/webhook"
	webhookhandler "tml/internal/webhook/handler"
	audit "tml/pkg/platform/audit"
	kafkasink "tml/pkg/platform/audit/sink/kafka"
	auditmem "tml/pkg/platform/audit/store/memory"
	auditpg "tml/pkg/platform/audit/store/postgres"
	"tml/pkg/platform/audit/publisher"
)

// main wires storage, the signing oracle, domain services, and the HTTP
// router. Business logic lives in the internal packages; everything here is
// assembly and lifecycle.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	m := metrics.New()

	// Storage: postgres when configured, in-memory otherwise.
	var (
		attestationStore attestation.Store = attestation.NewMemoryStore()
		auditStore       audit.Store       = auditmem.NewInMemoryStore()
	)
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		attestationStore = attestation.NewPostgresStore(pool)

		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("postgres audit connect failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		auditStore = auditpg.New(db)
	}

	actorStore := actor.NewMemoryStore()
	issuerStore := actor.NewMemoryIssuerStore()
	projectStore := project.NewMemoryStore()
	milestoneStore := project.NewMemoryMilestoneStore()
	auditorStore := assignment.NewMemoryAuditorStore()
	poolStore := assignment.NewMemoryPoolStore()
	certificateStore := certificate.NewMemoryStore()
	disputeStore := dispute.NewMemoryStore()
	subscriptionStore := webhook.NewMemoryStore()
	deadLetters := webhook.NewMemoryDeadLetters()

	// Audit pipeline: buffered publisher, optional Kafka sink.
	publisherOpts := []publisher.Option{
		publisher.WithAsyncBuffer(64),
		publisher.WithLogger(log),
	}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := kafkasink.New(ctx, cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		if err != nil {
			log.Error("kafka audit sink failed", "error", err)
			os.Exit(1)
		}
		publisherOpts = append(publisherOpts, publisher.WithSink(sink))
	}
	auditLog := publisher.NewPublisher(auditStore, publisherOpts...)
	defer auditLog.Close()

	// Milestone lock: redis lease when configured, keyed mutex otherwise.
	var locker locks.MilestoneLocker = locks.NewMemory()
	if cfg.RedisURL != "" {
		redisClient, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			log.Error("redis connect failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		locker = locks.NewRedis(redisClient.Client, cfg.LockTTL)
	}

	// Service signing key. Ephemeral unless provided; certificates signed
	// with an ephemeral key do not survive verification across restarts.
	_, signingKey, err := signing.GenerateKey(nil)
	if err != nil {
		log.Error("signing key generation failed", "error", err)
		os.Exit(1)
	}
	oracle := signing.NewEd25519Oracle(signingKey, issuerStore)

	dispatcher := webhook.NewDispatcher(subscriptionStore, deadLetters, auditLog, log,
		webhook.WithHTTPClient(&http.Client{Timeout: cfg.WebhookTimeout}),
		webhook.WithRetryPolicy(cfg.WebhookMaxAttempts, cfg.WebhookBackoffBase),
		webhook.WithMetrics(m),
	)

	resolver := quorum.NewResolver(quorum.ResolverParams{
		Attestations: attestationStore,
		Milestones:   milestoneStore,
		Pool:         poolStore,
		Certificates: certificateStore,
		Oracle:       oracle,
		Dispatcher:   dispatcher,
		AuditLog:     auditLog,
		Metrics:      m,
		Logger:       log,
	})

	attestationService := attestation.NewService(attestation.ServiceParams{
		Attestations: attestationStore,
		Milestones:   milestoneStore,
		Projects:     projectStore,
		Actors:       actorStore,
		Assignments:  auditorStore,
		Pool:         poolStore,
		Oracle:       oracle,
		Finalizer:    resolver,
		Locker:       locker,
		AuditLog:     auditLog,
		Metrics:      m,
		Logger:       log,
	})

	assignmentService := assignment.NewService(assignment.ServiceParams{
		Auditors:   auditorStore,
		Pool:       poolStore,
		Actors:     actorStore,
		Issuers:    issuerStore,
		Inspectors: attestation.InspectorSource{Store: attestationStore},
		Milestones: milestoneStore,
		Dispatcher: dispatcher,
		AuditLog:   auditLog,
		Metrics:    m,
		Logger:     log,
	})

	disputeService := dispute.NewService(dispute.ServiceParams{
		Disputes:     disputeStore,
		Milestones:   milestoneStore,
		Certificates: certificateStore,
		Assignments:  auditorStore,
		Actors:       actorStore,
		Locker:       locker,
		Dispatcher:   dispatcher,
		AuditLog:     auditLog,
		Metrics:      m,
		Logger:       log,
	})

	projectService := project.NewService(projectStore, milestoneStore, log)

	jwtService := jwtauth.NewService(cfg.JWTSigningKey, "tml")

	router := httptransport.NewRouter(log,
		attestationhandler.New(attestationService, log, jwtService),
		assignmenthandler.New(assignmentService, log, jwtService),
		disputehandler.New(disputeService, log, jwtService),
		quorumhandler.New(resolver, certificateStore, log, jwtService),
		projecthandler.New(projectService, log, jwtService),
		webhookhandler.New(subscriptionStore, deadLetters, log, jwtService),
	)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting tml server", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	dispatcher.Flush()
}
