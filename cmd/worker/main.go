package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	certservice "github.com/gregoritrentin/prospera-api-sub003/internal/certificate/service"
	certstore "github.com/gregoritrentin/prospera-api-sub003/internal/certificate/store"
	docstore "github.com/gregoritrentin/prospera-api-sub003/internal/fiscaldoc/store"
	"github.com/gregoritrentin/prospera-api-sub003/internal/platform/config"
	"github.com/gregoritrentin/prospera-api-sub003/internal/platform/httpserver"
	platformkafka "github.com/gregoritrentin/prospera-api-sub003/internal/platform/kafka"
	"github.com/gregoritrentin/prospera-api-sub003/internal/platform/logger"
	"github.com/gregoritrentin/prospera-api-sub003/internal/platform/metrics"
	"github.com/gregoritrentin/prospera-api-sub003/internal/platform/postgres"
	platformredis "github.com/gregoritrentin/prospera-api-sub003/internal/platform/redis"
	"github.com/gregoritrentin/prospera-api-sub003/internal/provider"
	"github.com/gregoritrentin/prospera-api-sub003/internal/storage"
	"github.com/gregoritrentin/prospera-api-sub003/internal/transmission"

	"github.com/gregoritrentin/prospera-api-sub003/internal/certificate/reader"
	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
)

// main wires the transmission worker: stores, the certificate lifecycle, the
// per-city provider registry, and the Kafka consumer that drives documents to
// a terminal state. Business logic lives in the internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	env, err := id.ParseEnvironment(cfg.Transmission.Environment)
	if err != nil {
		log.Error("invalid transmission environment", "error", err.Error())
		os.Exit(1)
	}

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		log.Error("postgres unavailable", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.Error("schema setup failed", "error", err.Error())
		os.Exit(1)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err.Error())
		os.Exit(1)
	}

	producer, err := platformkafka.NewProducer(cfg.Kafka)
	if err != nil {
		log.Error("kafka producer unavailable", "error", err.Error())
		os.Exit(1)
	}
	defer producer.Close()

	if err := platformkafka.EnsureTopic(ctx, producer, cfg.Kafka); err != nil {
		log.Error("topic setup failed", "error", err.Error())
		os.Exit(1)
	}

	consumerClient, err := platformkafka.NewConsumer(cfg.Kafka)
	if err != nil {
		log.Error("kafka consumer unavailable", "error", err.Error())
		os.Exit(1)
	}
	defer consumerClient.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	blobs := storage.NewInMemoryBlobStore()

	// Redis is optional: without it, locking and idempotency degrade to
	// in-process coordination, which is only safe for a single instance.
	var locker certservice.Locker = certservice.NewMutexLocker()
	var idem transmission.IdempotencyStore = transmission.NewInMemoryIdempotencyStore()
	if redisClient != nil {
		defer redisClient.Close()
		locker = certservice.NewRedisLocker(redisClient.Client)
		idem = transmission.NewRedisIdempotencyStore(redisClient.Client)
	} else {
		log.Warn("redis not configured, falling back to in-process locks and idempotency")
	}

	certs := certservice.New(reader.New(), certstore.NewPostgres(db), blobs, locker, m,
		certservice.Options{
			RequireTrustedChain: cfg.Certificates.RequireTrustedChain,
			ActivationLockTTL:   cfg.Certificates.ActivationLockTTL,
		})

	registry := provider.NewRegistry(provider.NewPostgres(db), 5*time.Minute)
	docs := docstore.NewPostgres(db)

	transmitters := transmission.NewTransmitterRegistry()
	// The JSON bridge serves gateways that accept the neutral envelope.
	// Cities with bespoke SOAP protocols register dedicated transmitters here.
	httpTransmitter := transmission.NewHTTPTransmitter(nil)
	for _, tag := range []string{"abrasf-2.04", "abrasf-2.02", "prospera-gw-1"} {
		transmitters.Register(tag, httpTransmitter)
	}

	processor := transmission.NewProcessor(
		docs, certs, registry, transmitters,
		transmission.NewJSONPayloadRenderer(),
		transmission.NewPKCS12Signer(),
		transmission.NewBlobDocumentRenderer(blobs),
		transmission.NewStaticTranslator(log),
		idem, m, log, env,
		transmission.RetryPolicy{
			MaxAttempts: cfg.Transmission.MaxAttempts,
			BackoffBase: cfg.Transmission.BackoffBase,
			BackoffMax:  cfg.Transmission.BackoffMax,
		},
	)
	consumer := transmission.NewConsumer(consumerClient, processor, cfg.Transmission.Workers, log)

	opsChecks := []func() error{db.Ping}
	if redisClient != nil {
		opsChecks = append(opsChecks, func() error { return redisClient.Health(context.Background()) })
	}
	ops := httpserver.New(cfg.OpsAddr, httpserver.NewOpsRouter(opsChecks...))
	go func() {
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops server failed", "error", err.Error())
		}
	}()

	log.Info("transmission worker starting",
		"topic", cfg.Kafka.Topic,
		"group", cfg.Kafka.Group,
		"workers", cfg.Transmission.Workers,
		"environment", env.String())

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped", "error", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		log.Error("ops shutdown failed", "error", err.Error())
	}
	log.Info("transmission worker stopped")
}
