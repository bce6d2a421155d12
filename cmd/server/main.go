package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	credhandler "rxcred/internal/credential/handler"
	"rxcred/internal/credential/signer"
	credstore "rxcred/internal/credential/store"
	"rxcred/internal/credential/verifier"
	"rxcred/internal/identity"
	"rxcred/internal/identity/agent"
	"rxcred/internal/identity/httpagent"
	"rxcred/internal/platform/config"
	"rxcred/internal/platform/database"
	"rxcred/internal/platform/health"
	"rxcred/internal/platform/httpserver"
	kafkaproducer "rxcred/internal/platform/kafka/producer"
	"rxcred/internal/platform/logger"
	"rxcred/internal/platform/metrics"
	platformredis "rxcred/internal/platform/redis"
	rxhandler "rxcred/internal/prescription/handler"
	rxservice "rxcred/internal/prescription/service"
	rxstore "rxcred/internal/prescription/store"
	"rxcred/internal/qr"
	"rxcred/internal/revocation"
	httptransport "rxcred/internal/transport/http"
	"rxcred/internal/trust"
	id "rxcred/pkg/domain"
	audit "rxcred/pkg/platform/audit"
	auditpublisher "rxcred/pkg/platform/audit/publisher"
	opspublisher "rxcred/pkg/platform/audit/publishers/ops"
	auditmemory "rxcred/pkg/platform/audit/store/memory"
	auditpostgres "rxcred/pkg/platform/audit/store/postgres"
	platformsync "rxcred/pkg/platform/sync"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing rxcred",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"issuer_did", cfg.IssuerDID,
	)

	m := metrics.New()

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close() //nolint:errcheck // shutdown path
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // shutdown path
	}

	auditor, closeAudit := buildAuditor(cfg, pool, log)
	defer closeAudit()

	provider, err := buildSigningProvider(cfg, log)
	if err != nil {
		log.Error("signing provider init failed", "error", err)
		os.Exit(1)
	}

	trustRegistry := buildTrustRegistry(cfg, redisClient, m, log)

	var (
		records     rxstore.Store
		credentials credstore.Store
		revocations revocation.Registry
	)
	if pool != nil {
		records = rxstore.NewPostgres(pool.DB())
		credentials = credstore.NewPostgres(pool.DB())
		revocations = revocation.NewPostgres(pool.DB())
	} else {
		log.Warn("database not configured, using in-memory stores")
		records = rxstore.New()
		credentials = credstore.New()
		revocations = revocation.NewInMemory()
	}

	// One lock set across signer and service: sign and revoke on the same
	// record must never interleave.
	recordLocks := platformsync.NewShardedMutex()

	credentialSigner := signer.New(provider, records, credentials,
		signer.WithLogger(log),
		signer.WithMetrics(m),
		signer.WithAuditor(auditor),
		signer.WithLocks(recordLocks),
	)
	credentialVerifier := verifier.New(provider, trustRegistry, revocations,
		verifier.WithLogger(log),
		verifier.WithMetrics(m),
		verifier.WithAuditor(auditor),
	)
	prescriptionService := rxservice.New(records, credentials, credentialVerifier, revocations,
		rxservice.WithLogger(log),
		rxservice.WithMetrics(m),
		rxservice.WithAuditor(auditor),
		rxservice.WithLocks(recordLocks),
	)

	qrOpts := []qr.Option{qr.WithMetrics(m)}
	if cfg.QREmbedCapacity > 0 {
		qrOpts = append(qrOpts, qr.WithEmbedCapacity(cfg.QREmbedCapacity))
	}
	qrCodec := qr.New(cfg.QRBaseURL, qrOpts...)

	healthHandler := health.New(cfg.Environment)
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	}
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
	}

	router := httptransport.NewRouter(log, healthHandler,
		rxhandler.New(prescriptionService, log),
		credhandler.New(credentialSigner, credentialVerifier, credentials, log),
		qr.NewHandler(qrCodec, credentials, log),
	)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// buildSigningProvider selects the in-process agent or the remote HTTP agent.
// The local agent registers the configured issuer DID so single-node runs can
// sign without an external provider.
func buildSigningProvider(cfg config.Server, log *slog.Logger) (identity.SigningProvider, error) {
	if cfg.SigningAgentURL != "" {
		log.Info("using remote signing agent", "url", cfg.SigningAgentURL)
		return httpagent.New(cfg.SigningAgentURL, cfg.SigningAgentAPIKey,
			httpagent.WithTimeout(cfg.SigningTimeout),
		), nil
	}

	issuer, err := id.ParseDID(cfg.IssuerDID)
	if err != nil {
		return nil, err
	}
	local := agent.New()
	if err := local.Register(issuer); err != nil {
		return nil, err
	}
	log.Info("using in-process signing agent", "issuer_did", issuer)
	return local, nil
}

// buildTrustRegistry prefers the remote registry when configured, falling
// back to the static allowlist. A Redis cache wraps either when available.
func buildTrustRegistry(cfg config.Server, redisClient *platformredis.Client, m *metrics.Metrics, log *slog.Logger) verifier.TrustRegistry {
	var registry verifier.TrustRegistry
	if cfg.TrustRegistryURL != "" {
		log.Info("using remote trust registry", "url", cfg.TrustRegistryURL)
		registry = trust.NewHTTPClient(cfg.TrustRegistryURL,
			trust.WithTimeout(cfg.RegistryTimeout),
			trust.WithLogger(log),
			trust.WithMetrics(m),
		)
	} else {
		log.Info("using static trust allowlist", "issuers", len(cfg.TrustAllowlist))
		registry = trust.NewAllowlist(cfg.TrustAllowlist)
	}

	if redisClient != nil {
		registry = trust.NewCached(registry, redisClient.Client, config.TrustCacheTTL,
			trust.WithCacheLogger(log),
			trust.WithCacheMetrics(m),
		)
	}
	return registry
}

// buildAuditor assembles the audit pipeline: a durable store-backed publisher
// plus a fire-and-forget Kafka sink for operational consumers. The returned
// closer drains the async publisher.
func buildAuditor(cfg config.Server, pool *database.Pool, log *slog.Logger) (*audit.Logger, func()) {
	var store audit.Store
	if pool != nil {
		store = auditpostgres.New(pool.DB())
	} else {
		store = auditmemory.NewInMemoryStore()
	}
	publisher := auditpublisher.NewPublisher(store,
		auditpublisher.WithAsyncBuffer(256),
		auditpublisher.WithPublisherLogger(log),
	)

	emitters := audit.MultiEmitter{publisher}
	closers := []func(){publisher.Close}

	if cfg.KafkaBrokers != "" {
		producerCfg := kafkaproducer.Config{
			Brokers:         cfg.KafkaBrokers,
			Acks:            "all",
			Retries:         3,
			DeliveryTimeout: 30 * time.Second,
		}
		producer, err := kafkaproducer.New(producerCfg, log)
		if err != nil {
			log.Warn("kafka producer init failed, ops audit sink disabled", "error", err)
		} else {
			emitters = append(emitters, opspublisher.New(
				opsProducer{producer},
				opspublisher.WithLogger(log),
				opspublisher.WithMetrics(opspublisher.NewMetrics()),
			))
			closers = append(closers, func() {
				if err := producer.Close(); err != nil {
					log.Warn("kafka producer close failed", "error", err)
				}
			})
		}
	}

	auditor := audit.NewLogger(log, emitters)
	return auditor, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

// opsProducer adapts the platform Kafka producer to the ops sink's message
// type so pkg does not depend on internal packages.
type opsProducer struct {
	inner *kafkaproducer.Producer
}

func (p opsProducer) ProduceAsync(msg *opspublisher.ProducerMessage) error {
	return p.inner.ProduceAsync(&kafkaproducer.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: msg.Headers,
	})
}
