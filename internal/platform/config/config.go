package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string

	DatabaseURL  string
	Redis        RedisConfig
	KafkaBrokers string

	IssuerDID string

	SigningAgentURL    string
	SigningAgentAPIKey string
	SigningTimeout     time.Duration

	TrustRegistryURL string
	TrustAllowlist   []string
	RegistryTimeout  time.Duration

	QRBaseURL       string
	QREmbedCapacity int
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// TrustCacheTTL enforces retention for cached trust registry decisions.
var TrustCacheTTL = 5 * time.Minute

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("RXCRED_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	environment := os.Getenv("RXCRED_ENV")
	if environment == "" {
		environment = "development"
	}

	qrBaseURL := os.Getenv("RXCRED_QR_BASE_URL")
	if qrBaseURL == "" {
		qrBaseURL = "http://localhost:8080/v1"
	}

	issuerDID := os.Getenv("RXCRED_ISSUER_DID")
	if issuerDID == "" {
		// Development default - override in production
		issuerDID = "did:web:rxcred.local:issuer"
	}

	var allowlist []string
	if raw := os.Getenv("RXCRED_TRUST_ALLOWLIST"); raw != "" {
		for _, entry := range strings.Split(raw, ",") {
			if entry = strings.TrimSpace(entry); entry != "" {
				allowlist = append(allowlist, entry)
			}
		}
	}

	if ttlStr := os.Getenv("RXCRED_TRUST_CACHE_TTL"); ttlStr != "" {
		if d, err := time.ParseDuration(ttlStr); err == nil {
			TrustCacheTTL = d
		}
	}

	return Server{
		Addr:               addr,
		Environment:        environment,
		DatabaseURL:        os.Getenv("RXCRED_DATABASE_URL"),
		Redis:              redisFromEnv(),
		KafkaBrokers:       os.Getenv("RXCRED_KAFKA_BROKERS"),
		IssuerDID:          issuerDID,
		SigningAgentURL:    os.Getenv("RXCRED_SIGNING_AGENT_URL"),
		SigningAgentAPIKey: os.Getenv("RXCRED_SIGNING_AGENT_API_KEY"),
		SigningTimeout:     durationFromEnv("RXCRED_SIGNING_TIMEOUT", 5*time.Second),
		TrustRegistryURL:   os.Getenv("RXCRED_TRUST_REGISTRY_URL"),
		TrustAllowlist:     allowlist,
		RegistryTimeout:    durationFromEnv("RXCRED_REGISTRY_TIMEOUT", 3*time.Second),
		QRBaseURL:          qrBaseURL,
		QREmbedCapacity:    intFromEnv("RXCRED_QR_EMBED_CAPACITY", 0),
	}
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("RXCRED_REDIS_URL"),
		PoolSize:     intFromEnv("RXCRED_REDIS_POOL_SIZE", 10),
		MinIdleConns: intFromEnv("RXCRED_REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  durationFromEnv("RXCRED_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  durationFromEnv("RXCRED_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: durationFromEnv("RXCRED_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}

func intFromEnv(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}
