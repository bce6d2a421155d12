// Mock trust registry for local development and e2e tests. Serves the issuer
// lookup endpoint the trust HTTP adapter consumes, with magic DIDs to drive
// failure-path tests.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort      = "8092"
	defaultLatencyMs = "30"
)

type IssuerResponse struct {
	DID       string `json:"did"`
	Trusted   bool   `json:"trusted"`
	CheckedAt string `json:"checked_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

var latencyMs = getEnvInt("LATENCY_MS", defaultLatencyMs)

// trustedIssuers come from the TRUSTED_ISSUERS env var and are always trusted.
var trustedIssuers = map[string]bool{}

// untrustedIssuers are magic DIDs that are always rejected.
var untrustedIssuers = map[string]bool{
	"did:web:quack.example:dr-nick": true,
}

// unknownIssuers are magic DIDs that return 404.
var unknownIssuers = map[string]bool{
	"did:web:nowhere.example:ghost": true,
}

// flakyIssuers are magic DIDs that simulate a registry outage with a 500.
var flakyIssuers = map[string]bool{
	"did:web:flaky.example:outage": true,
}

func main() {
	port := getEnv("PORT", defaultPort)

	for _, entry := range strings.Split(os.Getenv("TRUSTED_ISSUERS"), ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			trustedIssuers[entry] = true
		}
	}

	http.HandleFunc("/health", handleHealth)
	http.HandleFunc("/v1/issuers/", handleIssuerLookup)

	log.Printf("🏥 Mock Trust Registry starting on port %s", port)
	log.Printf("📋 Preconfigured trusted issuers: %d", len(trustedIssuers))
	log.Printf("⏱️  Simulated latency: %dms", latencyMs)

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "trust-registry",
		"version": "1.0.0",
	})
}

func handleIssuerLookup(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)
	log.Printf("📥 Incoming request: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodGet {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	escaped := strings.TrimPrefix(r.URL.Path, "/v1/issuers/")
	did, err := url.PathUnescape(escaped)
	if err != nil || did == "" {
		sendError(w, "issuer DID is required", http.StatusBadRequest)
		return
	}

	switch {
	case flakyIssuers[did]:
		sendError(w, "Registry backend unavailable", http.StatusInternalServerError)
		log.Printf("💥 Simulated outage for issuer: %s", did)
		return
	case unknownIssuers[did]:
		sendError(w, "Issuer not found", http.StatusNotFound)
		log.Printf("🔍 Issuer not found (test DID): %s", did)
		return
	}

	trusted := isTrusted(did)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(IssuerResponse{
		DID:       did,
		Trusted:   trusted,
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	})

	log.Printf("✅ Issuer lookup: %s -> trusted=%v", did, trusted)
}

func isTrusted(did string) bool {
	if trustedIssuers[did] {
		return true
	}
	if untrustedIssuers[did] {
		return false
	}

	// Deterministic pseudo-random answer for everything else: roughly nine
	// out of ten issuers are trusted.
	hash := sha256.Sum256([]byte(did))
	return hex.EncodeToString(hash[:])[0] != '0'
}

func sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
	log.Printf("❌ Error response: %d - %s", code, message)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key, defaultValue string) int {
	value := getEnv(key, defaultValue)
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("⚠️  Invalid integer value for %s, using default: %s", key, defaultValue)
		intValue, _ = strconv.Atoi(defaultValue)
	}
	return intValue
}
