// Mock signing agent for local development and e2e tests. Speaks the same
// JSON protocol as the httpagent adapter and keeps an in-memory Ed25519
// keyring, generating a key pair per key_ref on first use.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultPort      = "8091"
	defaultAPIKey    = "signing-agent-secret-key"
	defaultLatencyMs = "20"
)

type SignRequest struct {
	Payload string `json:"payload"`
	KeyRef  string `json:"key_ref"`
}

type SignResponse struct {
	Proof string `json:"proof"`
}

type VerifyRequest struct {
	Payload            string `json:"payload"`
	VerificationMethod string `json:"verification_method"`
	ProofValue         string `json:"proof_value"`
}

type VerifyResponse struct {
	Valid bool `json:"valid"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

var (
	apiKey    = getEnv("API_KEY", defaultAPIKey)
	latencyMs = getEnvInt("LATENCY_MS", defaultLatencyMs)

	keyringMu sync.Mutex
	keyring   = map[string]ed25519.PrivateKey{}
)

// failKeyRefs are magic key refs that simulate agent outages for e2e tests.
var failKeyRefs = map[string]bool{
	"did:web:broken.example:issuer": true,
}

func main() {
	port := getEnv("PORT", defaultPort)

	http.HandleFunc("/health", handleHealth)
	http.HandleFunc("/sign", handleSign)
	http.HandleFunc("/verify", handleVerify)

	log.Printf("🔏 Mock Signing Agent starting on port %s", port)
	log.Printf("📝 API Key: %s", apiKey)
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
		"service": "signing-agent",
		"version": "1.0.0",
	})
}

func handleSign(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)
	log.Printf("📥 Incoming request: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodPost {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !checkAPIKey(w, r) {
		return
	}

	var req SignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.KeyRef == "" {
		sendError(w, "key_ref is required", http.StatusBadRequest)
		return
	}
	if failKeyRefs[req.KeyRef] {
		sendError(w, "Signing backend unavailable", http.StatusServiceUnavailable)
		log.Printf("💥 Simulated outage for key ref: %s", req.KeyRef)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil || len(payload) == 0 {
		sendError(w, "payload must be non-empty base64", http.StatusBadRequest)
		return
	}

	priv := keyFor(req.KeyRef)
	sig := ed25519.Sign(priv, payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(SignResponse{
		Proof: base64.StdEncoding.EncodeToString(sig),
	})

	log.Printf("✅ Signed %d bytes for %s", len(payload), req.KeyRef)
}

func handleVerify(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)
	log.Printf("📥 Incoming request: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodPost {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !checkAPIKey(w, r) {
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	valid := verify(req)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(VerifyResponse{Valid: valid})

	log.Printf("✅ Verify %s -> valid=%v", req.VerificationMethod, valid)
}

func verify(req VerifyRequest) bool {
	did, _, ok := strings.Cut(req.VerificationMethod, "#")
	if !ok || did == "" {
		return false
	}

	keyringMu.Lock()
	priv, known := keyring[did]
	keyringMu.Unlock()
	if !known {
		return false
	}

	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(req.ProofValue)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(priv.Public().(ed25519.PublicKey), payload, sig)
}

// keyFor returns the key pair for a key ref, generating one on first use so
// any issuer DID works without pre-registration.
func keyFor(keyRef string) ed25519.PrivateKey {
	keyringMu.Lock()
	defer keyringMu.Unlock()

	if priv, ok := keyring[keyRef]; ok {
		return priv
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("generate key for %s: %v", keyRef, err)
	}
	keyring[keyRef] = priv
	log.Printf("🔑 Generated key pair for %s", keyRef)
	return priv
}

func checkAPIKey(w http.ResponseWriter, r *http.Request) bool {
	authHeader := r.Header.Get("X-API-Key")
	if authHeader == "" {
		sendError(w, "Missing X-API-Key header", http.StatusUnauthorized)
		return false
	}
	if authHeader != apiKey {
		sendError(w, "Invalid API key", http.StatusUnauthorized)
		return false
	}
	return true
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
