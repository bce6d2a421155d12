// Package httpagent adapts a remote signing agent speaking a small JSON
// protocol into the identity.SigningProvider port.
package httpagent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
)

const defaultTimeout = 5 * time.Second

// Client calls a remote signing agent over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New constructs a client for the agent at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type signRequest struct {
	Payload string `json:"payload"`
	KeyRef  string `json:"key_ref"`
}

type signResponse struct {
	Proof string `json:"proof"`
}

type verifyRequest struct {
	Payload            string `json:"payload"`
	VerificationMethod string `json:"verification_method"`
	ProofValue         string `json:"proof_value"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

// Sign posts the canonical payload to the agent and returns raw proof bytes.
// Transport failures surface as CodeSigningUnavailable so callers can retry;
// a malformed agent response is CodeInvalidProof and must not be retried.
func (c *Client) Sign(ctx context.Context, payload []byte, keyRef id.DID) ([]byte, error) {
	if len(payload) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signing payload is empty")
	}

	var resp signResponse
	status, err := c.post(ctx, "/sign", signRequest{
		Payload: base64.StdEncoding.EncodeToString(payload),
		KeyRef:  keyRef.String(),
	}, &resp)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSigningUnavailable, "signing agent unreachable")
	}
	if status != http.StatusOK {
		if status >= http.StatusInternalServerError {
			return nil, dErrors.New(dErrors.CodeSigningUnavailable,
				fmt.Sprintf("signing agent returned status %d", status))
		}
		return nil, dErrors.New(dErrors.CodeInvalidProof,
			fmt.Sprintf("signing agent rejected request with status %d", status))
	}

	proof, err := base64.StdEncoding.DecodeString(resp.Proof)
	if err != nil || len(proof) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidProof, "signing agent returned a malformed proof")
	}
	return proof, nil
}

// VerifySignature delegates signature verification to the agent.
func (c *Client) VerifySignature(ctx context.Context, payload []byte, verificationMethod string, proofValue string) (bool, error) {
	var resp verifyResponse
	status, err := c.post(ctx, "/verify", verifyRequest{
		Payload:            base64.StdEncoding.EncodeToString(payload),
		VerificationMethod: verificationMethod,
		ProofValue:         proofValue,
	}, &resp)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeSigningUnavailable, "signing agent unreachable")
	}
	if status != http.StatusOK {
		return false, dErrors.New(dErrors.CodeSigningUnavailable,
			fmt.Sprintf("signing agent returned status %d", status))
	}
	return resp.Valid, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
