// Package qr renders sealed credentials as QR codes. Small credentials are
// embedded whole so a pharmacy can verify fully offline; anything over the
// capacity threshold falls back to a retrieval URL carrying the credential
// ID and a truncated content hash for tamper evidence.
package qr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"rxcred/internal/credential/canonical"
	"rxcred/internal/credential/models"
	"rxcred/internal/platform/metrics"
	dErrors "rxcred/pkg/domain-errors"
)

// Mode says how the QR payload carries the credential.
type Mode string

const (
	// ModeEmbedded carries the full canonical credential document.
	ModeEmbedded Mode = "embedded"
	// ModeURLFallback carries a retrieval URL instead of the document.
	ModeURLFallback Mode = "url_fallback"
)

// DefaultEmbedCapacity is the byte budget for embedded payloads: binary
// capacity of a version 40 code at the highest error correction level.
const DefaultEmbedCapacity = 1273

// hashLength is the number of hex characters of the content digest carried
// on fallback URLs.
const hashLength = 16

// defaultImageSize is the rendered PNG edge length in pixels.
const defaultImageSize = 512

// Payload is an encoded QR content plus its metadata.
type Payload struct {
	Mode         Mode   `json:"mode"`
	Data         string `json:"data"`
	CredentialID string `json:"credential_id"`
	ContentHash  string `json:"content_hash,omitempty"`
}

// Codec encodes credentials into QR payloads and images.
type Codec struct {
	embedCapacity int
	baseURL       string
	imageSize     int
	metrics       *metrics.Metrics
}

// Option configures the Codec.
type Option func(*Codec)

// WithEmbedCapacity overrides the embedded payload byte budget.
func WithEmbedCapacity(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.embedCapacity = n
		}
	}
}

// WithImageSize sets the rendered PNG edge length in pixels.
func WithImageSize(px int) Option {
	return func(c *Codec) {
		if px > 0 {
			c.imageSize = px
		}
	}
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Codec) {
		c.metrics = m
	}
}

// New creates a codec. baseURL is the public credential retrieval endpoint
// used for fallback payloads, without a trailing slash.
func New(baseURL string, opts ...Option) *Codec {
	c := &Codec{
		embedCapacity: DefaultEmbedCapacity,
		baseURL:       baseURL,
		imageSize:     defaultImageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode turns a sealed credential into a QR payload. Unsealed credentials
// are rejected: a QR code for an unsigned document would verify nothing.
func (c *Codec) Encode(cred *models.Credential) (*Payload, error) {
	if cred == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "credential is required")
	}
	if !cred.Sealed() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "credential is not sealed")
	}

	data, err := canonical.Serialize(cred)
	if err != nil {
		return nil, err
	}

	payload := &Payload{CredentialID: cred.ID}
	if len(data) <= c.embedCapacity {
		payload.Mode = ModeEmbedded
		payload.Data = string(data)
	} else {
		digest := sha256.Sum256(data)
		payload.Mode = ModeURLFallback
		payload.ContentHash = hex.EncodeToString(digest[:])[:hashLength]
		payload.Data = fmt.Sprintf("%s/credentials/%s?h=%s", c.baseURL, cred.ID, payload.ContentHash)
	}

	if c.metrics != nil {
		c.metrics.IncrementQREncoded(string(payload.Mode))
	}
	return payload, nil
}

// Image renders the payload as a PNG at the highest error correction level.
func (c *Codec) Image(payload *Payload) ([]byte, error) {
	if payload == nil || payload.Data == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "payload is required")
	}
	png, err := qrcode.Encode(payload.Data, qrcode.Highest, c.imageSize)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "render qr image")
	}
	return png, nil
}

// Decoded is the result of reading a scanned payload. Embedded payloads
// populate Credential; fallback payloads populate only the credential ID and
// content hash, and the caller resolves the document over the network.
type Decoded struct {
	Credential   *models.Credential
	CredentialID string
	ContentHash  string
}

// Embedded reports whether the scanned payload carried the full document.
func (d *Decoded) Embedded() bool {
	return d.Credential != nil
}

// Decode reads a scanned payload. Fallback URLs yield the credential ID and
// content hash; anything else must parse as an embedded credential document.
func Decode(data string) (*Decoded, error) {
	if strings.HasPrefix(data, "http://") || strings.HasPrefix(data, "https://") {
		return decodeFallbackURL(data)
	}

	var cred models.Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "payload is not an embedded credential")
	}
	return &Decoded{Credential: &cred, CredentialID: cred.ID}, nil
}

func decodeFallbackURL(data string) (*Decoded, error) {
	u, err := url.Parse(data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "payload is not a retrieval url")
	}

	id := u.Path[strings.LastIndex(u.Path, "/")+1:]
	hash := u.Query().Get("h")
	if id == "" || hash == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "retrieval url is missing credential id or content hash")
	}
	return &Decoded{CredentialID: id, ContentHash: hash}, nil
}

// MatchesContent reports whether a resolved credential's canonical bytes match
// the content hash from a fallback payload. Resolvers must check this before
// treating the fetched document as equivalent to an embedded one.
func MatchesContent(cred *models.Credential, contentHash string) (bool, error) {
	if contentHash == "" {
		return false, nil
	}
	data, err := canonical.Serialize(cred)
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])[:hashLength] == contentHash, nil
}
