// Package envelope builds and signs the canonical payload sent to the
// chat worker. The worker recomputes the digest over the exact raw bytes,
// so serialization here must be deterministic: fixed field order, no
// extraneous whitespace.
package envelope

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mnbossa/agridocs/internal/docs"
)

// SignaturePrefix is the algorithm tag carried in the X-Signature header.
const SignaturePrefix = "sha256="

// Message is one entry of the chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Payload is the logical chat request before signing.
type Payload struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// Envelope is the wire artifact: the payload plus signing timestamp and a
// fresh nonce. Field order here defines the canonical byte layout.
type Envelope struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
	Timestamp int64     `json:"timestamp"`
	Nonce     string    `json:"nonce"`
}

// NonceFunc produces a random hex nonce. Injectable for tests.
type NonceFunc func() (string, error)

// NewNonce returns 8 random bytes hex-encoded.
func NewNonce() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// Signer computes the keyed digest over canonical envelope bytes. The
// secret never appears in the payload and is never logged.
type Signer struct {
	secret []byte
	clock  docs.Clock
	nonce  NonceFunc
}

// NewSigner constructs a Signer. A nil nonce function falls back to NewNonce.
func NewSigner(secret []byte, clock docs.Clock, nonce NonceFunc) *Signer {
	if nonce == nil {
		nonce = NewNonce
	}
	return &Signer{
		secret: secret,
		clock:  clock,
		nonce:  nonce,
	}
}

// Sign wraps the payload in a timestamped, nonce-bearing envelope and
// returns the canonical bytes plus the signature header value.
func (s *Signer) Sign(p Payload) ([]byte, string, error) {
	nonce, err := s.nonce()
	if err != nil {
		return nil, "", err
	}
	env := Envelope{
		Model:     p.Model,
		Messages:  p.Messages,
		Stream:    p.Stream,
		Timestamp: s.clock.Now().Unix(),
		Nonce:     nonce,
	}
	return Seal(env, s.secret)
}

// Seal serializes an envelope canonically and signs it. Split out from
// Sign so tests can pin timestamp and nonce.
func Seal(env Envelope, secret []byte) ([]byte, string, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, "", fmt.Errorf("marshal envelope: %w", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(raw)
	sig := SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
	return raw, sig, nil
}
