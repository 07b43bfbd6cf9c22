package envelope

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func testEnvelope() Envelope {
	return Envelope{
		Model: "HuggingFaceTB/SmolLM3-3B:hf-inference",
		Messages: []Message{
			{Role: "system", Content: "instruction"},
			{Role: "user", Content: "question"},
		},
		Stream:    false,
		Timestamp: 1700000000,
		Nonce:     "a1b2c3d4e5f60718",
	}
}

func TestSealDeterministic(t *testing.T) {
	t.Parallel()

	secret := []byte("test-secret")
	raw1, sig1, err := Seal(testEnvelope(), secret)
	require.NoError(t, err)
	raw2, sig2, err := Seal(testEnvelope(), secret)
	require.NoError(t, err)

	require.Equal(t, raw1, raw2)
	require.Equal(t, sig1, sig2)
}

func TestSealCanonicalLayout(t *testing.T) {
	t.Parallel()

	raw, _, err := Seal(testEnvelope(), []byte("s"))
	require.NoError(t, err)

	// Field order is part of the contract the worker verifies against.
	s := string(raw)
	require.True(t, strings.HasPrefix(s, `{"model":`))
	model := strings.Index(s, `"model"`)
	messages := strings.Index(s, `"messages"`)
	stream := strings.Index(s, `"stream"`)
	timestamp := strings.Index(s, `"timestamp"`)
	nonce := strings.Index(s, `"nonce"`)
	require.True(t, model < messages)
	require.True(t, messages < stream)
	require.True(t, stream < timestamp)
	require.True(t, timestamp < nonce)
	require.True(t, json.Valid(raw))
}

func TestSealSignatureVerifies(t *testing.T) {
	t.Parallel()

	secret := []byte("test-secret")
	raw, sig, err := Seal(testEnvelope(), secret)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(sig, SignaturePrefix))
	mac := hmac.New(sha256.New, secret)
	mac.Write(raw)
	require.Equal(t, SignaturePrefix+hex.EncodeToString(mac.Sum(nil)), sig)
}

func TestSealFieldChangesAlterSignature(t *testing.T) {
	t.Parallel()

	secret := []byte("test-secret")
	_, base, err := Seal(testEnvelope(), secret)
	require.NoError(t, err)

	mutations := []func(*Envelope){
		func(e *Envelope) { e.Model = "other-model" },
		func(e *Envelope) { e.Messages[1].Content = "other question" },
		func(e *Envelope) { e.Stream = true },
		func(e *Envelope) { e.Timestamp++ },
		func(e *Envelope) { e.Nonce = "ffffffffffffffff" },
	}
	for _, mutate := range mutations {
		env := testEnvelope()
		mutate(&env)
		_, sig, err := Seal(env, secret)
		require.NoError(t, err)
		require.NotEqual(t, base, sig)
	}

	_, sig, err := Seal(testEnvelope(), []byte("other-secret"))
	require.NoError(t, err)
	require.NotEqual(t, base, sig)
}

func TestSignerWrapsPayload(t *testing.T) {
	t.Parallel()

	clock := fixedClock{t: time.Unix(1700000000, 0).UTC()}
	nonce := func() (string, error) { return "a1b2c3d4e5f60718", nil }
	signer := NewSigner([]byte("test-secret"), clock, nonce)

	raw, sig, err := signer.Sign(Payload{
		Model: "HuggingFaceTB/SmolLM3-3B:hf-inference",
		Messages: []Message{
			{Role: "system", Content: "instruction"},
			{Role: "user", Content: "question"},
		},
	})
	require.NoError(t, err)

	wantRaw, wantSig, err := Seal(testEnvelope(), []byte("test-secret"))
	require.NoError(t, err)
	require.Equal(t, wantRaw, raw)
	require.Equal(t, wantSig, sig)
}

func TestNewNonce(t *testing.T) {
	t.Parallel()

	n1, err := NewNonce()
	require.NoError(t, err)
	require.Len(t, n1, 16)
	_, err = hex.DecodeString(n1)
	require.NoError(t, err)

	n2, err := NewNonce()
	require.NoError(t, err)
	require.NotEqual(t, n1, n2)
}
