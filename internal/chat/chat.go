// Package chat composes the strict prompt around ranked candidates and
// forwards the signed request to the external worker.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mnbossa/agridocs/internal/docs"
	"github.com/mnbossa/agridocs/internal/envelope"
	"github.com/mnbossa/agridocs/internal/metrics"
	"github.com/mnbossa/agridocs/internal/rank"
)

// The worker-side model never sees the corpus, only this candidate block,
// so the instruction pins it down hard: exact titles and URLs only, a
// fixed refusal string, and a mandated JSON-array reply shape.
const systemInstruction = "You are a search assistant that only uses European Parliament AGRI committee documents provided in the context. " +
	"You must not invent or infer document titles or links. If the supplied candidate list contains relevant documents, " +
	"produce a concise answer that references only those documents by exact title and URL. If none match, reply exactly: " +
	"'I can only search AGRI committee documents; no matching documents found.' Output must be a JSON array of matches: " +
	`[{"title":"...","url":"...","snippet":"...","matched_terms":"..."}].`

const noCandidatesText = "No candidates available."

const maxReplyBytes = 1 << 20

// Config holds the worker connection settings.
type Config struct {
	WorkerURL   string
	Secret      string
	Model       string
	TopKDefault int
}

// Orchestrator ranks the corpus for a query, builds the three-message
// exchange and delegates to the worker over one signed HTTP call.
type Orchestrator struct {
	store  docs.Store
	clock  docs.Clock
	client *http.Client
	nonce  envelope.NonceFunc
	cfg    Config
	logger *zap.Logger
}

// New constructs an Orchestrator. A nil client falls back to a default
// with a 30 second timeout; a nil nonce function uses crypto/rand.
func New(store docs.Store, clock docs.Clock, client *http.Client, cfg Config, logger *zap.Logger) *Orchestrator {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:  store,
		clock:  clock,
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Query validates the question, selects candidates and forwards the signed
// envelope to the worker, returning the worker's JSON reply unchanged.
func (o *Orchestrator) Query(ctx context.Context, q string, topK int) (json.RawMessage, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: q is required", docs.ErrInvalidRequest)
	}
	// Deployment faults surface before any network or store traffic.
	if o.cfg.WorkerURL == "" {
		return nil, &docs.ConfigurationError{Setting: "worker.url"}
	}
	if o.cfg.Secret == "" {
		return nil, &docs.ConfigurationError{Setting: "worker.secret"}
	}
	if topK <= 0 {
		topK = o.cfg.TopKDefault
	}

	corpus, err := o.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	candidates := rank.Rank(corpus, q)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	payload := envelope.Payload{
		Model:    o.cfg.Model,
		Messages: buildMessages(q, candidates),
		Stream:   false,
	}
	signer := envelope.NewSigner([]byte(o.cfg.Secret), o.clock, o.nonce)
	raw, sig, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign envelope: %w", err)
	}

	return o.forward(ctx, raw, sig)
}

// buildMessages assembles the three-message exchange: instruction,
// authoritative candidate block, user question plus task.
func buildMessages(q string, candidates []docs.Document) []envelope.Message {
	lines := make([]string, 0, len(candidates))
	for i, c := range candidates {
		lines = append(lines, fmt.Sprintf("%d) Title: %s\n   URL: %s\n   Excerpt: %s",
			i+1, c.Title, c.URL, c.Excerpt))
	}
	block := noCandidatesText
	if len(lines) > 0 {
		block = strings.Join(lines, "\n")
	}

	userBlock := fmt.Sprintf("User question: %s\n"+
		"Task: Return a JSON array of matching documents from the candidate list only. "+
		"If no candidate matches, return the single-string refusal above.", q)

	return []envelope.Message{
		{Role: "system", Content: systemInstruction},
		{Role: "system", Content: "Candidate documents (do not alter):\n" + block},
		{Role: "user", Content: userBlock},
	}
}

func (o *Orchestrator) forward(ctx context.Context, raw []byte, sig string) (json.RawMessage, error) {
	url := strings.TrimRight(o.cfg.WorkerURL, "/") + "/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build worker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", sig)

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		metrics.ObserveChatForward("transport_error", time.Since(start))
		o.logger.Error("worker call failed", zap.Error(err))
		return nil, &docs.UpstreamError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		metrics.ObserveChatForward("read_error", time.Since(start))
		return nil, &docs.UpstreamError{Err: fmt.Errorf("read worker reply: %w", err)}
	}
	metrics.ObserveChatForward(strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		o.logger.Warn("worker returned non-success status",
			zap.Int("status", resp.StatusCode),
		)
		return nil, &docs.UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if !json.Valid(body) {
		return nil, &docs.UpstreamError{Err: fmt.Errorf("worker reply is not valid JSON")}
	}
	return json.RawMessage(body), nil
}
