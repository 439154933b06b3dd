package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pgvector/pgvector-go"
)

// ErrNoProvider signals that no embedding provider is configured. Callers
// should treat this as "no embedding available" rather than a transient
// failure — chunks remain searchable by full-text search alone.
var ErrNoProvider = errors.New("ingestion: no embedding provider configured")

const maxResponseBody = 10 * 1024 * 1024

// EmbeddingProvider generates vector embeddings from text.
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error)
	Dimensions() int
}

// HTTPEmbeddingProvider calls an OpenAI-compatible embeddings endpoint.
// BaseURL lets this point at any compatible gateway, not just OpenAI
// itself.
type HTTPEmbeddingProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	dimensions int
}

// NewHTTPEmbeddingProvider constructs a provider. baseURL defaults to the
// OpenAI embeddings endpoint if empty.
func NewHTTPEmbeddingProvider(baseURL, apiKey, model string, dimensions int) (*HTTPEmbeddingProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ingestion: embedding API key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1/embeddings"
	}
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &HTTPEmbeddingProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		dimensions: dimensions,
	}, nil
}

func (p *HTTPEmbeddingProvider) Dimensions() int { return p.dimensions }

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// EmbedBatch sends one or more chunks of text to the embedding endpoint in
// a single request, retrying transient failures with exponential backoff.
func (p *HTTPEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	const maxAttempts = 3
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}

		vecs, err := p.embedOnce(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("ingestion: embed batch failed after %d attempts: %w", maxAttempts, lastErr)
}

type retryableError struct{ err error }

func (r retryableError) Error() string { return r.err.Error() }
func (r retryableError) Unwrap() error { return r.err }

func isRetryable(err error) bool {
	var r retryableError
	return errors.As(err, &r)
}

func (p *HTTPEmbeddingProvider) embedOnce(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	reqBody, err := json.Marshal(embeddingRequest{Input: texts, Model: p.model, Dimensions: p.dimensions})
	if err != nil {
		return nil, fmt.Errorf("ingestion: marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("ingestion: build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, retryableError{fmt.Errorf("ingestion: send embedding request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("ingestion: read embedding response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, retryableError{fmt.Errorf("ingestion: embedding endpoint status %d: %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp embeddingResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != nil {
			return nil, fmt.Errorf("ingestion: embedding error (HTTP %d): %s: %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return nil, fmt.Errorf("ingestion: unexpected embedding status %d: %s", resp.StatusCode, string(body))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("ingestion: unmarshal embedding response: %w", err)
	}

	vecs := make([]pgvector.Vector, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			continue
		}
		vecs[d.Index] = pgvector.NewVector(d.Embedding)
	}
	return vecs, nil
}

// BatchEmbed splits texts into groups of at most batchSize and embeds each
// group in order, returning a single flattened slice aligned with the
// input order. Default batch size is 32 when batchSize <= 0.
func BatchEmbed(ctx context.Context, provider EmbeddingProvider, texts []string, batchSize int) ([]pgvector.Vector, error) {
	if batchSize <= 0 {
		batchSize = 32
	}
	out := make([]pgvector.Vector, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := provider.EmbedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("ingestion: batch embed [%d:%d]: %w", i, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}
