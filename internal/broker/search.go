package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxSearchResponseBody = 5 * 1024 * 1024

// ErrNoSearchProvider signals that no meta_search backend is configured.
var ErrNoSearchProvider = errors.New("broker: no search provider configured")

// SearchResult is one hit from a meta_search call.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchProvider answers meta_search queries against an external search
// index.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// HTTPSearchProvider calls a Brave-Search-compatible JSON search endpoint.
// BaseURL lets this point at any compatible gateway the deployment
// configures, matching the same baseURL-override shape as
// ingestion.HTTPEmbeddingProvider and hypothesis.HTTPGenerator.
type HTTPSearchProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPSearchProvider constructs a provider. baseURL defaults to the
// Brave Search API if empty.
func NewHTTPSearchProvider(baseURL, apiKey string) (*HTTPSearchProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("broker: search API key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.search.brave.com/res/v1/web/search"
	}
	return &HTTPSearchProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type braveSearchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search issues a GET request with q and count query parameters and
// flattens the response into SearchResult.
func (p *HTTPSearchProvider) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("broker: build search request: %w", err)
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", limit))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker: send search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchResponseBody))
	if err != nil {
		return nil, fmt.Errorf("broker: read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("broker: unexpected search status %d: %s", resp.StatusCode, string(body))
	}

	var parsed braveSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("broker: unmarshal search response: %w", err)
	}

	out := make([]SearchResult, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		out = append(out, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return out, nil
}

// MetaSearch implements the meta_search operation: evaluate policy against
// no particular host (search itself is not host-scoped), call the
// configured SearchProvider under the broker's fetch deadline, and record
// the Action/ToolTrace pair.
func (b *Broker) MetaSearch(ctx context.Context, caseUID, actorID, query string, limit int) ([]SearchResult, error) {
	call := b.newCall(ctx, caseUID, actorID, "meta_search", "", map[string]any{"q": query, "limit": limit})

	decision := allowedDecision()
	if b.search == nil {
		return nil, b.finish(ctx, call, "meta_search", decision, nil, ErrNoSearchProvider)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, b.fetchTimeout)
	defer cancel()

	results, err := b.search.Search(fetchCtx, query, limit)
	response := map[string]any{}
	if err == nil {
		response["result_count"] = len(results)
	}

	if finishErr := b.finish(ctx, call, "meta_search", decision, response, err); finishErr != nil {
		return nil, finishErr
	}
	return results, nil
}
