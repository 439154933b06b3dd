package broker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FetchResult is the raw bytes retrieved for archive_url, plus the content
// type the origin server reported.
type FetchResult struct {
	Content  []byte
	MimeType string
}

// Fetcher retrieves raw bytes for a URL. The default implementation is a
// plain http.Client GET; tests substitute a stub.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

const maxArchiveBody = 50 * 1024 * 1024

// HTTPFetcher fetches a URL with the stdlib HTTP client.
type HTTPFetcher struct {
	httpClient *http.Client
}

// NewHTTPFetcher constructs a Fetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{httpClient: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("broker: build fetch request: %w", err)
	}
	req.Header.Set("User-Agent", "Evidentia/1.0 (+evidence-grounded-analysis)")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("broker: fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return FetchResult{}, fmt.Errorf("broker: unexpected fetch status %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveBody))
	if err != nil {
		return FetchResult{}, fmt.Errorf("broker: read fetch body: %w", err)
	}

	return FetchResult{Content: body, MimeType: resp.Header.Get("Content-Type")}, nil
}

// ArchiveURL implements the archive_url operation: evaluate policy against
// the URL's host, fetch under the broker's fetch deadline, and record the
// Action/ToolTrace pair. Concurrent calls for the same URL are collapsed
// into a single in-flight fetch via singleflight, since archive_url is
// idempotent and a duplicate in-flight request wastes the remote site's
// rate-limit budget for no benefit.
func (b *Broker) ArchiveURL(ctx context.Context, caseUID, actorID, rawURL string) (FetchResult, error) {
	call := b.newCall(ctx, caseUID, actorID, "archive_url", "", map[string]any{"url": rawURL})

	decision := b.policy.EvaluateOutboundURL(ctx, "archive_url", rawURL)
	if !decision.Allowed {
		return FetchResult{}, b.finish(ctx, call, "archive_url", decision, nil, nil)
	}

	if b.fetcher == nil {
		return FetchResult{}, b.finish(ctx, call, "archive_url", decision, nil,
			fmt.Errorf("broker: no fetcher configured"))
	}

	fetchCtx, cancel := context.WithTimeout(ctx, b.fetchTimeout)
	defer cancel()

	v, err, _ := b.archiveGroup.Do(rawURL, func() (any, error) {
		return b.fetcher.Fetch(fetchCtx, rawURL)
	})

	var result FetchResult
	response := map[string]any{}
	if err == nil {
		result = v.(FetchResult)
		response["mime_type"] = result.MimeType
		response["bytes"] = len(result.Content)
	}

	if finishErr := b.finish(ctx, call, "archive_url", decision, response, err); finishErr != nil {
		return FetchResult{}, finishErr
	}
	return result, nil
}
