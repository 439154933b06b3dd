package hypothesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxGenerateResponseBody = 10 * 1024 * 1024

// HTTPGenerator calls an OpenAI-compatible chat-completions endpoint with a
// JSON-object response format, backing the Tool Broker's
// generate_structured operation for hypothesis proposal. A malformed or
// empty model response is treated the same as a hard error by the caller:
// Engine.Generate always falls back to the deterministic archetypes rather
// than retry or degrade the prompt.
type HTTPGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHTTPGenerator constructs a generator targeting baseURL (an
// OpenAI-compatible /chat/completions endpoint) with the given model id.
func NewHTTPGenerator(baseURL, apiKey, model string) (*HTTPGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("hypothesis: generation API key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1/chat/completions"
	}
	return &HTTPGenerator{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string                 `json:"model"`
	Messages       []chatMessage          `json:"messages"`
	ResponseFormat map[string]string      `json:"response_format,omitempty"`
	Temperature    float64                `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type generatedHypothesesPayload struct {
	Hypotheses []GeneratedHypothesis `json:"hypotheses"`
}

const generateSystemPrompt = `You propose competing hypotheses for an investigation case from the fused assertions and source claims provided. Respond with a JSON object of the shape {"hypotheses": [{"label": "...", "statement": "...", "rationale": "...", "cites_assertion_uids": ["..."]}]}. Propose between two and five hypotheses that are mutually distinguishable, each grounded in the assertions given.`

// GenerateHypotheses implements Generator by sending a structured chat
// completion request and parsing its JSON-object response. Any network,
// HTTP status, or JSON error returns (nil, err); Engine.Generate treats
// that identically to an empty result and falls back.
func (g *HTTPGenerator) GenerateHypotheses(ctx context.Context, req GenerateRequest) ([]GeneratedHypothesis, error) {
	userContent, err := marshalContext(req)
	if err != nil {
		return nil, err
	}

	body := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: generateSystemPrompt},
			{Role: "user", Content: userContent},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    0.3,
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("hypothesis: marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("hypothesis: build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("hypothesis: send generate request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxGenerateResponseBody))
	if err != nil {
		return nil, fmt.Errorf("hypothesis: read generate response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp chatResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != nil {
			return nil, fmt.Errorf("hypothesis: generate error (HTTP %d): %s: %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return nil, fmt.Errorf("hypothesis: unexpected generate status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("hypothesis: unmarshal generate response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("hypothesis: generate response has no choices")
	}

	var payload generatedHypothesesPayload
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &payload); err != nil {
		return nil, fmt.Errorf("hypothesis: unmarshal structured hypotheses: %w", err)
	}

	return payload.Hypotheses, nil
}
