package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxGenerateResponseBody = 10 * 1024 * 1024

// ErrNoGenerator signals that no generate_structured backend is configured.
var ErrNoGenerator = errors.New("broker: no generator configured")

// Generator produces a structured JSON object from a system/user prompt
// pair, the generic form of hypothesis.Generator used directly by the Tool
// Broker so any pipeline stage (not just hypothesis proposal) can reach an
// LLM through the same policy-gated, audited path.
type Generator interface {
	GenerateStructured(ctx context.Context, systemPrompt, userPrompt string) (map[string]any, error)
}

// HTTPStructuredGenerator calls an OpenAI-compatible chat-completions
// endpoint with a JSON-object response format. Mirrors
// hypothesis.HTTPGenerator's request/response shape exactly, generalized to
// an arbitrary caller-supplied prompt pair instead of a fixed hypothesis
// schema.
type HTTPStructuredGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHTTPStructuredGenerator constructs a generator targeting baseURL (an
// OpenAI-compatible /chat/completions endpoint) with the given model id.
func NewHTTPStructuredGenerator(baseURL, apiKey, model string) (*HTTPStructuredGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("broker: generation API key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1/chat/completions"
	}
	return &HTTPStructuredGenerator{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

type generatorChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type generatorChatRequest struct {
	Model          string                 `json:"model"`
	Messages       []generatorChatMessage `json:"messages"`
	ResponseFormat map[string]string      `json:"response_format,omitempty"`
	Temperature    float64                `json:"temperature"`
}

type generatorChatResponse struct {
	Choices []struct {
		Message generatorChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GenerateStructured sends a structured chat completion request and parses
// its JSON-object response into a map.
func (g *HTTPStructuredGenerator) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string) (map[string]any, error) {
	body := generatorChatRequest{
		Model: g.model,
		Messages: []generatorChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    0.3,
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("broker: marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("broker: build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("broker: send generate request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxGenerateResponseBody))
	if err != nil {
		return nil, fmt.Errorf("broker: read generate response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp generatorChatResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != nil {
			return nil, fmt.Errorf("broker: generate error (HTTP %d): %s: %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return nil, fmt.Errorf("broker: unexpected generate status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed generatorChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("broker: unmarshal generate response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("broker: generate response has no choices")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &payload); err != nil {
		return nil, fmt.Errorf("broker: unmarshal structured response: %w", err)
	}
	return payload, nil
}

// GenerateStructured implements the generate_structured operation: no
// host-scoped policy check applies (the call targets a configured model
// endpoint, not a caller-supplied URL), and no per-case token/cost budget
// is checked; the only gate is the broker's llmTimeout.
func (b *Broker) GenerateStructured(ctx context.Context, caseUID, actorID, systemPrompt, userPrompt string) (map[string]any, error) {
	call := b.newCall(ctx, caseUID, actorID, "generate_structured", "", map[string]any{
		"system_prompt_length": len(systemPrompt),
		"user_prompt_length":   len(userPrompt),
	})

	decision := allowedDecision()
	if b.generator == nil {
		return nil, b.finish(ctx, call, "generate_structured", decision, nil, ErrNoGenerator)
	}

	llmCtx, cancel := context.WithTimeout(ctx, b.llmTimeout)
	defer cancel()

	payload, err := b.generator.GenerateStructured(llmCtx, systemPrompt, userPrompt)
	response := map[string]any{}
	if err == nil {
		response["key_count"] = len(payload)
	}

	if finishErr := b.finish(ctx, call, "generate_structured", decision, response, err); finishErr != nil {
		return nil, finishErr
	}
	return payload, nil
}
