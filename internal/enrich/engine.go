package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Generation is one completion from the language-generation engine.
type Generation struct {
	Text            string
	TokensGenerated int
}

// Generator is the external language-generation capability.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Generation, error)
	ModelName() string
}

// LlamaClient talks to a llama.cpp-server compatible /completion endpoint.
type LlamaClient struct {
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

// NewLlamaClient creates a client for the given endpoint.
func NewLlamaClient(endpoint, model string, maxTokens int, temperature float64) *LlamaClient {
	return &LlamaClient{
		endpoint:    endpoint,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		client:      &http.Client{Timeout: 5 * time.Minute},
	}
}

// ModelName returns the configured model identifier.
func (c *LlamaClient) ModelName() string {
	return c.model
}

type completionRequest struct {
	Prompt      string  `json:"prompt"`
	NPredict    int     `json:"n_predict"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

type completionResponse struct {
	Content         string `json:"content"`
	TokensPredicted int    `json:"tokens_predicted"`
}

// Generate runs one completion.
func (c *LlamaClient) Generate(ctx context.Context, prompt string) (*Generation, error) {
	payload, err := json.Marshal(completionRequest{
		Prompt:      prompt,
		NPredict:    c.maxTokens,
		Temperature: c.temperature,
		Stream:      false,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("generation http %d: %s", resp.StatusCode, string(body))
	}

	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("failed to decode generation response: %w", err)
	}

	return &Generation{
		Text:            cr.Content,
		TokensGenerated: cr.TokensPredicted,
	}, nil
}
