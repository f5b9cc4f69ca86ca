// Package openaicompat implements the aiclient port against OpenAI-style
// chat-completion APIs (OpenAI itself and compatible proxies).
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Strob0t/ScoreForge/internal/port/aiclient"
	"github.com/Strob0t/ScoreForge/internal/resilience"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// New creates a Client for model. The API key is read from the environment
// variable named by apiKeyEnv. An empty baseURL targets the OpenAI API.
func New(baseURL, model, apiKeyEnv string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		apiKey:  os.Getenv(apiKeyEnv),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) { c.breaker = b }

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

type chatRequest struct {
	Model          string             `json:"model"`
	Messages       []aiclient.Message `json:"messages"`
	Temperature    *float64           `json:"temperature,omitempty"`
	TopP           *float64           `json:"top_p,omitempty"`
	MaxTokens      int                `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat    `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Chat executes one completion call.
func (c *Client) Chat(ctx context.Context, req aiclient.Request) (*aiclient.Response, error) {
	ctx, span := otel.Tracer("openaicompat").Start(ctx, "ai.chat")
	defer span.End()
	span.SetAttributes(attribute.String("ai.model", c.model))

	body := chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONOutput {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: marshal request: %w", err)
	}

	var out *aiclient.Response
	call := func() error {
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if reqErr != nil {
			return fmt.Errorf("openaicompat: create request: %w", reqErr)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, doErr := c.httpClient.Do(httpReq)
		if doErr != nil {
			return &aiclient.TransportError{Provider: "openai", Err: doErr}
		}
		defer func() { _ = resp.Body.Close() }()

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return &aiclient.TransportError{Provider: "openai", Err: readErr}
		}
		if resp.StatusCode >= 400 {
			return &aiclient.ProviderError{Provider: "openai", Status: resp.StatusCode, Body: string(data)}
		}

		var parsed chatResponse
		if jsonErr := json.Unmarshal(data, &parsed); jsonErr != nil {
			return &aiclient.ProviderError{Provider: "openai", Status: resp.StatusCode, Body: "malformed completion payload"}
		}
		if len(parsed.Choices) == 0 {
			return &aiclient.ProviderError{Provider: "openai", Status: resp.StatusCode, Body: "no choices returned"}
		}

		out = &aiclient.Response{Content: parsed.Choices[0].Message.Content}
		out.Usage.PromptTokens = parsed.Usage.PromptTokens
		out.Usage.CompletionTokens = parsed.Usage.CompletionTokens
		out.Usage.TotalTokens = parsed.Usage.TotalTokens
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Do(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("ai.usage.prompt_tokens", out.Usage.PromptTokens),
		attribute.Int("ai.usage.completion_tokens", out.Usage.CompletionTokens),
	)
	return out, nil
}
