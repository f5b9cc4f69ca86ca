// Package anthropic implements the aiclient port against the Anthropic
// Messages API.
package anthropic

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

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

// Client talks to the Anthropic Messages API.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// New creates a Client for model. The API key is read from the environment
// variable named by apiKeyEnv.
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

type messagesRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []aiclient.Message `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat executes one completion call. System messages are lifted into the
// Messages API system field; JSON mode is requested through an instruction
// suffix since the API has no response-format toggle.
func (c *Client) Chat(ctx context.Context, req aiclient.Request) (*aiclient.Response, error) {
	ctx, span := otel.Tracer("anthropic").Start(ctx, "ai.chat")
	defer span.End()
	span.SetAttributes(attribute.String("ai.model", c.model))

	system := ""
	msgs := make([]aiclient.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		msgs = append(msgs, m)
	}
	if req.JSONOutput && len(msgs) > 0 {
		msgs[len(msgs)-1].Content += "\n\nRespond with a single JSON object and nothing else."
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	payload, err := json.Marshal(messagesRequest{
		Model:       c.model,
		System:      system,
		Messages:    msgs,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	var out *aiclient.Response
	call := func() error {
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
		if reqErr != nil {
			return fmt.Errorf("anthropic: create request: %w", reqErr)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", apiVersion)

		resp, doErr := c.httpClient.Do(httpReq)
		if doErr != nil {
			return &aiclient.TransportError{Provider: "anthropic", Err: doErr}
		}
		defer func() { _ = resp.Body.Close() }()

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return &aiclient.TransportError{Provider: "anthropic", Err: readErr}
		}
		if resp.StatusCode >= 400 {
			return &aiclient.ProviderError{Provider: "anthropic", Status: resp.StatusCode, Body: string(data)}
		}

		var parsed messagesResponse
		if jsonErr := json.Unmarshal(data, &parsed); jsonErr != nil {
			return &aiclient.ProviderError{Provider: "anthropic", Status: resp.StatusCode, Body: "malformed messages payload"}
		}

		text := ""
		for _, block := range parsed.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}

		out = &aiclient.Response{Content: text}
		out.Usage.PromptTokens = parsed.Usage.InputTokens
		out.Usage.CompletionTokens = parsed.Usage.OutputTokens
		out.Usage.TotalTokens = parsed.Usage.InputTokens + parsed.Usage.OutputTokens
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
