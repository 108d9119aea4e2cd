package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Yanchun-Li/ai-divination/internal/adapters/llm/prompt"
	"github.com/Yanchun-Li/ai-divination/internal/ports"
)

const (
	temperature = 0.5
	appTitle    = "ai-divination"

	// errorBodyLimit caps how much of a failed response ends up in the error.
	errorBodyLimit = 1 << 10
)

// Client implements ports.Interpreter via the OpenRouter API, or any other
// OpenAI-compatible chat completions endpoint. Models are tried in order:
// the primary model first, then each fallback.
type Client struct {
	httpClient *http.Client
	apiKey     string
	endpoint   string
	models     []string
	logger     *slog.Logger
}

func NewClient(httpClient *http.Client, apiKey, baseURL, model string, fallbackModels []string, logger *slog.Logger) *Client {
	models := make([]string, 0, 1+len(fallbackModels))
	models = append(models, model)
	models = append(models, fallbackModels...)
	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		endpoint:   strings.TrimRight(baseURL, "/") + "/chat/completions",
		models:     models,
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) Interpret(ctx context.Context, in ports.InterpretInput) (ports.InterpretOutput, error) {
	var lastErr error
	for i, model := range c.models {
		interp, err := prompt.Interpret(ctx, c.logger, model, in, c.caller(model))
		if err == nil {
			return ports.InterpretOutput{Interpretation: interp, Model: model}, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(c.models) {
			c.logger.WarnContext(ctx, "model failed, trying next",
				"model", model, "next", c.models[i+1], "error", err)
		}
	}
	return ports.InterpretOutput{}, lastErr
}

// caller binds chat to one model.
func (c *Client) caller(model string) prompt.Caller {
	return func(ctx context.Context, system, user string) (string, error) {
		return c.chat(ctx, model, system, user)
	}
}

// chat sends one system/user exchange and returns the first choice's content.
func (c *Client) chat(ctx context.Context, model, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Title", appTitle)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return "", fmt.Errorf("model %s: upstream status %d: %s", model, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("model %s: no choices in response", model)
	}
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}
