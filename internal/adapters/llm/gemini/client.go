package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	genai "google.golang.org/genai"

	"github.com/Yanchun-Li/ai-divination/internal/adapters/llm/prompt"
	"github.com/Yanchun-Li/ai-divination/internal/ports"
)

// generator is the part of *genai.Models the client uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements ports.Interpreter with the Gemini API.
type Client struct {
	models generator
	model  string
	logger *slog.Logger
}

func NewClient(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Client, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{models: cli.Models, model: model, logger: logger}, nil
}

func (c *Client) Interpret(ctx context.Context, in ports.InterpretInput) (ports.InterpretOutput, error) {
	interp, err := prompt.Interpret(ctx, c.logger, c.model, in, c.generate)
	if err != nil {
		return ports.InterpretOutput{}, err
	}
	return ports.InterpretOutput{Interpretation: interp, Model: c.model}, nil
}

func (c *Client) generate(ctx context.Context, system, user string) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(user, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0.5),
		},
	)
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates in response")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("empty candidate")
	}
	return strings.TrimSpace(b.String()), nil
}
