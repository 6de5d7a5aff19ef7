package reasoner

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClient runs reasoning requests against the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (g *GeminiClient) Evaluate(ctx context.Context, req Request) Result {
	prompt, err := buildPrompt(req)
	if err != nil {
		return Failed(err)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(systemPrompt+"\n\n"+prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return Unavailable(fmt.Errorf("gemini generate: %w", err))
	}

	verdict, err := decodeVerdict(resp.Text())
	if err != nil {
		return Failed(err)
	}
	return OK(verdict)
}
