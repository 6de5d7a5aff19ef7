package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// including local servers exposing the same wire format.
type OpenAIClient struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
}

func NewOpenAIClient(endpoint, apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		http:     &http.Client{},
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
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Evaluate(ctx context.Context, req Request) Result {
	prompt, err := buildPrompt(req)
	if err != nil {
		return Failed(err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return Failed(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Failed(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// Transport failures and deadline expiry both mean the collaborator
		// is unreachable, not that it said no.
		return Unavailable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return Unavailable(fmt.Errorf("reasoning service returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return Failed(fmt.Errorf("reasoning service returned %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Failed(fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return Failed(errors.New("empty choices in response"))
	}

	verdict, err := decodeVerdict(parsed.Choices[0].Message.Content)
	if err != nil {
		return Failed(err)
	}
	return OK(verdict)
}
