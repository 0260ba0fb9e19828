package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aeterna/momentum-engine/momentum"
)

// ErrAPIKeyMissing means the client was constructed without credentials.
// Callers treat this as "coaching unavailable", not as a server fault.
var ErrAPIKeyMissing = errors.New("coach api key not configured")

// httpDoer lets tests substitute the transport.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// =============================================================================
// CHAT COMPLETION WIRE TYPES (OpenAI-compatible)
// =============================================================================

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Config holds the connection settings for an OpenAI-compatible endpoint.
type Config struct {
	BaseURL string // e.g. https://api.openai.com/v1
	APIKey  string
	Model   string
}

// Client calls an OpenAI-compatible chat completion endpoint to produce
// coaching nudges. MaxTokens is capped low to enforce the 100-word limit.
type Client struct {
	cfg  Config
	http httpDoer
}

const (
	nudgeMaxTokens   = 150
	nudgeTemperature = 0.7
)

func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetHTTPClient replaces the transport. Passing nil restores the default.
func (c *Client) SetHTTPClient(client httpDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
		return
	}
	c.http = client
}

// Nudge produces one coaching message for the given context.
func (c *Client) Nudge(ctx context.Context, cc momentum.CoachContext) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", ErrAPIKeyMissing
	}

	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt()},
			{Role: "user", Content: UserMessage(cc)},
		},
		MaxTokens:   nudgeMaxTokens,
		Temperature: nudgeTemperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode coach request: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create coach request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("coach request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read coach response: %w", err)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", fmt.Errorf("failed to decode coach response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		msg := strings.TrimSpace(completion.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		return "", fmt.Errorf("coach endpoint returned error: %s", msg)
	}

	if len(completion.Choices) == 0 {
		return "", errors.New("coach endpoint returned no choices")
	}

	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
