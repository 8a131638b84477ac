package llm

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

	"PaperTriage/internal/config"
	"PaperTriage/internal/ports"
)

// ErrProviderUnavailable is returned by models that lack credentials or are
// not configured at all.
var ErrProviderUnavailable = errors.New("language model provider unavailable")

// ProviderError is a transport or protocol failure talking to a vendor.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ChatClient implements ports.LanguageModel backed by OpenAI-compatible APIs.
// OpenAI and DeepSeek differ only by endpoint, model and key.
type ChatClient struct {
	name         string
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.LanguageModel = (*ChatClient)(nil)

// NewChatClient builds a client from configuration.
func NewChatClient(name string, cfg config.ProviderConfig, timeout time.Duration) *ChatClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatClient{
		name:         name,
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name is the provider key, e.g. "openai".
func (c *ChatClient) Name() string {
	return c.name
}

// Available reports whether credentials and endpoint are present.
func (c *ChatClient) Available() bool {
	return c != nil && c.apiKey != "" && c.endpoint != "" && c.model != ""
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

// Complete sends prompt as the user message and returns the first choice.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	if !c.Available() {
		return "", fmt.Errorf("%w: %s", ErrProviderUnavailable, c.Name())
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: safePrompt(c.systemPrompt)},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: c.name, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: c.name, Err: fmt.Errorf("send completion: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &ProviderError{
			Provider: c.name,
			Status:   resp.StatusCode,
			Err:      errors.New(strings.TrimSpace(string(payload))),
		}
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &ProviderError{Provider: c.name, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(decoded.Choices) == 0 {
		return "", &ProviderError{Provider: c.name, Err: errors.New("response has no choices")}
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", &ProviderError{Provider: c.name, Err: errors.New("empty completion")}
	}
	return content, nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a careful reviewer of research paper abstracts. Answer with JSON only."
	}
	return prompt
}
