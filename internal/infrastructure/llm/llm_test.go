package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperTriage/internal/config"
)

func TestChatClientComplete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.Len(t, req.Messages, 2) {
			return
		}
		assert.Equal(t, "gpt-test", req.Model)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "score this", req.Messages[1].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  {\"novelty\":4}  "}}]}`))
	}))
	defer server.Close()

	client := NewChatClient("openai", config.ProviderConfig{Endpoint: server.URL, Model: "gpt-test", APIKey: "secret"}, time.Second)
	require.True(t, client.Available())

	out, err := client.Complete(context.Background(), "score this")
	require.NoError(t, err)
	assert.Equal(t, `{"novelty":4}`, out)
}

func TestChatClientErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/limited":
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		case "/empty":
			_, _ = w.Write([]byte(`{"choices":[]}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer server.Close()

	for _, path := range []string{"/limited", "/empty", "/garbage"} {
		client := NewChatClient("deepseek", config.ProviderConfig{Endpoint: server.URL + path, Model: "m", APIKey: "k"}, time.Second)
		_, err := client.Complete(context.Background(), "p")

		var perr *ProviderError
		require.True(t, errors.As(err, &perr), path)
		assert.Equal(t, "deepseek", perr.Provider)
		if path == "/limited" {
			assert.Equal(t, http.StatusTooManyRequests, perr.Status)
		}
	}
}

func TestChatClientWithoutKeyIsUnavailable(t *testing.T) {
	t.Parallel()

	client := NewChatClient("openai", config.ProviderConfig{Endpoint: "http://unused", Model: "m"}, 0)
	assert.False(t, client.Available())

	_, err := client.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistryFromConfig(config.LLMConfig{
		DefaultProvider: "OpenAI",
		Providers: map[string]config.ProviderConfig{
			"openai":   {Endpoint: "http://x", Model: "m", APIKey: "k"},
			"deepseek": {Endpoint: "http://y", Model: "m"},
		},
	})

	assert.Equal(t, "openai", reg.Resolve("").Name())
	assert.True(t, reg.Resolve("").Available())
	assert.Equal(t, "deepseek", reg.Resolve(" DeepSeek ").Name())
	assert.False(t, reg.Resolve("deepseek").Available())

	missing := reg.Resolve("anthropic")
	assert.Equal(t, "anthropic", missing.Name())
	assert.False(t, missing.Available())
	_, err := missing.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	assert.Equal(t, NoProvider, reg.Resolve("none").Name())
	assert.Equal(t, map[string]bool{"openai": true, "deepseek": false}, reg.Availability())
}

func TestRegistryWithoutDefault(t *testing.T) {
	t.Parallel()

	reg := NewRegistry("")
	model := reg.Resolve("")
	assert.False(t, model.Available())
	assert.Equal(t, NoProvider, model.Name())
}
