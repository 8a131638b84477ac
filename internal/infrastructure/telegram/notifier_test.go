package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"PaperTriage/internal/config"
)

func TestPublishDigestPostsForm(t *testing.T) {
	var gotPath, gotChat, gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotPath = r.URL.Path
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "token", ChatID: "42"}).WithAPIBase(server.URL)
	if err := n.PublishDigest(context.Background(), "ingest arxiv: 3 inserted"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if gotPath != "/bottoken/sendMessage" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotChat != "42" || gotText != "ingest arxiv: 3 inserted" {
		t.Fatalf("unexpected form chat=%q text=%q", gotChat, gotText)
	}
}

func TestPublishDigestReportsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "token", ChatID: "42"}).WithAPIBase(server.URL)
	if err := n.PublishDigest(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error on 403")
	}
}

func TestPublishDigestRequiresConfig(t *testing.T) {
	n := NewNotifier(config.TelegramConfig{})
	if n.Configured() {
		t.Fatalf("empty config must not be configured")
	}
	if err := n.PublishDigest(context.Background(), "hello"); err == nil {
		t.Fatalf("expected misconfiguration error")
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("é", maxMessageRunes+10)
	got := truncate(long, maxMessageRunes)
	if n := len([]rune(got)); n != maxMessageRunes {
		t.Fatalf("expected %d runes, got %d", maxMessageRunes, n)
	}
	if truncate("short", maxMessageRunes) != "short" {
		t.Fatalf("short text must be untouched")
	}
}
