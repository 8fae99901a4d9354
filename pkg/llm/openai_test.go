package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func chatCompletion(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func newTestClient(serverURL string) *OpenAIClient {
	c := NewOpenAIClient("test-key")
	c.BaseURL = serverURL
	return c
}

func TestOpenAIClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		w.Write([]byte(chatCompletion("world")))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	got, err := client.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "world" {
		t.Errorf("expected %q, got %q", "world", got)
	}
}

func TestOpenAIClient_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(chatCompletion("ok")))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	got, err := client.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected %q, got %q", "ok", got)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestOpenAIClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error for 401")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call (no retry), got %d", calls.Load())
	}
}

func TestOpenAIClient_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := newTestClient(server.URL)
	_, err := client.Complete(ctx, "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	if ctx.Err() == nil {
		t.Error("expected context to be done")
	}
}

func TestOpenAIClient_CompleteJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatCompletion("```json\n{\"name\": \"slices\", \"details\": [\"append\", \"copy\"]}\n```")))
	}))
	defer server.Close()

	var out struct {
		Name    string `json:"name"`
		Details string `json:"details"`
	}
	client := newTestClient(server.URL)
	if err := client.CompleteJSON(context.Background(), "prompt", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "slices" {
		t.Errorf("expected name %q, got %q", "slices", out.Name)
	}
	if out.Details != "append, copy" {
		t.Errorf("expected flattened details, got %q", out.Details)
	}
}

func TestOpenAIClient_CompleteJSON_ProseOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatCompletion("Sure! Here are the concepts you asked about.")))
	}))
	defer server.Close()

	var out struct {
		Name string `json:"name"`
	}
	client := newTestClient(server.URL)
	err := client.CompleteJSON(context.Background(), "prompt", &out)
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
