package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"dora/internal/config"
	"dora/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestOpenAIClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewOpenAIClient(&config.LLMConfig{
		Provider:    "openai",
		APIKey:      "test-key",
		APIBase:     srv.URL + "/v1/",
		Model:       "gpt-test",
		Temperature: 0.3,
		MaxTokens:   256,
		ExtraBody:   `{"top_k": 5}`,
		Timeout:     5,
		Enabled:     true,
	}, zap.NewNop())
	t.Cleanup(client.httpClient.CloseIdleConnections)
	return client
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got ChatCompletionRequest
	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"model":"gpt-test","choices":[{"message":{"role":"assistant","content":"The library is open."}}]}`)
	})

	text, err := client.Complete(context.Background(), "where is the library")
	require.NoError(t, err)
	assert.Equal(t, "The library is open.", text)

	assert.Equal(t, "gpt-test", got.Model)
	assert.Equal(t, 0.3, got.Temperature)
	assert.Equal(t, 256, got.MaxTokens)
	assert.Equal(t, float64(5), got.ExtraBody["top_k"])
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, ChatMessage{Role: "user", Content: "where is the library"}, got.Messages[1])
}

func TestOpenAIClient_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind model.UpstreamKind
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, model.UpstreamRateLimit},
		{"bad key", http.StatusUnauthorized, `{"error":"bad key"}`, model.UpstreamAuth},
		{"forbidden", http.StatusForbidden, `{}`, model.UpstreamAuth},
		{"server error", http.StatusBadGateway, `oops`, model.UpstreamServer},
		{"not json", http.StatusOK, `<html>`, model.UpstreamMalformed},
		{"no choices", http.StatusOK, `{"choices":[]}`, model.UpstreamMalformed},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`, model.UpstreamMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestOpenAIClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := client.Complete(context.Background(), "hi")
			var up *model.UpstreamError
			require.True(t, errors.As(err, &up), "got %v", err)
			assert.Equal(t, tt.wantKind, up.Kind)
			assert.ErrorIs(t, err, model.ErrUpstream)
		})
	}
}

func TestOpenAIClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client := NewOpenAIClient(&config.LLMConfig{APIKey: "k", APIBase: base, Timeout: 1, Enabled: true}, zap.NewNop())
	_, err := client.Complete(context.Background(), "hi")
	var up *model.UpstreamError
	require.True(t, errors.As(err, &up))
	assert.Equal(t, model.UpstreamNetwork, up.Kind)
}

func TestOpenAIClient_Disabled(t *testing.T) {
	client := NewOpenAIClient(&config.LLMConfig{APIBase: "http://127.0.0.1:1"}, zap.NewNop())
	_, err := client.Complete(context.Background(), "hi")
	var up *model.UpstreamError
	require.True(t, errors.As(err, &up))
	assert.Equal(t, model.UpstreamDisabled, up.Kind)
}

func TestOpenAIClient_CompleteStream(t *testing.T) {
	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":\"Tree \"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Plantation\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n\n")
	})

	var chunks []string
	text, err := client.CompleteStream(context.Background(), "events?", func(c *StreamChunk) error {
		chunks = append(chunks, c.Content)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Tree Plantation", text)
	assert.Equal(t, []string{"Tree ", "Plantation"}, chunks)
}

func TestOpenAIClient_CompleteStreamErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		client := newTestOpenAIClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		_, err := client.CompleteStream(context.Background(), "hi", func(*StreamChunk) error { return nil })
		var up *model.UpstreamError
		require.True(t, errors.As(err, &up))
		assert.Equal(t, model.UpstreamRateLimit, up.Kind)
	})

	t.Run("empty stream", func(t *testing.T) {
		client := newTestOpenAIClient(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "data: [DONE]\n\n")
		})
		_, err := client.CompleteStream(context.Background(), "hi", func(*StreamChunk) error { return nil })
		var up *model.UpstreamError
		require.True(t, errors.As(err, &up))
		assert.Equal(t, model.UpstreamMalformed, up.Kind)
	})

	t.Run("callback aborts", func(t *testing.T) {
		client := newTestOpenAIClient(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		})
		stop := errors.New("client went away")
		_, err := client.CompleteStream(context.Background(), "hi", func(*StreamChunk) error { return stop })
		assert.ErrorIs(t, err, stop)
	})
}

func TestStreamChunkParsers(t *testing.T) {
	data := []byte(`{"choices":[{"delta":{"content":"hi","reasoning_content":"thinking"},"finish_reason":"stop"}]}`)

	chunk, err := (&NVIDIAStreamChunkParser{}).ParseChunk(data)
	require.NoError(t, err)
	assert.Equal(t, &StreamChunk{Content: "hi", ThinkingContent: "thinking", Done: true}, chunk)

	chunk, err = (&OpenAIStreamChunkParser{}).ParseChunk(data)
	require.NoError(t, err)
	assert.Equal(t, &StreamChunk{Content: "hi", Done: true}, chunk)

	_, err = (&OpenAIStreamChunkParser{}).ParseChunk([]byte("{"))
	assert.Error(t, err)

	assert.True(t, IsNVIDIAProvider("https://integrate.api.nvidia.com/v1"))
	assert.True(t, IsOpenAIProvider("https://api.openai.com/v1"))
	assert.False(t, IsOpenAIProvider("http://localhost:11434/v1"))
}
