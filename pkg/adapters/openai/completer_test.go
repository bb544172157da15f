package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/wren/pkg/adapters/openai"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens int  `json:"max_tokens"`
	Stream    bool `json:"stream"`
}

const okResponse = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4o-mini",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "  The Johnson pays in nuyen.  "},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 6, "total_tokens": 16}
}`

func TestGenerate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okResponse))
	}))
	defer srv.Close()

	c, err := openai.New(openai.Config{APIKey: "sk-test", BaseURL: srv.URL, MaxRetries: 0})
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "Who pays?", []domain.Message{
		{Role: domain.MessageUser, Content: "Hi"},
		{Role: domain.MessageAssistant, Content: "Hoi, chummer."},
	})
	require.NoError(t, err)
	assert.Equal(t, "The Johnson pays in nuyen.", out)

	assert.Equal(t, openai.DefaultModel, got.Model)
	assert.Equal(t, openai.DefaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "Who pays?", got.Messages[3].Content)
}

func TestGenerate_ErrorsWrapGeneration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	c, err := openai.New(openai.Config{APIKey: "sk-bad", BaseURL: srv.URL, MaxRetries: 0})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "hello", nil)
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	c, err := openai.New(openai.Config{APIKey: "sk", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "hello", nil)
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func streamChunk(content, finish string) string {
	delta := map[string]any{}
	if content != "" {
		delta["content"] = content
	}
	choice := map[string]any{"index": 0, "delta": delta, "finish_reason": nil}
	if finish != "" {
		choice["finish_reason"] = finish
	}
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-s1",
		"object":  "chat.completion.chunk",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []any{choice},
	})
	return "data: " + string(b) + "\n\n"
}

func TestGenerateStream(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"The ", "Johnson ", "pays."} {
			_, _ = w.Write([]byte(streamChunk(part, "")))
		}
		_, _ = w.Write([]byte(streamChunk("", "stop")))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c, err := openai.New(openai.Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	var deltas []string
	out, err := c.GenerateStream(context.Background(), "Who pays?", nil, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "The Johnson pays.", out)
	assert.Equal(t, []string{"The ", "Johnson ", "pays."}, deltas)
	assert.True(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Who pays?", got.Messages[1].Content)
}

func TestGenerateStream_DeltaErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(streamChunk("The ", "")))
		_, _ = w.Write([]byte(streamChunk("end.", "stop")))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c, err := openai.New(openai.Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	gone := errors.New("client gone")
	_, err = c.GenerateStream(context.Background(), "hello", nil, func(string) error { return gone })
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.ErrorIs(t, err, gone)
}

func TestGenerateStream_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	c, err := openai.New(openai.Config{APIKey: "sk-bad", BaseURL: srv.URL, MaxRetries: 0})
	require.NoError(t, err)
	_, err = c.GenerateStream(context.Background(), "hello", nil, nil)
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := openai.New(openai.Config{})
	assert.Error(t, err)
}
