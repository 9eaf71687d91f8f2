package ai

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
)

func TestAnthropicChat_SendsContractAndJoinsText(t *testing.T) {
	var got anthropicReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Try "},{"type":"tool_use"},{"type":"text","text":"this!"}]}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider(srv.URL, "sk-test", "claude-test")
	reply, err := p.Chat(context.Background(), Request{
		System:      "be helpful",
		MaxTokens:   512,
		Temperature: 0.7,
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "recommend"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Try this!", reply)

	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, 512, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	assert.Equal(t, "be helpful", got.System)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "recommend", got.Messages[2].Content)
}

func TestAnthropicChat_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	_, err := NewAnthropicProvider(srv.URL, "k", "m").Chat(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "anthropic", se.Provider)
}

func TestAnthropicChat_ServerErrorIsNotRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewAnthropicProvider(srv.URL, "k", "m").Chat(context.Background(), Request{})
	require.Error(t, err)
	assert.False(t, IsRateLimited(err))
	assert.Contains(t, err.Error(), "status 502")
}

func TestAnthropicChat_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":      `<html>`,
		"empty content": `{"content":[]}`,
		"no text":       `{"content":[{"type":"tool_use"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewAnthropicProvider(srv.URL, "k", "m").Chat(context.Background(), Request{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestAnthropicChat_HonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewAnthropicProvider(srv.URL, "k", "m").Chat(ctx, Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnthropicChat_RequiresKey(t *testing.T) {
	_, err := NewAnthropicProvider("", "", "m").Chat(context.Background(), Request{})
	require.Error(t, err)
}
