package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one non-streaming completion call.
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type Provider interface {
	Chat(ctx context.Context, req Request) (string, error)
}

// ErrMalformedResponse means the upstream answered 2xx but the body did not
// carry a usable text reply.
var ErrMalformedResponse = errors.New("ai: malformed upstream response")

// StatusError is a non-2xx answer from an upstream provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func malformed(provider, detail string) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedResponse, provider, detail)
}
