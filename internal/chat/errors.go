package chat

import "errors"

var (
	ErrUnauthenticated           = errors.New("unauthenticated")
	ErrUpstreamUnavailable       = errors.New("upstream unavailable")
	ErrUpstreamRateLimited       = errors.New("upstream rate limited")
	ErrMalformedUpstreamResponse = errors.New("malformed upstream response")
)

const (
	MsgRateLimited = "Too many requests. Please wait a moment."
	MsgRetry       = "Failed to send message. Click to retry."
)

// UserMessage is the text shown to the end user for a failed turn.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "Please log in to continue."
	case errors.Is(err, ErrUpstreamRateLimited):
		return MsgRateLimited
	default:
		return MsgRetry
	}
}
