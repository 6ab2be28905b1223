package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ErrRateLimited  = errors.New("too many requests, try again in a bit")
	ErrUnauthorized = errors.New("not signed in or session expired")
	ErrNotFound     = errors.New("not found")
)

// APIError carries the backend's message; no structured codes are exposed.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api error: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

func newAPIError(status int, body []byte) *APIError {
	msg := ""
	for _, path := range []string{"error", "message", "detail", "data.error"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
			msg = r.String()
			break
		}
	}
	if msg == "" && !gjson.ValidBytes(body) {
		msg = strings.TrimSpace(string(body))
	}
	return &APIError{StatusCode: status, Message: msg}
}
