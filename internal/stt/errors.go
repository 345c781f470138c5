// Package stt adapts hosted and local speech recognizers to the
// domain's speech-to-text ports.
package stt

import (
	"fmt"
	"io"
	"net/http"
)

// APIError is returned when a recognizer answers with a non-200 status.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// IsAuth reports whether the key was rejected.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func apiError(provider string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &APIError{Provider: provider, StatusCode: resp.StatusCode, Body: string(body)}
}
