// Package tts adapts hosted speech synthesizers to the domain's
// TextToSpeech port and renders multi-sentence replies.
package tts

import (
	"fmt"
	"io"
	"net/http"
)

// APIError is returned when a synthesizer answers with a non-200 status.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s tts error %d: %s", e.Provider, e.StatusCode, e.Body)
}

func apiError(provider string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &APIError{Provider: provider, StatusCode: resp.StatusCode, Body: string(body)}
}
