// Package llm provides internal representations of LLM inference API requests
// and responses for the backends the chat client talks to.
package llm

import "fmt"

// ErrorResponse represents an error body from an LLM API.
// Mistral uses a top-level message, Gemini nests it under error.
type ErrorResponse struct {
	Message string `json:"message,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Text returns the most specific error message in the body.
func (e *ErrorResponse) Text() string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Message
}

// APIError is returned when a backend answers with a non-success status.
type APIError struct {
	Backend    string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s returned %d", e.Backend, e.StatusCode)
	}

	return fmt.Sprintf("%s returned %d: %s", e.Backend, e.StatusCode, e.Message)
}
