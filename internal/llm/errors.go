package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// APIError is a backend failure with its HTTP status and error code.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// wrapAPIError converts SDK errors into *APIError, keeping the original
// in the chain. Other errors are returned unchanged.
func wrapAPIError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}

	var oerr *openai.Error
	if errors.As(err, &oerr) {
		return &APIError{Provider: provider, StatusCode: oerr.StatusCode, Code: oerr.Code, Message: oerr.Message, Err: err}
	}
	var aerr *anthropic.Error
	if errors.As(err, &aerr) {
		return &APIError{Provider: provider, StatusCode: aerr.StatusCode, Err: err}
	}
	var gerr genai.APIError
	if errors.As(err, &gerr) {
		return &APIError{Provider: provider, StatusCode: gerr.Code, Code: gerr.Status, Message: gerr.Message, Err: err}
	}
	return err
}

// IsRateLimit reports whether err means the current credential is out of
// capacity: HTTP 429, or an error code mentioning "too_many".
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		code := strings.ToLower(apiErr.Code)
		if strings.Contains(code, "too_many") || code == "resource_exhausted" {
			return true
		}
		if apiErr.StatusCode != 0 {
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too_many") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit")
}

// UserMessage returns text fit to show an end user for err.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Service unavailable."
}
