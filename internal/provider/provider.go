// Package provider talks to the Resend transactional email API.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// DefaultBaseURL is the public Resend API endpoint
const DefaultBaseURL = "https://api.resend.com"

// Email is the payload accepted by the provider's /emails endpoint
type Email struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Result is the provider's acknowledgement of an accepted email
type Result struct {
	ID string `json:"id"`
}

// Sender sends an email with the caller's API key
type Sender interface {
	Send(ctx context.Context, apiKey string, email Email) (*Result, error)
}

// Error categories
const (
	CategoryInvalidKey  = "invalid_key"
	CategoryForbidden   = "forbidden"
	CategoryValidation  = "validation"
	CategoryRateLimited = "rate_limited"
	CategoryProvider    = "provider"
	CategoryNetwork     = "network"
)

// NetworkErrorMessage is reported when the provider cannot be reached
const NetworkErrorMessage = "Network error: Unable to connect to Resend API"

// Error is a failed provider call. StatusCode is zero for transport failures.
type Error struct {
	StatusCode int
	Category   string
	Message    string // caller-facing
	Detail     string // provider's own message, if any
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError returns the *Error in err's chain, if any
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// NewStatusError builds the error for a non-2xx provider response
func NewStatusError(status int, detail string) *Error {
	return &Error{
		StatusCode: status,
		Category:   CategoryForStatus(status),
		Message:    MessageForStatus(status, detail),
		Detail:     detail,
	}
}

// NewNetworkError wraps a transport failure
func NewNetworkError(err error) *Error {
	return &Error{
		Category: CategoryNetwork,
		Message:  NetworkErrorMessage,
		Err:      err,
	}
}

// CategoryForStatus maps a provider status code to an error category
func CategoryForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return CategoryInvalidKey
	case http.StatusForbidden:
		return CategoryForbidden
	case http.StatusUnprocessableEntity:
		return CategoryValidation
	case http.StatusTooManyRequests:
		return CategoryRateLimited
	default:
		return CategoryProvider
	}
}

// MessageForStatus returns the caller-facing message for a provider status
// code. detail is the provider's message, used where the status alone is not
// specific enough.
func MessageForStatus(status int, detail string) string {
	switch status {
	case http.StatusUnauthorized:
		return "Invalid API key"
	case http.StatusForbidden:
		return "API key does not have required permissions"
	case http.StatusUnprocessableEntity:
		if detail == "" {
			detail = "Validation error"
		}
		return "Validation error: " + detail
	case http.StatusTooManyRequests:
		return "Rate limit exceeded. Please try again later."
	default:
		if detail != "" {
			return detail
		}
		return fmt.Sprintf("API error: %d", status)
	}
}
