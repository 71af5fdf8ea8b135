package core

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// API errors, mapped 1:1 from HTTP status codes
	ErrSessionExpired    = errors.New("session expired")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrServerUnavailable = errors.New("server unavailable")

	// A response body that is not valid JSON is a transport-layer problem,
	// distinct from the application errors above
	ErrMalformedResponse = errors.New("malformed response")

	// Store-level errors raised before any network call
	ErrEmptySelection         = errors.New("no cart lines selected")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrMissingShippingAddress = errors.New("shipping address is required")
	ErrInvalidOrderItem       = errors.New("order item needs a positive product id and quantity")
)

// ValidationError carries the structured messages from a 400/422 response.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// NewValidationError builds a ValidationError from whatever the server sent:
// the structured errors list if present, else the message, else a generic text.
func NewValidationError(messages []string, fallback string) *ValidationError {
	if len(messages) == 0 && fallback != "" {
		messages = []string{fallback}
	}
	return &ValidationError{Messages: messages}
}

// UnknownAPIError covers status codes outside the mapped taxonomy.
type UnknownAPIError struct {
	Status int
}

func (e *UnknownAPIError) Error() string {
	return fmt.Sprintf("unexpected API response (status %d)", e.Status)
}

// StoreError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type StoreError struct {
	Op   string // Operation that failed (e.g., "cart.AddLine")
	Kind string // Error kind (e.g., "cart", "order", "api")
	Err  error  // Underlying error for wrapping
}

func (e *StoreError) Error() string {
	if e.Op != "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError
func NewStoreError(op, kind string, err error) *StoreError {
	return &StoreError{Op: op, Kind: kind, Err: err}
}

// IsAuthError reports whether an error should bounce the user to login
func IsAuthError(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// IsNotFound checks if an error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error carries user-fixable validation messages
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDraftError checks if an error was raised by fail-fast checkout validation,
// before any network call was made
func IsDraftError(err error) bool {
	return errors.Is(err, ErrEmptySelection) ||
		errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrMissingShippingAddress) ||
		errors.Is(err, ErrInvalidOrderItem)
}
