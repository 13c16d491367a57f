// Package httperrors defines the public error payload returned by the API.
package httperrors

import (
	"fmt"
	"net/http"
)

// Public error types exposed to clients; raw provider errors never leave
// the service.
const (
	TypeGeneric        = "generic"
	TypeValidation     = "validation"
	TypeTransaction    = "transaction"
	TypeRecordNotFound = "record_not_found"
)

// HTTPError is the JSON error body.
type HTTPError struct {
	Code      int    `json:"status"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	ErrorKind string `json:"errorKind,omitempty"`
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTPError %d (%s): %s", e.Code, e.Type, e.Title)
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(code int, errorType, title string) *HTTPError {
	return &HTTPError{Code: code, Type: errorType, Title: title}
}

// NewTransactionError wraps a classified engine error kind for the client.
// Only the stable kind is exposed, never the raw provider message.
func NewTransactionError(kind, title string) *HTTPError {
	return &HTTPError{
		Code:      http.StatusUnprocessableEntity,
		Type:      TypeTransaction,
		Title:     title,
		ErrorKind: kind,
	}
}
