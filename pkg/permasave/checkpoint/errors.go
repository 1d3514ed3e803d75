package checkpoint

import (
	"errors"
	"fmt"
)

// Code is a stable error classification. Callers should branch on codes
// rather than message text; messages may change, codes do not.
type Code string

const (
	// CodeValidation marks malformed input, rejected before any I/O.
	CodeValidation Code = "validation"

	// CodeUpload marks a save the store rejected or failed to accept.
	CodeUpload Code = "upload"

	// CodeQuery marks a failed tag query during load or list.
	CodeQuery Code = "query"

	// CodeFetch marks a failed content retrieval for a selected object.
	CodeFetch Code = "fetch"
)

// ValidationError indicates malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Error wraps a store failure with a stable code and the operation that hit it.
type Error struct {
	Code Code
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %s", e.Op, e.Code, e.Err)
}

// Unwrap returns the underlying store error.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrCode returns the classification code carried by err, or "" when err
// carries none. ValidationErrors report CodeValidation.
func ErrCode(err error) Code {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return CodeValidation
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
