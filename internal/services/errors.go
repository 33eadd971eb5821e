package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthorized is the only auth failure callers ever see, whatever check failed.
var ErrUnauthorized = errors.New("unauthorized")

// ErrFileTooLarge is wrapped by the ValidationError for oversized uploads.
var ErrFileTooLarge = errors.New("file too large")

// ValidationError reports bad caller input. It is never retried and never
// logged as a system failure.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ResidualFile is a media file that could not be removed during a cascade.
type ResidualFile struct {
	MediaID  string
	Filename string
	Err      error
}

// CascadeError means some of a project's media files survived a cascade
// delete. Their records are kept so the delete can be retried, and the
// orphan sweep can repair anything left behind.
type CascadeError struct {
	ProjectID string
	Residual  []ResidualFile
}

func (e *CascadeError) Error() string {
	names := make([]string, 0, len(e.Residual))
	for _, r := range e.Residual {
		names = append(names, r.Filename)
	}
	return fmt.Sprintf("project %s: %d media file(s) could not be deleted: %s",
		e.ProjectID, len(e.Residual), strings.Join(names, ", "))
}

func (e *CascadeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Residual))
	for _, r := range e.Residual {
		errs = append(errs, r.Err)
	}
	return errs
}
