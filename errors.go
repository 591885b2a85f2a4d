package tabula

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested view, column or row does not exist.
	ErrNotFound = errors.New("tabula: not found")

	// ErrUnsupported is returned when a construct has no rendition on the target dialect.
	ErrUnsupported = errors.New("tabula: unsupported on this dialect")

	// ErrExternalSource is returned when a cross-source fetch fails or times out.
	ErrExternalSource = errors.New("tabula: external source unavailable")
)

// NotFoundError represents an error when a metadata object or a row is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the ID that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("tabula: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("tabula: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the object label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given label.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the ID that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ValidationError reports input that can never compile: an illegal
// operator for a column type, a malformed formula or bad request parameters.
type ValidationError struct {
	Column string // Column id or title, if any
	Op     string // Operator or parameter name, if any
	Err    error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	switch {
	case e.Column != "" && e.Op != "":
		return fmt.Sprintf("tabula: invalid operator %q for column %q: %s", e.Op, e.Column, e.Err)
	case e.Column != "":
		return fmt.Sprintf("tabula: invalid column %q: %s", e.Column, e.Err)
	case e.Op != "":
		return fmt.Sprintf("tabula: invalid %s: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("tabula: validation failed: %s", e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given column.
func NewValidationError(column string, err error) *ValidationError {
	return &ValidationError{Column: column, Err: err}
}

// NewOperatorError returns a ValidationError for an operator that is not
// legal for the column.
func NewOperatorError(column, op string, err error) *ValidationError {
	return &ValidationError{Column: column, Op: op, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// UnsupportedError reports a function, aggregate or cast that the
// target dialect cannot express.
type UnsupportedError struct {
	Feature string
	Dialect string
}

// Error returns the error string.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("tabula: %s is unsupported on this dialect (%s)", e.Feature, e.Dialect)
}

// Is reports whether the target error matches ErrUnsupported.
func (e *UnsupportedError) Is(err error) bool {
	return err == ErrUnsupported
}

// NewUnsupportedError returns a new UnsupportedError.
func NewUnsupportedError(feature, dialect string) *UnsupportedError {
	return &UnsupportedError{Feature: feature, Dialect: dialect}
}

// IsUnsupported returns true if the error is an UnsupportedError.
func IsUnsupported(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedError
	return errors.As(err, &e) || errors.Is(err, ErrUnsupported)
}

// FormulaError is a soft, per-column error. The column compiles to NULL
// and the rest of the query proceeds.
type FormulaError struct {
	ColumnID string // Formula column that failed
	Msg      string
}

// Error returns the error string.
func (e *FormulaError) Error() string {
	if e.ColumnID == "" {
		return fmt.Sprintf("tabula: formula: %s", e.Msg)
	}
	return fmt.Sprintf("tabula: formula %s: %s", e.ColumnID, e.Msg)
}

// NewFormulaError returns a new FormulaError.
func NewFormulaError(column, msg string) *FormulaError {
	return &FormulaError{ColumnID: column, Msg: msg}
}

// NewDeletedColumnError returns the FormulaError recorded when a formula
// references a column that no longer exists.
func NewDeletedColumnError(column, title string) *FormulaError {
	return &FormulaError{ColumnID: column, Msg: fmt.Sprintf("Column '%s' was deleted", title)}
}

// IsFormulaError returns true if the error is a FormulaError.
func IsFormulaError(err error) bool {
	if err == nil {
		return false
	}
	var e *FormulaError
	return errors.As(err, &e)
}

// ExternalSourceError reports a failed or timed-out fetch from a source
// other than the one the statement runs on. It is retryable.
type ExternalSourceError struct {
	SourceID string
	ColumnID string // Relation column being resolved
	Timeout  bool
	Err      error
}

// Error returns the error string.
func (e *ExternalSourceError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("tabula: external source %s timed out resolving %s: %v", e.SourceID, e.ColumnID, e.Err)
	}
	return fmt.Sprintf("tabula: external source %s failed resolving %s: %v", e.SourceID, e.ColumnID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExternalSourceError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrExternalSource.
func (e *ExternalSourceError) Is(err error) bool {
	return err == ErrExternalSource
}

// Retryable reports whether the caller may retry the operation.
func (e *ExternalSourceError) Retryable() bool {
	return true
}

// NewExternalSourceError returns a new ExternalSourceError.
func NewExternalSourceError(source, column string, timeout bool, err error) *ExternalSourceError {
	return &ExternalSourceError{SourceID: source, ColumnID: column, Timeout: timeout, Err: err}
}

// IsExternalSourceError returns true if the error is an ExternalSourceError.
func IsExternalSourceError(err error) bool {
	if err == nil {
		return false
	}
	var e *ExternalSourceError
	return errors.As(err, &e)
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "tabula: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("tabula: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// QueryError wraps a driver error with the model and operation that
// produced it. The driver error is preserved for inspection.
type QueryError struct {
	Model string // Model title being queried
	Op    string // Operation (e.g., "list", "count", "aggregate")
	Err   error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("tabula: querying %s (%s): %v", e.Model, e.Op, e.Err)
	}
	return fmt.Sprintf("tabula: querying %s: %v", e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(model, op string, err error) *QueryError {
	return &QueryError{Model: model, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}
