package m2m

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common conditions.
var (
	// ErrInvalidConfig is returned when a relation configuration is empty
	// or lacks a mandatory property.
	ErrInvalidConfig = errors.New("m2m: invalid configuration")

	// ErrNotFound is returned by storages when a requested entity does not exist.
	ErrNotFound = errors.New("m2m: entity not found")

	// ErrRelatedNotFound is returned when a key of the desired set does not
	// resolve to a target entity.
	ErrRelatedNotFound = errors.New("m2m: related entity not found")
)

// ConfigError represents an invalid or incomplete relation configuration.
// It is always a programming error and is never recovered from locally.
type ConfigError struct {
	Relation string // Relation name, empty for errors about the whole configuration
	Field    string // Property that is missing or invalid
	Msg      string // Optional message replacing the default "must be set"
}

// Error returns the error string.
func (e *ConfigError) Error() string {
	switch {
	case e.Msg != "" && e.Relation != "":
		return fmt.Sprintf("m2m: relation %q: %s", e.Relation, e.Msg)
	case e.Msg != "":
		return "m2m: " + e.Msg
	case e.Relation == "":
		return fmt.Sprintf("m2m: the %q property must be set", e.Field)
	default:
		return fmt.Sprintf("m2m: the %q property in relation %q must be set", e.Field, e.Relation)
	}
}

// Is reports whether the target error matches ConfigError.
// This allows errors.Is(configErr, ErrInvalidConfig) to return true.
func (e *ConfigError) Is(err error) bool {
	return err == ErrInvalidConfig
}

// NewConfigError returns a new ConfigError for a missing property.
func NewConfigError(relation, field string) *ConfigError {
	return &ConfigError{Relation: relation, Field: field}
}

// IsConfigError returns true if the error is a ConfigError.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigError
	return errors.As(err, &e) || errors.Is(err, ErrInvalidConfig)
}

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the ID that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("m2m: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("m2m: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
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

// RelatedNotFoundError is returned by reconcile when a key of the desired
// set does not resolve to an entity of the relation target.
type RelatedNotFoundError struct {
	Relation string
	Target   string
	Key      any
	Err      error // Error returned by the storage lookup
}

// Error returns the error string.
func (e *RelatedNotFoundError) Error() string {
	return fmt.Sprintf("m2m: relation %q: related %s not found (key=%v)", e.Relation, e.Target, e.Key)
}

// Is reports whether the target error matches RelatedNotFoundError.
func (e *RelatedNotFoundError) Is(err error) bool {
	return err == ErrRelatedNotFound
}

// Unwrap returns the underlying error.
func (e *RelatedNotFoundError) Unwrap() error {
	return e.Err
}

// IsRelatedNotFound returns true if the error is a RelatedNotFoundError.
func IsRelatedNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *RelatedNotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrRelatedNotFound)
}

// NotLoadedError represents an error when attempting to access a relation
// collection that was not loaded.
type NotLoadedError struct {
	edge string
}

// Error returns the error string.
func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("m2m: edge %q was not loaded", e.edge)
}

// NewNotLoadedError returns a new NotLoadedError for the given edge name.
func NewNotLoadedError(edge string) *NotLoadedError {
	return &NotLoadedError{edge: edge}
}

// IsNotLoaded returns true if the error is a NotLoadedError.
func IsNotLoaded(err error) bool {
	if err == nil {
		return false
	}
	var e *NotLoadedError
	return errors.As(err, &e)
}

// ColumnError is returned by materialize when a related entity has no
// value for the configured key column.
type ColumnError struct {
	Relation string
	Column   string
	Index    int // Position of the entity in the loaded collection
}

// Error returns the error string.
func (e *ColumnError) Error() string {
	return fmt.Sprintf("m2m: relation %q: related entity #%d has no column %q", e.Relation, e.Index, e.Column)
}

// ConstraintError represents a database constraint violation error,
// for example a duplicate junction row.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("m2m: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// SyncError wraps a storage error with the relation and the step that failed.
type SyncError struct {
	Relation string // Relation being synchronized
	Op       string // Step (e.g., "unlink", "find", "link")
	Err      error  // Underlying error
}

// Error returns the error string.
func (e *SyncError) Error() string {
	return fmt.Sprintf("m2m: %s %s: %v", e.Op, e.Relation, e.Err)
}

// Unwrap returns the underlying error.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("m2m: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "m2m: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("m2m: multiple errors:")
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
