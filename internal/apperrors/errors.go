// Package apperrors defines the typed error taxonomy shared by all services.
//
// Handlers translate these into HTTP responses; raw database error text is
// never surfaced to callers.
package apperrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError carries field-keyed messages for caller-correctable input
// problems.
type ValidationError struct {
	Fields map[string]string
}

func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

// MaxDepthExceededError signals that a folder creation would exceed the tree
// height ceiling.
type MaxDepthExceededError struct {
	Max int
}

func (e *MaxDepthExceededError) Error() string {
	return fmt.Sprintf("maximum folder tree depth (%d) exceeded", e.Max)
}

// QuotaExceededError carries the attempted usage versus the allowance so
// callers can build a user-facing message.
type QuotaExceededError struct {
	Attempted int64
	Allowed   int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("tree size quota would be exceeded: %dB > %dB", e.Attempted, e.Allowed)
}

// PermissionDeniedError signals insufficient access to an entity the caller is
// allowed to know exists. When existence itself must be hidden, NotFoundError
// is used instead.
type PermissionDeniedError struct {
	Message string
}

func (e *PermissionDeniedError) Error() string {
	if e.Message == "" {
		return "permission denied"
	}
	return e.Message
}

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return e.Resource + " not found"
}

// ContentAlreadySetError signals an attempt to attach content to a file that
// already has content. File content is immutable once attached.
type ContentAlreadySetError struct{}

func (e *ContentAlreadySetError) Error() string {
	return "file content has already been set"
}

// IntegrityError wraps a storage-level constraint breach that pre-validation
// should have prevented. It indicates an application bug, not bad input.
type IntegrityError struct {
	Err error
}

func (e *IntegrityError) Error() string {
	if e.Err == nil {
		return "integrity violation"
	}
	return "integrity violation: " + e.Err.Error()
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// The Is* predicates unwrap err into the matching typed error so callers can
// both branch on the kind and read its payload in one call.

func IsValidation(err error) (*ValidationError, bool) {
	var target *ValidationError
	ok := errors.As(err, &target)
	return target, ok
}

func IsMaxDepthExceeded(err error) (*MaxDepthExceededError, bool) {
	var target *MaxDepthExceededError
	ok := errors.As(err, &target)
	return target, ok
}

func IsQuotaExceeded(err error) (*QuotaExceededError, bool) {
	var target *QuotaExceededError
	ok := errors.As(err, &target)
	return target, ok
}

func IsPermissionDenied(err error) (*PermissionDeniedError, bool) {
	var target *PermissionDeniedError
	ok := errors.As(err, &target)
	return target, ok
}

func IsNotFound(err error) (*NotFoundError, bool) {
	var target *NotFoundError
	ok := errors.As(err, &target)
	return target, ok
}

func IsContentAlreadySet(err error) (*ContentAlreadySetError, bool) {
	var target *ContentAlreadySetError
	ok := errors.As(err, &target)
	return target, ok
}

func IsIntegrity(err error) (*IntegrityError, bool) {
	var target *IntegrityError
	ok := errors.As(err, &target)
	return target, ok
}
