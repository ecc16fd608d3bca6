// Package errors provides the unified error types shared by the bootstrap
// container and the tenant protocol. Every failure that crosses a package
// boundary in this codebase is one of the kinds defined here so that callers
// can branch on classification instead of string matching.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for programmatic handling.
type Kind string

const (
	// Configuration resolution failures.
	KindMissingRequired Kind = "CONFIG_MISSING_REQUIRED"
	KindTypeMismatch    Kind = "CONFIG_TYPE_MISMATCH"

	// Bootstrap failures.
	KindCyclicDependency  Kind = "BOOTSTRAP_CYCLIC_DEPENDENCY"
	KindConstructorFailed Kind = "BOOTSTRAP_CONSTRUCTOR_FAILED"
	KindDependencyFailed  Kind = "BOOTSTRAP_DEPENDENCY_FAILED"
	KindTimeout           Kind = "BOOTSTRAP_TIMEOUT"

	// Registry resolution failures.
	KindUtilityUnavailable Kind = "UTILITY_UNAVAILABLE"

	// Tenant protocol failures.
	KindTenantNotFound  Kind = "TENANT_NOT_FOUND"
	KindDuplicateTenant Kind = "TENANT_DUPLICATE"
	KindAccessDenied    Kind = "TENANT_ACCESS_DENIED"
	KindInvalidInput    Kind = "TENANT_INVALID_INPUT"

	// Audit failures are observability-only and are always swallowed at the
	// enforcer boundary; the kind exists so the swallow site can log it.
	KindAuditWriteFailed Kind = "AUDIT_WRITE_FAILED"

	KindInternal Kind = "INTERNAL"
)

// Error is the single error type used across the container and the tenant
// protocol. It carries the kind, a human-readable message, and optionally the
// resource the operation was acting on.
type Error struct {
	Kind     Kind
	Message  string
	Resource string
	Cause    error
}

func (e *Error) Error() string {
	switch {
	case e.Resource != "" && e.Cause != nil:
		return fmt.Sprintf("[%s] %s (%s): %v", e.Kind, e.Message, e.Resource, e.Cause)
	case e.Resource != "":
		return fmt.Sprintf("[%s] %s (%s)", e.Kind, e.Message, e.Resource)
	case e.Cause != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	default:
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause. A nil cause yields
// a nil error so call sites can wrap unconditionally.
func Wrap(cause error, kind Kind, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithResource records the resource (utility name, tenant id, config key) the
// failed operation was acting on.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		return Is(e.Cause, kind)
	}
	return false
}

// Classification helpers used throughout the codebase.

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

func IsMissingRequired(err error) bool    { return Is(err, KindMissingRequired) }
func IsTypeMismatch(err error) bool       { return Is(err, KindTypeMismatch) }
func IsCyclicDependency(err error) bool   { return Is(err, KindCyclicDependency) }
func IsUtilityUnavailable(err error) bool { return Is(err, KindUtilityUnavailable) }
func IsTenantNotFound(err error) bool     { return Is(err, KindTenantNotFound) }
func IsDuplicateTenant(err error) bool    { return Is(err, KindDuplicateTenant) }
func IsAccessDenied(err error) bool       { return Is(err, KindAccessDenied) }
func IsInvalidInput(err error) bool       { return Is(err, KindInvalidInput) }
