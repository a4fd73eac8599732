package world

import (
	"errors"
	"fmt"
)

// RuleCode classifies expected request rejections. Codes are stable wire
// strings; clients branch on them.
type RuleCode string

const (
	CodeNotFound             RuleCode = "not_found"
	CodePermissionDenied     RuleCode = "permission_denied"
	CodeValidationFailed     RuleCode = "validation_failed"
	CodeRuleViolation        RuleCode = "rule_violation"
	CodeAlreadyInState       RuleCode = "already_in_state"
	CodeUnremovable          RuleCode = "unremovable"
	CodeDirectoryUnavailable RuleCode = "directory_unavailable"
)

// RuleError is an expected rejection: a machine code plus a
// human-readable reason shown to the player. Handlers turn it into an
// error reply, never a disconnect. Anything that is not a RuleError is
// an infrastructure fault.
type RuleError struct {
	Code   RuleCode
	Reason string
	cause  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Unwrap exposes the underlying cause, if any, for errors.Is checks.
func (e *RuleError) Unwrap() error {
	return e.cause
}

// NewRuleError builds a RuleError with a formatted reason.
func NewRuleError(code RuleCode, format string, args ...any) *RuleError {
	return &RuleError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// WrapRule builds a RuleError that records an underlying cause. The
// client sees only the code and reason; the cause stays for logs.
func WrapRule(code RuleCode, err error, format string, args ...any) *RuleError {
	return &RuleError{Code: code, Reason: fmt.Sprintf(format, args...), cause: err}
}

// IsRule reports whether err is a RuleError with the given code.
func IsRule(err error, code RuleCode) bool {
	var re *RuleError
	return errors.As(err, &re) && re.Code == code
}

// AsRule extracts the RuleError from err, if any.
func AsRule(err error) (*RuleError, bool) {
	var re *RuleError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
