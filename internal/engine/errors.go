package engine

import (
	"errors"
	"fmt"
)

// ContractError is an error surfaced to the caller of an invocation.
//
// Contract errors fall in three groups:
//   - Validation: bad asset kind, unauthorized caller, swap before opening
//   - Reply: an inner call reported failure
//   - Invariant: a stored continuation does not match any known step
//
// Validation and invariant errors roll back the invocation. A reply error is
// returned after the consumed continuation and the failed chain state have
// been committed.
type ContractError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// FlowToken identifies the affected chain, if any.
	FlowToken string

	// ID is the correlation id involved, if any.
	ID uint64
}

// ErrorCode categorizes contract errors.
type ErrorCode string

const (
	// ErrCodeUnauthorized indicates the sender may not perform the operation.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// ErrCodeInvalidAsset indicates a malformed or unsupported asset.
	ErrCodeInvalidAsset ErrorCode = "INVALID_ASSET"

	// ErrCodeSwapNotOpen indicates a swap before the swap opening date.
	ErrCodeSwapNotOpen ErrorCode = "SWAP_NOT_OPEN"

	// ErrCodeInvalidConfig indicates a configuration that fails validation.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// ErrCodeUnsupported indicates a recognized but unimplemented operation.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED"

	// ErrCodeReplyFailed indicates an inner call reported failure.
	ErrCodeReplyFailed ErrorCode = "REPLY_FAILED"

	// ErrCodeInvariant indicates corrupted or impossible stored state.
	ErrCodeInvariant ErrorCode = "INVARIANT"

	// ErrCodeNotFound indicates missing state, such as a query before
	// instantiation.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e.FlowToken != "" && e.ID != 0 {
		return fmt.Sprintf("%s: %s (flow=%s, id=%d)", e.Code, e.Message, e.FlowToken, e.ID)
	}
	if e.ID != 0 {
		return fmt.Sprintf("%s: %s (id=%d)", e.Code, e.Message, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the code of a wrapped ContractError, or "" if err is not
// one.
func CodeOf(err error) ErrorCode {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsValidationError returns true if the error rejected an inbound request
// before any outbound call was issued.
func IsValidationError(err error) bool {
	switch CodeOf(err) {
	case ErrCodeUnauthorized, ErrCodeInvalidAsset, ErrCodeSwapNotOpen, ErrCodeInvalidConfig, ErrCodeUnsupported:
		return true
	}
	return false
}

// IsReplyError returns true if the error carries an inner call failure.
func IsReplyError(err error) bool {
	return CodeOf(err) == ErrCodeReplyFailed
}

// IsInvariantError returns true if the error reports impossible stored state.
func IsInvariantError(err error) bool {
	return CodeOf(err) == ErrCodeInvariant
}

func newError(code ErrorCode, format string, args ...any) *ContractError {
	return &ContractError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewReplyError creates a ContractError for a failed inner call.
func NewReplyError(flowToken string, id uint64, inner string) *ContractError {
	return &ContractError{
		Code:      ErrCodeReplyFailed,
		Message:   fmt.Sprintf("received error: %s", inner),
		FlowToken: flowToken,
		ID:        id,
	}
}

// NewInvariantError creates a ContractError for a continuation that matches
// no known step.
func NewInvariantError(flowToken string, id uint64, format string, args ...any) *ContractError {
	return &ContractError{
		Code:      ErrCodeInvariant,
		Message:   fmt.Sprintf(format, args...),
		FlowToken: flowToken,
		ID:        id,
	}
}
