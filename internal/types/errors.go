package types

import "fmt"

// ErrorCode represents a specific error type
type ErrorCode string

const (
	// Store errors
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrMalformedData    ErrorCode = "MALFORMED_DATA"
	ErrPartialMark      ErrorCode = "PARTIAL_MARK"

	// Group errors
	ErrGroupNotFound   ErrorCode = "GROUP_NOT_FOUND"
	ErrLockNotObtained ErrorCode = "LOCK_NOT_OBTAINED"

	// Batch errors
	ErrBatchFailed     ErrorCode = "BATCH_FAILED"
	ErrSinkFailed      ErrorCode = "SINK_FAILED"
	ErrInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// System errors
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// ReconError is a coded error raised by the reconciliation pipeline
type ReconError struct {
	Code    ErrorCode
	Message string
	Err     error // Underlying error, if any
}

// Error implements the error interface
func (e *ReconError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ReconError) Unwrap() error {
	return e.Err
}

// NewReconError creates a new ReconError
func NewReconError(code ErrorCode, message string) *ReconError {
	return &ReconError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error in a ReconError
func WrapError(code ErrorCode, message string, err error) *ReconError {
	return &ReconError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsReconError reports whether err carries a ReconError with the given code
// anywhere in its chain.
func IsReconError(err error, code ErrorCode) bool {
	var reconErr *ReconError
	if err == nil {
		return false
	}
	if ok := As(err, &reconErr); !ok {
		return false
	}
	return reconErr.Code == code
}

// As walks the Unwrap chain looking for a ReconError
func As(err error, target **ReconError) bool {
	if target == nil {
		return false
	}
	for err != nil {
		if reconErr, ok := err.(*ReconError); ok {
			*target = reconErr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CodeOf returns the code of the first ReconError in the chain, or
// ErrInternalError for anything else.
func CodeOf(err error) ErrorCode {
	var reconErr *ReconError
	if As(err, &reconErr) {
		return reconErr.Code
	}
	return ErrInternalError
}
