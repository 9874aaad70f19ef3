package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeNotFound              ErrCode = "NOT_FOUND"
	ErrCodeUnauthorized          ErrCode = "UNAUTHORIZED"
	ErrCodeRateLimited           ErrCode = "RATE_LIMITED"
	ErrCodeInternal              ErrCode = "INTERNAL_ERROR"
	ErrCodeBadRequest            ErrCode = "BAD_REQUEST"
	ErrCodeCloneFailed           ErrCode = "CLONE_FAILED"
	ErrCodeMissingMetadata       ErrCode = "MISSING_METADATA"
	ErrCodeFieldValidationFailed ErrCode = "FIELD_VALIDATION_FAILED"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// FieldError is returned when one or more metadata fields fail validation.
// Fields is sorted.
type FieldError struct {
	Fields []string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: invalid or missing fields: %s", ErrCodeFieldValidationFailed, strings.Join(e.Fields, ", "))
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeUnauthorized,
		Message: message,
		Err:     err,
	}
}

// NewRateLimitedError creates a new rate limited error
func NewRateLimitedError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeRateLimited,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// NewCloneError creates a per-repository clone failure
func NewCloneError(repo string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeCloneFailed,
		Message: fmt.Sprintf("could not synchronize %s", repo),
		Err:     err,
	}
}

// NewMissingMetadataError creates a per-repository missing metadata error
func NewMissingMetadataError(path string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeMissingMetadata,
		Message: fmt.Sprintf("metadata file %s is not readable", path),
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain.
// A FieldError reports FIELD_VALIDATION_FAILED.
func CodeOf(err error) (ErrCode, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code, true
	}
	var fieldErr *FieldError
	if stderrors.As(err, &fieldErr) {
		return ErrCodeFieldValidationFailed, true
	}
	return "", false
}

func hasCode(err error, code ErrCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsUnauthorized checks if the error is an authentication error
func IsUnauthorized(err error) bool {
	return hasCode(err, ErrCodeUnauthorized)
}

// IsRateLimited checks if the error is a rate limited error
func IsRateLimited(err error) bool {
	return hasCode(err, ErrCodeRateLimited)
}

// IsCloneFailed checks if the error is a clone error
func IsCloneFailed(err error) bool {
	return hasCode(err, ErrCodeCloneFailed)
}

// IsMissingMetadata checks if the error is a missing metadata error
func IsMissingMetadata(err error) bool {
	return hasCode(err, ErrCodeMissingMetadata)
}

// IsFatal reports whether err must abort a whole batch run.
func IsFatal(err error) bool {
	return IsUnauthorized(err) || IsNotFound(err) || IsRateLimited(err)
}
