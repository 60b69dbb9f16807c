// Package errors contains helper functions and types to work with errors
package errors

import (
	"errors"
	"net/http"
)

// Code is a stable machine-readable rejection code. Codes are part of the API
// contract: clients key on them to correct input, so they never change meaning.
type Code string

const (
	CodeCircuitBreakerOpen     Code = "CIRCUIT_BREAKER_OPEN"
	CodeBlacklisted            Code = "BLACKLISTED"
	CodeUnsupportedChain       Code = "UNSUPPORTED_CHAIN"
	CodeBelowMinimumAmount     Code = "BELOW_MINIMUM_AMOUNT"
	CodeInsufficientBalance    Code = "INSUFFICIENT_BALANCE"
	CodeDuplicateTxHash        Code = "DUPLICATE_TX_HASH"
	CodeBurnNotVerified        Code = "BURN_NOT_VERIFIED"
	CodeMintSubmissionFailed   Code = "MINT_SUBMISSION_FAILED"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeStorageConflict        Code = "STORAGE_CONFLICT"
	CodeInvalidRequest         Code = "INVALID_REQUEST"
	CodeNotFound               Code = "NOT_FOUND"
	CodeInternal               Code = "INTERNAL"
)

// Category defines error category
type Category int

const (
	// CategoryNoError indicates no error condition.
	CategoryNoError Category = iota
	// CategoryDataError The client sent invalid data in the request.
	CategoryDataError
	// CategoryUnauthorized The client is not authorized to access the requested resource
	CategoryUnauthorized
	// CategoryForbidden The client is not allowed to perform the requested operation
	CategoryForbidden
	// CategoryResourceNotFound The client is attempting to access a resource that does not exist
	CategoryResourceNotFound
	// CategoryDataConflict The client sent data that conflicts with existing data
	CategoryDataConflict
	// CategoryLocked The requested operation is blocked by a safety lock
	CategoryLocked
	// CategoryDependencyFailure A dependent service is throwing errors
	CategoryDependencyFailure
	// CategoryGeneralError The service failed in an unexpected way
	CategoryGeneralError
	// CategoryConnectionTimeout Connection to a dependent service timed out
	CategoryConnectionTimeout
)

func (c Category) String() string {
	switch c {
	case CategoryDataError:
		return "CategoryDataError"
	case CategoryUnauthorized:
		return "CategoryUnauthorized"
	case CategoryForbidden:
		return "CategoryForbidden"
	case CategoryResourceNotFound:
		return "CategoryResourceNotFound"
	case CategoryDataConflict:
		return "CategoryDataConflict"
	case CategoryLocked:
		return "CategoryLocked"
	case CategoryDependencyFailure:
		return "CategoryDependencyFailure"
	case CategoryConnectionTimeout:
		return "CategoryConnectionTimeout"
	default:
		return "CategoryGeneralError"
	}
}

// ServiceError is the error type surfaced to API clients. Message and Code are
// user-visible; Err carries the internal cause and is only ever logged.
type ServiceError struct {
	Category Category
	Code     Code
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is implements the custom condition to check an error is equal to a service error
func (err ServiceError) Is(target error) bool {
	return err.Message == target.Error()
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Category == cat {
		return true
	}
	return false
}

// HasCode checks that provided error is a ServiceError carrying the given code
func HasCode(err error, code Code) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Code == code {
		return true
	}
	return false
}

// CodeOf extracts the rejection code from an error, or CodeInternal
func CodeOf(err error) Code {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Code != "" {
		return svcErr.Code
	}
	return CodeInternal
}

// IsInternalError checks that provided error is an internal system error
func IsInternalError(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && (svcErr.Category < CategoryDependencyFailure) {
		return false
	}
	return true
}

// GeneralError returns a general service error.
// The message sent to the user is "Internal Server Error"; the wrapped error
// is only logged.
func GeneralError(err error) error {
	if err == nil {
		err = errors.New("internal server error")
	}
	return &ServiceError{
		Category: CategoryGeneralError,
		Code:     CodeInternal,
		Message:  "Internal Server Error",
		Err:      err,
	}
}

// NotFoundError returns an error with category ResourceNotFound
func NotFoundError(err error, message string) error {
	if err == nil {
		err = errors.New("resource not found: " + message)
	}
	return &ServiceError{
		Category: CategoryResourceNotFound,
		Code:     CodeNotFound,
		Message:  message,
		Err:      err,
	}
}

// BadRequestError returns an error with category DataError
func BadRequestError(err error, message string) error {
	return RejectedError(CodeInvalidRequest, err, message)
}

// RejectedError returns a client-facing rejection with a stable code.
// Used for every validation-pipeline rejection in the bridge orchestrator.
func RejectedError(code Code, err error, message string) error {
	if err == nil {
		err = errors.New(message)
	}
	return &ServiceError{
		Category: categoryForCode(code),
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// ConflictError returns an error with category CategoryDataConflict
func ConflictError(code Code, err error, message string) error {
	if err == nil {
		err = errors.New("conflict")
	}
	return &ServiceError{
		Category: CategoryDataConflict,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// DependencyError returns an error with category CategoryDependencyFailure
func DependencyError(code Code, err error, message string) error {
	if err == nil {
		err = errors.New("dependency failure")
	}
	return &ServiceError{
		Category: CategoryDependencyFailure,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

func categoryForCode(code Code) Category {
	switch code {
	case CodeCircuitBreakerOpen:
		return CategoryLocked
	case CodeBlacklisted:
		return CategoryForbidden
	case CodeUnsupportedChain, CodeNotFound:
		return CategoryResourceNotFound
	case CodeDuplicateTxHash, CodeInvalidStateTransition, CodeStorageConflict:
		return CategoryDataConflict
	case CodeMintSubmissionFailed:
		return CategoryDependencyFailure
	default:
		return CategoryDataError
	}
}

// StatusCode returns the HTTP status code for the error category
func (err ServiceError) StatusCode() int {
	switch err.Category {
	case CategoryDataError:
		return http.StatusBadRequest
	case CategoryUnauthorized:
		return http.StatusUnauthorized
	case CategoryForbidden:
		return http.StatusForbidden
	case CategoryResourceNotFound:
		return http.StatusNotFound
	case CategoryDataConflict:
		return http.StatusConflict
	case CategoryLocked:
		return http.StatusLocked
	case CategoryDependencyFailure:
		return http.StatusBadGateway
	case CategoryGeneralError:
		return http.StatusInternalServerError
	case CategoryConnectionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
