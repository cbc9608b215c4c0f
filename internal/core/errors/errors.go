package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain errors - these represent business rule violations
var (
	// Authentication & Authorization
	ErrInvalidCredentials = errors.New("invalid authentication data")
	ErrInvalidOwner       = errors.New("invalid owner")
	ErrForbidden          = errors.New("action forbidden")
	ErrUnauthorized       = errors.New("unauthorized")

	// Lookups
	ErrOwnerNotFound      = errors.New("owner not found")
	ErrPetNotFound        = errors.New("pet not found")
	ErrServiceNotFound    = errors.New("service not found")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrConnectionNotFound = errors.New("connection not registered")

	// Booking rules
	ErrInvalidDateRange        = errors.New("end date must not be before start date")
	ErrBookingTooLong          = errors.New("booking range exceeds the maximum stay")
	ErrInvalidBookingStatus    = errors.New("invalid booking status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrServiceFullyBooked      = errors.New("service is fully booked for the requested dates")
	ErrPetOwnerMismatch        = errors.New("pet does not belong to owner")
	ErrConcurrentModification  = errors.New("resource was modified concurrently")

	// Envelopes
	ErrOperationRequired = errors.New("operation name is required")
	ErrUnknownOperation  = errors.New("unknown operation")
	ErrMalformedMessage  = errors.New("malformed message")
	ErrInvalidTopic      = errors.New("invalid topic")
	ErrEmptySubscription = errors.New("bookingId or ownerId is required")

	// Transport
	ErrTransportClosed   = errors.New("transport closed")
	ErrTransportBackedUp = errors.New("transport send buffer full")

	// Generic
	ErrNotFound    = errors.New("resource not found")
	ErrInternal    = errors.New("internal server error")
	ErrBadRequest  = errors.New("bad request")
	ErrConflict    = errors.New("resource conflict")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// AppError wraps errors with additional context for HTTP responses and
// realtime response envelopes.
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error codes shared by HTTP and realtime envelopes.
const (
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeAuthorization  = "AUTHORIZATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeTransport      = "TRANSPORT_ERROR"
	CodeValidation     = "VALIDATION_ERROR"
	CodeBadRequest     = "BAD_REQUEST"
	CodeConflict       = "CONFLICT"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternal       = "INTERNAL_ERROR"
)

func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       CodeBadRequest,
		StatusCode: 400,
	}
}

// NewAuthenticationError reports bad credentials or an unresolvable owner.
func NewAuthenticationError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    err.Error(),
		Code:       CodeAuthentication,
		StatusCode: 401,
	}
}

// NewAuthorizationError reports a valid identity lacking role or scope.
// The reason is surfaced verbatim to the offending client.
func NewAuthorizationError(reason string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    "Permission denied: " + reason,
		Code:       CodeAuthorization,
		StatusCode: 403,
	}
}

func NewNotFoundError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       CodeNotFound,
		StatusCode: 404,
	}
}

func NewConflictError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       CodeConflict,
		StatusCode: 409,
	}
}

func NewValidationError(err error, message string, details map[string]interface{}) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       CodeValidation,
		StatusCode: 422,
		Details:    details,
	}
}

// NewTransportError reports a failed write on one connection.
func NewTransportError(err error, connectionID string) *AppError {
	return &AppError{
		Err:        err,
		Message:    fmt.Sprintf("delivery to connection %s failed", connectionID),
		Code:       CodeTransport,
		StatusCode: 500,
		Details:    map[string]interface{}{"connectionId": connectionID},
	}
}

func NewRateLimitError() *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Too many requests. Please try again later.",
		Code:       CodeRateLimited,
		StatusCode: 429,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       CodeInternal,
		StatusCode: 500,
	}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}

// Summary renders the field errors in a stable single-line form.
func (v *ValidationErrors) Summary() string {
	fields := make([]string, 0, len(v.Errors))
	for field := range v.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(v.Errors[field], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Classify maps any error onto an AppError so transports can render it
// uniformly. Unknown errors become internal errors.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var validationErrs *ValidationErrors
	if errors.As(err, &validationErrs) {
		return NewValidationError(err, validationErrs.Summary(), map[string]interface{}{"fields": validationErrs.Errors})
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidOwner):
		return NewAuthenticationError(err)
	case errors.Is(err, ErrForbidden):
		return NewAuthorizationError("action forbidden")
	case errors.Is(err, ErrOwnerNotFound),
		errors.Is(err, ErrPetNotFound),
		errors.Is(err, ErrServiceNotFound),
		errors.Is(err, ErrBookingNotFound),
		errors.Is(err, ErrConnectionNotFound),
		errors.Is(err, ErrNotFound):
		return NewNotFoundError(err, err.Error())
	case errors.Is(err, ErrInvalidDateRange),
		errors.Is(err, ErrBookingTooLong),
		errors.Is(err, ErrInvalidBookingStatus),
		errors.Is(err, ErrPetOwnerMismatch),
		errors.Is(err, ErrOperationRequired),
		errors.Is(err, ErrUnknownOperation),
		errors.Is(err, ErrMalformedMessage),
		errors.Is(err, ErrInvalidTopic),
		errors.Is(err, ErrEmptySubscription):
		return NewValidationError(err, err.Error(), nil)
	case errors.Is(err, ErrInvalidStatusTransition),
		errors.Is(err, ErrServiceFullyBooked),
		errors.Is(err, ErrConcurrentModification),
		errors.Is(err, ErrConflict):
		return NewConflictError(err, err.Error())
	case errors.Is(err, ErrTransportClosed), errors.Is(err, ErrTransportBackedUp):
		return &AppError{Err: err, Message: err.Error(), Code: CodeTransport, StatusCode: 500}
	case errors.Is(err, ErrRateLimited):
		return NewRateLimitError()
	case errors.Is(err, ErrBadRequest):
		return NewBadRequestError(err, "Invalid request")
	default:
		return NewInternalError(err)
	}
}
