package internal

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation             ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound               ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized           ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden              ErrorType = "FORBIDDEN"
	ErrorTypeConflict               ErrorType = "CONFLICT"
	ErrorTypeInvalidStateTransition ErrorType = "INVALID_STATE_TRANSITION"
	ErrorTypeConfiguration          ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeInternal               ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal               ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeAmountTooLow     ErrorCode = "AMOUNT_TOO_LOW"
	ErrCodeAmountTooHigh    ErrorCode = "AMOUNT_TOO_HIGH"
	ErrCodeInvalidDate      ErrorCode = "INVALID_DATE"
	ErrCodeInvalidChannel   ErrorCode = "INVALID_PAYOUT_CHANNEL"
	ErrCodeInvalidFormat    ErrorCode = "INVALID_FORMAT"
	ErrCodeEmptyBatch       ErrorCode = "EMPTY_BATCH"

	ErrCodeBatchNotFound          ErrorCode = "BATCH_NOT_FOUND"
	ErrCodePaymentNotFound        ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeReconciliationNotFound ErrorCode = "RECONCILIATION_NOT_FOUND"
	ErrCodeFSPNotFound            ErrorCode = "FSP_NOT_FOUND"

	ErrCodeInvalidBatchStatus   ErrorCode = "INVALID_BATCH_STATUS"
	ErrCodeInvalidPaymentStatus ErrorCode = "INVALID_PAYMENT_STATUS"
	ErrCodeNothingToReconcile   ErrorCode = "NOTHING_TO_RECONCILE"
	ErrCodeDispatchInProgress   ErrorCode = "DISPATCH_IN_PROGRESS"
	ErrCodeBatchTotalsMismatch  ErrorCode = "BATCH_TOTALS_MISMATCH"

	ErrCodeNoFSPConfigured ErrorCode = "NO_FSP_CONFIGURED"

	ErrCodeUnauthorizedAccess  ErrorCode = "UNAUTHORIZED_ACCESS"
	ErrCodeInvalidToken        ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired        ErrorCode = "TOKEN_EXPIRED"
	ErrCodeInvalidCallbackAuth ErrorCode = "INVALID_CALLBACK_TOKEN"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			messages := make([]string, len(validationErrors.Errors))
			for i, err := range validationErrors.Errors {
				messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
			}
			return strings.Join(messages, "; ")
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code so sentinel errors work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Fields returns the names of every violated field in order.
func (v ValidationErrors) Fields() []string {
	fields := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		fields[i] = e.Field
	}
	return fields
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewInvalidStateTransitionError reports an operation attempted from a state
// that does not allow it.
func NewInvalidStateTransitionError(entity, from, to string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidStateTransition,
		Code:       code,
		Message:    fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"from": from,
			"to":   to,
		},
	}
}

func NewConfigurationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConfiguration,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

var (
	ErrBatchNotFound          = NewNotFoundError("Payment batch not found", ErrCodeBatchNotFound)
	ErrPaymentNotFound        = NewNotFoundError("Payment not found", ErrCodePaymentNotFound)
	ErrReconciliationNotFound = NewNotFoundError("No reconciliation result for batch", ErrCodeReconciliationNotFound)
	ErrFSPNotFound            = NewNotFoundError("Financial service provider not found", ErrCodeFSPNotFound)

	ErrNothingToReconcile = &AppError{
		Type:       ErrorTypeInvalidStateTransition,
		Code:       ErrCodeNothingToReconcile,
		Message:    "Batch has no completed or failed payments to reconcile",
		StatusCode: http.StatusConflict,
	}
	ErrDispatchInProgress = NewConflictError("Payment dispatch already in progress", ErrCodeDispatchInProgress)
	ErrNoFSPConfigured    = NewConfigurationError("No financial service provider can serve this payment", ErrCodeNoFSPConfigured)

	ErrUnauthorizedAccess  = NewForbiddenError("Insufficient permissions", ErrCodeUnauthorizedAccess)
	ErrInvalidToken        = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired        = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
	ErrInvalidCallbackAuth = NewUnauthorizedError("Invalid callback token", ErrCodeInvalidCallbackAuth)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Type == t
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
