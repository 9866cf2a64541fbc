package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Stable error codes exposed to the boundary layer.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeForbidden            = "FORBIDDEN"
	CodeInsufficientQuantity = "INSUFFICIENT_QUANTITY"
	CodeInternal             = "INTERNAL_ERROR"
)

// AppError is the base application error carrying a stable code and an
// HTTP-like status for the boundary layer to map.
type AppError struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
}

func (e *AppError) Error() string {
	return e.Message
}

// NewValidationError reports malformed or out-of-range input. The fields map
// carries a per-field reason so callers can correct the request.
func NewValidationError(message string, fields map[string]string) *AppError {
	details := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Status:  400,
		Details: details,
	}
}

// NewNotFoundError reports a missing Instrument, Listing, Transaction,
// Portfolio or Exchange.
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
		Status:  404,
	}
}

// NewForbiddenError reports a failed ownership check.
func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  403,
	}
}

// NewExternalServiceError reports an unreachable or failing external feed.
// The code embeds the source name, e.g. TWELVEDATA_UNAVAILABLE.
func NewExternalServiceError(source, message string) *AppError {
	return &AppError{
		Code:    strings.ToUpper(source) + "_UNAVAILABLE",
		Message: message,
		Status:  503,
	}
}

// InsufficientQuantityError rejects a SELL that would drive the cumulative
// quantity for a listing negative. It carries the numeric context needed to
// correct the request.
type InsufficientQuantityError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("cannot sell %s units, only %s available", e.Requested, e.Available)
}

// NewInsufficientQuantityError creates an InsufficientQuantityError.
func NewInsufficientQuantityError(available, requested decimal.Decimal) *InsufficientQuantityError {
	return &InsufficientQuantityError{Available: available, Requested: requested}
}

// IsNotFound reports whether err is a NOT_FOUND application error.
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == CodeNotFound
}
