package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies application errors; each type maps to one
// recovery policy and one HTTP status.
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeInternal       ErrorType = "internal"
	ErrorTypeExternal       ErrorType = "external"

	// Group-buy domain error types.
	ErrorTypeCampaignClosed      ErrorType = "campaign_closed"
	ErrorTypeGroupNotActive      ErrorType = "group_not_active"
	ErrorTypeGroupExpired        ErrorType = "group_expired"
	ErrorTypeGroupFull           ErrorType = "group_full"
	ErrorTypeCapacityExceeded    ErrorType = "capacity_exceeded"
	ErrorTypeInventoryExhausted  ErrorType = "inventory_exhausted"
	ErrorTypeDuplicateBooking    ErrorType = "duplicate_booking"
	ErrorTypeInvalidConfig       ErrorType = "invalid_config"
	ErrorTypeIllegalTransition   ErrorType = "illegal_transition"
	ErrorTypePaymentGatewayError ErrorType = "payment_gateway_error"
)

// AppError is a structured application error.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code"`
	Internal   error                  `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// IsType reports whether err is an AppError of the given type.
func IsType(err error, typ ErrorType) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Type == typ
}

// AsAppError extracts an AppError from err, or wraps err as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("unexpected error", err)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Internal:   internal,
	}
}

// NewCampaignClosed indicates a campaign that is inactive, outside its
// window, or already closed by capacity.
func NewCampaignClosed(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeCampaignClosed,
		Message:    message,
		StatusCode: http.StatusGone,
	}
}

// NewGroupNotActive indicates a join against a non-active group.
func NewGroupNotActive(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeGroupNotActive,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewGroupExpired indicates a join after the group's countdown elapsed.
func NewGroupExpired(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeGroupExpired,
		Message:    message,
		StatusCode: http.StatusGone,
	}
}

// NewGroupFull indicates a join that lost the last-seat race.
func NewGroupFull(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeGroupFull,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewCapacityExceeded indicates the campaign-wide pax cap would be
// exceeded; remaining carries the pax still available.
func NewCapacityExceeded(message string, remaining int) *AppError {
	return &AppError{
		Type:       ErrorTypeCapacityExceeded,
		Message:    message,
		StatusCode: http.StatusConflict,
		Details:    map[string]interface{}{"remaining_pax": remaining},
	}
}

// NewInventoryExhausted indicates no group slots remain on the campaign.
func NewInventoryExhausted(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInventoryExhausted,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewDuplicateBooking indicates the email already has an active
// participant in the campaign and no valid special code was supplied.
func NewDuplicateBooking(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeDuplicateBooking,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewInvalidConfig indicates an inconsistent campaign configuration.
func NewInvalidConfig(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidConfig,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewIllegalTransition indicates an attempt to move a terminal entity.
func NewIllegalTransition(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeIllegalTransition,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewPaymentGatewayError wraps a gateway failure. Treated as transient;
// the payment stays pending until its timeout.
func NewPaymentGatewayError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypePaymentGatewayError,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Internal:   internal,
	}
}

// ErrorResponse represents the JSON error response
type ErrorResponse struct {
	Error struct {
		Type      ErrorType              `json:"type"`
		Message   string                 `json:"message"`
		Details   map[string]interface{} `json:"details,omitempty"`
		RequestID string                 `json:"request_id,omitempty"`
		Timestamp string                 `json:"timestamp"`
	} `json:"error"`
}
