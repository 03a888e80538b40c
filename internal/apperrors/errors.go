package apperrors

// =============================================================================
// Error Codes
// =============================================================================

type ErrorCode string

const (
	ErrorCodeInternalError         ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError       ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound              ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized          ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden             ErrorCode = "FORBIDDEN"
	ErrorCodeConflict              ErrorCode = "CONFLICT"
	ErrorCodeNodeBusy              ErrorCode = "NODE_BUSY"
	ErrorCodeNodeUnreachable       ErrorCode = "NODE_UNREACHABLE"
	ErrorCodeRoomStateConflict     ErrorCode = "ROOM_STATE_CONFLICT"
	ErrorCodeOperationInProgress   ErrorCode = "OPERATION_IN_PROGRESS"
	ErrorCodeScopeInvalid          ErrorCode = "SCOPE_INVALID"
	ErrorCodeConfirmationNotFound  ErrorCode = "CONFIRMATION_NOT_FOUND"
	ErrorCodeConfirmationExpired   ErrorCode = "CONFIRMATION_EXPIRED"
	ErrorCodeOperationNotFound     ErrorCode = "OPERATION_NOT_FOUND"
	ErrorCodeTopologyInvalid       ErrorCode = "TOPOLOGY_INVALID"
	ErrorCodeInvalidPIN            ErrorCode = "INVALID_PIN"
	ErrorCodeAuthTokenExpired      ErrorCode = "AUTH_TOKEN_EXPIRED"
	ErrorCodeAuthTokenInvalid      ErrorCode = "AUTH_TOKEN_INVALID"
	ErrorCodeServiceUnavailable    ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeEventNotFound         ErrorCode = "EVENT_NOT_FOUND"
	ErrorCodeInvalidEventType      ErrorCode = "INVALID_EVENT_TYPE"
	ErrorCodeFeedbackUnrecognized  ErrorCode = "FEEDBACK_UNRECOGNIZED"
	ErrorCodeDirectorLayoutInvalid ErrorCode = "DIRECTOR_LAYOUT_INVALID"
	ErrorCodePreconditionFailed    ErrorCode = "PRECONDITION_FAILED"
)

// Remediation provides guidance on how to fix an error.
type Remediation struct {
	Action     string `json:"action"`
	Endpoint   string `json:"endpoint,omitempty"`
	UserAction string `json:"user_action,omitempty"`
}

// =============================================================================
// Stripe API Error Types
// =============================================================================

// ErrorType categorizes errors following Stripe API conventions.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates invalid parameters, missing required fields, etc.
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAPIError indicates an internal API error.
	ErrorTypeAPIError ErrorType = "api_error"
	// ErrorTypeAuthError indicates authentication or authorization failure.
	ErrorTypeAuthError ErrorType = "authentication_error"
)

// StripeErrorBody is the Stripe-style error payload.
// Format: {"type": "invalid_request_error", "code": "NODE_BUSY", "message": "...", "details": {...}}
type StripeErrorBody struct {
	Type        ErrorType      `json:"type"`
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Remediation *Remediation   `json:"remediation,omitempty"`
}

// AppError is the base error type for HTTP responses.
type AppError struct {
	Code        ErrorCode
	Message     string
	StatusCode  int
	Details     map[string]any
	Remediation *Remediation
}

func (err *AppError) Error() string {
	return err.Message
}

// StripeErrorBody returns the error in Stripe API format.
func (err *AppError) StripeErrorBody() StripeErrorBody {
	errType := ErrorTypeAPIError
	switch {
	case err.StatusCode == 401 || err.StatusCode == 403:
		errType = ErrorTypeAuthError
	case err.StatusCode >= 400 && err.StatusCode < 500:
		errType = ErrorTypeInvalidRequest
	}

	return StripeErrorBody{
		Type:        errType,
		Code:        string(err.Code),
		Message:     err.Message,
		Details:     err.Details,
		Remediation: err.Remediation,
	}
}

func NewAppError(code ErrorCode, message string, statusCode int, details map[string]any, remediation *Remediation) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		Details:     details,
		Remediation: remediation,
	}
}

func NewValidationError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeValidationError, message, 400, details, nil)
}

func NewUnauthorizedError(message string, code ...ErrorCode) *AppError {
	errCode := ErrorCodeUnauthorized
	if len(code) > 0 {
		errCode = code[0]
	}
	return NewAppError(errCode, message, 401, nil, nil)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(ErrorCodeForbidden, message, 403, nil, nil)
}

func NewNotFoundError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeNotFound, message, 404, details, nil)
}

func NewNotFoundResource(resource, id string) *AppError {
	message := resource + " not found"
	details := map[string]any{
		"resource": resource,
	}
	if id != "" {
		message = resource + " not found: " + id
		details["id"] = id
	}
	return NewAppError(ErrorCodeNotFound, message, 404, details, nil)
}

func NewConflictError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeConflict, message, 409, details, nil)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrorCodeServiceUnavailable, message, 503, nil, nil)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternalError, message, 500, nil, nil)
}

// EnsureAppError converts an arbitrary error into an AppError.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewInternalError("Internal server error")
}
