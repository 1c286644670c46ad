// Package errors defines the application error taxonomy and its reporting handler.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const defaultUserMessage = "Произошла ошибка. Попробуйте позже"

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Status      int
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// As is errors.As restricted to *AppError.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}
	return nil, false
}

// StatusOf returns the HTTP status for err, 500 for anything unclassified.
func StatusOf(err error) int {
	if appErr, ok := As(err); ok && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        "E100",
		Message:     fmt.Sprintf("Validation error: %s", msg),
		UserMessage: msg,
		Severity:    SeverityLow,
		Status:      http.StatusBadRequest,
	}
}

func NewUnauthorizedError(msg string) *AppError {
	if msg == "" {
		msg = "Требуется авторизация"
	}
	return &AppError{
		Code:        "E101",
		Message:     fmt.Sprintf("Unauthorized: %s", msg),
		UserMessage: msg,
		Severity:    SeverityLow,
		Status:      http.StatusUnauthorized,
	}
}

func NewNotFoundError(msg string) *AppError {
	return &AppError{
		Code:        "E104",
		Message:     fmt.Sprintf("Not found: %s", msg),
		UserMessage: msg,
		Severity:    SeverityLow,
		Status:      http.StatusNotFound,
	}
}

// NewConflictError reports a uniqueness violation. The API surfaces it as 400.
func NewConflictError(msg string, cause error) *AppError {
	return &AppError{
		Code:        "E109",
		Message:     fmt.Sprintf("Conflict: %s", msg),
		UserMessage: msg,
		Severity:    SeverityLow,
		Status:      http.StatusBadRequest,
		cause:       cause,
	}
}

func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        "E200",
		Message:     fmt.Sprintf("Database error: %s", underlyingMsg),
		UserMessage: defaultUserMessage,
		Severity:    SeverityHigh,
		Status:      http.StatusInternalServerError,
		cause:       cause,
	}
}

// NewExternalAPIError wraps an upstream failure. detail is shown to the caller truncated to 200 bytes.
func NewExternalAPIError(apiName string, detail string, cause error) *AppError {
	userMsg := fmt.Sprintf("Сервис %s временно недоступен", apiName)
	if detail != "" {
		userMsg = fmt.Sprintf("Ошибка %s: %s", apiName, Truncate(detail, 200))
	}

	return &AppError{
		Code:        "E300",
		Message:     fmt.Sprintf("External API error: %s", apiName),
		UserMessage: userMsg,
		Severity:    SeverityMedium,
		Status:      http.StatusInternalServerError,
		cause:       cause,
	}
}

func NewConfigError(setting string) *AppError {
	return &AppError{
		Code:        "E310",
		Message:     fmt.Sprintf("Configuration error: %s is not set", setting),
		UserMessage: fmt.Sprintf("Сервис не настроен: %s", setting),
		Severity:    SeverityCritical,
		Status:      http.StatusInternalServerError,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        "E500",
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Слишком много запросов. Попробуйте через %d секунд", retryAfter),
		Severity:    SeverityLow,
		Status:      http.StatusTooManyRequests,
	}
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
