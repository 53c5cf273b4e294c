package response

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/scoring"
	applog "github.com/sahilchouksey/icm-reconcile/utils/logger"
)

// Response represents a standardized API response
type Response struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Success returns a successful response
func Success(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(Response{
		Success: true,
		Data:    data,
	})
}

// SuccessWithMessage returns a successful response with a message
func SuccessWithMessage(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error returns an error response
func Error(c *fiber.Ctx, statusCode int, message string, code string) error {
	return ErrorWithDetails(c, statusCode, message, code, "")
}

// ErrorWithDetails returns an error response with details
func ErrorWithDetails(c *fiber.Ctx, statusCode int, message string, code string, details string) error {
	return c.Status(statusCode).JSON(Response{
		Success: false,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// BadRequest returns a 400 Bad Request response
func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message, "BAD_REQUEST")
}

// ValidationError returns a 422 Unprocessable Entity response for validation errors
func ValidationError(c *fiber.Ctx, err error) error {
	return ErrorWithDetails(c, fiber.StatusUnprocessableEntity,
		"Validation failed", "VALIDATION_ERROR", err.Error())
}

// FromError maps a service error onto the response envelope.
// Anything unrecognised is logged and reported as a 500 without its message.
func FromError(c *fiber.Ctx, err error) error {
	status, code := classify(err)
	switch status {
	case fiber.StatusBadRequest:
		return ErrorWithDetails(c, status, "Malformed sheet id", code, err.Error())
	case fiber.StatusInternalServerError:
		applog.Errorw("request failed", "path", c.Path(), "error", err)
		return Error(c, status, "Internal server error", code)
	}
	return Error(c, status, err.Error(), code)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrMalformedID):
		return fiber.StatusBadRequest, "MALFORMED_ID"
	case errors.Is(err, model.ErrInvalidExam):
		return fiber.StatusNotFound, "INVALID_EXAM"
	case errors.Is(err, model.ErrDocumentNotFound),
		errors.Is(err, model.ErrRecordNotFound),
		errors.Is(err, model.ErrRegistrationNotFound):
		return fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, model.ErrNotExtracted):
		return fiber.StatusConflict, "NOT_EXTRACTED"
	case errors.Is(err, model.ErrAlreadyResolved):
		return fiber.StatusConflict, "ALREADY_RESOLVED"
	case errors.Is(err, model.ErrAlreadyIgnored):
		return fiber.StatusConflict, "ALREADY_IGNORED"
	case errors.Is(err, model.ErrIllegalTransition):
		return fiber.StatusConflict, "CONFLICT"
	case errors.Is(err, model.ErrTransient):
		return fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	case errors.Is(err, model.ErrRegistrationMismatch),
		errors.Is(err, model.ErrSubjectNotConfigured),
		errors.Is(err, scoring.ErrInvalidScore):
		return fiber.StatusUnprocessableEntity, "UNPROCESSABLE"
	}
	return fiber.StatusInternalServerError, "INTERNAL_ERROR"
}
