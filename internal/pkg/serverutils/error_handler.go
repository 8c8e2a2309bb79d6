package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// StatusError lets services attach an HTTP status to a sentinel error.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

func NewStatusError(code int, err error) error {
	return &StatusError{Code: code, Err: err}
}

// ErrorHandlerMiddleware turns errors returned by handlers into a JSON BaseResponse.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			return ctx.Status(fiber.StatusBadRequest).JSON(ValidationErrorResponse(validationErr.Fields))
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return ctx.Status(statusErr.Code).JSON(ErrorResponse(statusErr.Code, statusErr.Err.Error()))
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
		}

		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, err.Error()))
	}
}
