package handlers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/okemsocial/okem_social/middleware"
	"github.com/okemsocial/okem_social/services"
	"github.com/okemsocial/okem_social/signaling"
)

var validate = validator.New()

// ErrorHandler renders every error that reaches Fiber as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	if code >= fiber.StatusInternalServerError {
		log.Errorf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
	}
	return c.Status(code).JSON(fiber.Map{
		"status":  "error",
		"code":    code,
		"message": err.Error(),
	})
}

// apiError turns a service or signaling failure into a *fiber.Error.
func apiError(err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Not found")
	case errors.Is(err, services.ErrNotGroupConversation), errors.Is(err, services.ErrSelfConversation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var se *signaling.Error
	if !errors.As(err, &se) {
		log.Errorf("request failed: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Internal server error")
	}

	switch se.Code {
	case signaling.CodeUnauthorized:
		return fiber.NewError(fiber.StatusUnauthorized, se.Message)
	case signaling.CodeForbidden:
		return fiber.NewError(fiber.StatusForbidden, se.Message)
	case signaling.CodeNotFound:
		return fiber.NewError(fiber.StatusNotFound, se.Message)
	case signaling.CodeInvalidArgument:
		return fiber.NewError(fiber.StatusBadRequest, se.Message)
	case signaling.CodeBusy:
		return fiber.NewError(fiber.StatusConflict, se.Message)
	case signaling.CodeTransportFailure:
		return fiber.NewError(fiber.StatusServiceUnavailable, se.Message)
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "Internal server error")
	}
}

func currentUserID(c *fiber.Ctx) (uint, error) {
	id := middleware.CurrentUserID(c)
	if id == 0 {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
	}
	return id, nil
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	n, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || n == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return uint(n), nil
}

// parseBody decodes and validates the request body into req.
func parseBody(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}
