package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/fadedpez/balancewatch/internal/types"
)

// JSONSuccess writes the standard success envelope
func JSONSuccess(c *fiber.Ctx, message string, data any) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// JSONError writes the standard error envelope with the given status
func JSONError(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
		"data":    data,
	})
}

// statusFor maps a coded error to an HTTP status
func statusFor(err error) int {
	var reconErr *types.ReconError
	if !errors.As(err, &reconErr) {
		return fiber.StatusInternalServerError
	}
	switch reconErr.Code {
	case types.ErrInvalidArgument, types.ErrMalformedData:
		return fiber.StatusBadRequest
	case types.ErrStoreUnavailable:
		return fiber.StatusServiceUnavailable
	case types.ErrLockNotObtained:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
