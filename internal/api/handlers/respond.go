package handlers

import (
	"errors"

	"grts/internal/models"
	"grts/internal/repository"
	"grts/internal/service"
	"grts/pkg/blobstore"
	"grts/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var statusByError = []struct {
	err    error
	status int
}{
	{service.ErrInvalidCredentials, fiber.StatusUnauthorized},
	{service.ErrInvalidSignature, fiber.StatusUnauthorized},
	{service.ErrForbidden, fiber.StatusForbidden},
	{service.ErrReceiptNotFound, fiber.StatusNotFound},
	{service.ErrTransactionNotFound, fiber.StatusNotFound},
	{service.ErrUserNotFound, fiber.StatusNotFound},
	{service.ErrCardNotFound, fiber.StatusNotFound},
	{repository.ErrNotFound, fiber.StatusNotFound},
	{blobstore.ErrNotFound, fiber.StatusNotFound},
	{service.ErrUserExists, fiber.StatusConflict},
	{service.ErrCardTaken, fiber.StatusConflict},
	{service.ErrNotPlaceholder, fiber.StatusConflict},
	{service.ErrNotRealReceipt, fiber.StatusConflict},
	{service.ErrNoTransaction, fiber.StatusConflict},
	{service.ErrAlreadyLinked, fiber.StatusConflict},
	{service.ErrOwnerMismatch, fiber.StatusConflict},
	{service.ErrInvalidTransition, fiber.StatusConflict},
	{service.ErrUnsupportedFile, fiber.StatusBadRequest},
	{service.ErrFileTooLarge, fiber.StatusRequestEntityTooLarge},
	{service.ErrUpstream, fiber.StatusBadGateway},
	{service.ErrInvalidDraft, fiber.StatusBadGateway},
	{service.ErrSourceNotConfigured, fiber.StatusServiceUnavailable},
	{service.ErrOCRDisabled, fiber.StatusServiceUnavailable},
}

// errorStatus maps a service error to its HTTP status, 500 when unknown.
func errorStatus(err error) int {
	if errors.Is(err, service.ErrValidation) {
		return fiber.StatusBadRequest
	}
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return fiber.StatusInternalServerError
}

// respondError maps service errors to a status and a {"error": ...} body.
// Validation failures also carry the failing fields.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error, msg string) error {
	var fe *service.FieldError
	if errors.As(err, &fe) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  fe.Error(),
			"fields": fe.Fields,
		})
	}

	status := errorStatus(err)
	if status != fiber.StatusInternalServerError {
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	logger.Error(msg, zap.String("path", c.Path()), zap.Error(err))
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func getUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userIDStr, ok := c.Locals(middleware.LocalUserID).(string)
	if !ok {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return uuid.Parse(userIDStr)
}

// getActor reads the caller set by AuthMiddleware.
func getActor(c *fiber.Ctx) (service.Actor, error) {
	userID, err := getUserID(c)
	if err != nil {
		return service.Actor{}, err
	}
	role, _ := c.Locals(middleware.LocalRole).(string)
	return service.Actor{UserID: userID, Role: models.Role(role)}, nil
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
}

func pathID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Params(name))
}
