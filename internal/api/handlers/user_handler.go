package handlers

import (
	"grts/internal/dto"
	"grts/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type UserHandler struct {
	users    *service.UserService
	notifier service.Notifier
	logger   *zap.Logger
}

func NewUserHandler(users *service.UserService, notifier service.Notifier, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, notifier: notifier, logger: logger}
}

// Me godoc
// @Summary Current user
// @Tags users
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.UserResponse
// @Router /api/v1/me [get]
func (h *UserHandler) Me(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	me, err := h.users.Me(c.UserContext(), actor)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to load user")
	}
	return c.JSON(me)
}

// List godoc
// @Summary List users
// @Tags users
// @Produce json
// @Security Bearer
// @Success 200 {array} dto.UserResponse
// @Router /api/v1/users [get]
func (h *UserHandler) List(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	users, err := h.users.List(c.UserContext(), actor)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list users")
	}
	return c.JSON(users)
}

// UpdateRole godoc
// @Summary Change a user's role
// @Tags users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body dto.UpdateRoleRequest true "Role"
// @Security Bearer
// @Success 204
// @Router /api/v1/users/{id}/role [put]
func (h *UserHandler) UpdateRole(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	var req dto.UpdateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.users.UpdateRole(c.UserContext(), actor, id, req); err != nil {
		return respondError(c, h.logger, err, "Failed to update role")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Cards godoc
// @Summary Caller's fuel cards
// @Tags cards
// @Produce json
// @Security Bearer
// @Success 200 {array} dto.CardResponse
// @Router /api/v1/cards [get]
func (h *UserHandler) Cards(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	cards, err := h.users.Cards(c.UserContext(), actor)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list cards")
	}
	return c.JSON(cards)
}

// AddCard godoc
// @Summary Register a fuel card
// @Tags cards
// @Accept json
// @Produce json
// @Param request body dto.CardRequest true "Card"
// @Security Bearer
// @Success 201 {object} dto.CardResponse
// @Failure 409 {object} map[string]string
// @Router /api/v1/cards [post]
func (h *UserHandler) AddCard(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	var req dto.CardRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	card, err := h.users.AddCard(c.UserContext(), actor, req)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to add card")
	}
	return c.Status(fiber.StatusCreated).JSON(card)
}

// RemoveCard godoc
// @Summary Remove a fuel card
// @Tags cards
// @Param last4 path string true "Last four digits"
// @Security Bearer
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/cards/{last4} [delete]
func (h *UserHandler) RemoveCard(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	if err := h.users.RemoveCard(c.UserContext(), actor, c.Params("last4")); err != nil {
		return respondError(c, h.logger, err, "Failed to remove card")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Notify godoc
// @Summary Email an officer
// @Tags users
// @Accept json
// @Produce json
// @Param request body dto.NotifyRequest true "Message"
// @Security Bearer
// @Success 200 {object} map[string]bool
// @Failure 502 {object} map[string]string
// @Router /api/v1/notify [post]
func (h *UserHandler) Notify(c *fiber.Ctx) error {
	var req dto.NotifyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if fields := dto.Validate(&req); fields != nil {
		return respondError(c, h.logger, &service.FieldError{Fields: fields}, "Invalid request")
	}

	err := h.notifier.Send(c.UserContext(), service.Email{To: req.To, Subject: req.Subject, Text: req.Text})
	if err != nil {
		h.logger.Warn("Manager notification failed", zap.String("to", req.To), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Failed to send email"})
	}
	return c.JSON(fiber.Map{"ok": true})
}
