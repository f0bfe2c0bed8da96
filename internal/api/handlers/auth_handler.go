package handlers

import (
	"grts/internal/dto"
	"grts/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AuthHandler issues the bearer tokens every officer and manager route needs.
type AuthHandler struct {
	authService *service.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// tokens writes a token pair. Token bodies must never be cached by proxies.
func (h *AuthHandler) tokens(c *fiber.Ctx, status int, event string, resp *dto.AuthResponse) error {
	h.logger.Info(event,
		zap.String("user_id", resp.User.ID),
		zap.String("role", resp.User.Role),
		zap.String("ip", c.IP()),
	)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Status(status).JSON(resp)
}

// Register godoc
// @Summary Register an officer
// @Description Creates an account and signs it in. Accounts start as officers, except the first one on a fresh install, which becomes the manager. The returned user carries the assigned role.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Email, name and password"
// @Success 201 {object} dto.AuthResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]string
// @Router /user/auth/register [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.authService.Register(c.UserContext(), &req)
	if err != nil {
		return respondError(c, h.logger, err, "Registration failed")
	}
	return h.tokens(c, fiber.StatusCreated, "Account registered", resp)
}

// Login godoc
// @Summary Sign in
// @Description Exchanges email and password for an access and refresh token. The role claim decides access to manager routes.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Credentials"
// @Success 200 {object} dto.AuthResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Router /user/auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.authService.Login(c.UserContext(), &req)
	if err != nil {
		return respondError(c, h.logger, err, "Login failed")
	}
	return h.tokens(c, fiber.StatusOK, "Signed in", resp)
}

// RefreshToken godoc
// @Summary Refresh the token pair
// @Description Re-reads the user, so a role granted or revoked by a manager applies from the next refresh.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RefreshTokenRequest true "Refresh token"
// @Success 200 {object} dto.AuthResponse
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /user/auth/refresh [post]
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	var req dto.RefreshTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.RefreshToken == "" {
		return respondError(c, h.logger, &service.FieldError{Fields: map[string]string{"RefreshToken": "required"}}, "Invalid request")
	}

	resp, err := h.authService.RefreshToken(c.UserContext(), req.RefreshToken)
	if err != nil {
		return respondError(c, h.logger, err, "Token refresh failed")
	}
	return h.tokens(c, fiber.StatusOK, "Token refreshed", resp)
}
