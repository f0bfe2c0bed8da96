package middleware

import (
	"crypto/subtle"
	"strings"

	"grts/pkg/auth"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	LocalUserID = "userID"
	LocalEmail  = "email"
	LocalRole   = "role"
)

func AuthMiddleware(jwtManager *auth.JWTManager, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			logger.Warn("Missing authorization token", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization token required",
			})
		}

		claims, err := jwtManager.ValidateToken(token)
		if err != nil {
			logger.Warn("Invalid token", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalEmail, claims.Email)
		c.Locals(LocalRole, claims.Role)

		return c.Next()
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(logger *zap.Logger, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(LocalRole).(string)
		for _, r := range roles {
			if role == r {
				return c.Next()
			}
		}
		logger.Warn("Role check failed",
			zap.String("role", role),
			zap.Strings("required", roles),
			zap.String("path", c.Path()),
		)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Forbidden",
		})
	}
}

// ServiceOrRole admits scheduler calls that present the service key as a bearer
// token or the cron secret header, and otherwise falls back to a JWT with one of roles.
func ServiceOrRole(jwtManager *auth.JWTManager, serviceKey, cronSecret string, logger *zap.Logger, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if serviceKey != "" && secretEqual(token, serviceKey) {
			c.Locals(LocalRole, "service")
			return c.Next()
		}
		if cron := c.Get("x-cron-secret"); cronSecret != "" && secretEqual(cron, cronSecret) {
			c.Locals(LocalRole, "service")
			return c.Next()
		}

		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		claims, err := jwtManager.ValidateToken(token)
		if err != nil {
			logger.Warn("Invalid token on service route", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		for _, r := range roles {
			if claims.Role == r {
				c.Locals(LocalUserID, claims.UserID)
				c.Locals(LocalEmail, claims.Email)
				c.Locals(LocalRole, claims.Role)
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Forbidden",
		})
	}
}

func bearerToken(c *fiber.Ctx) string {
	token := c.Get("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
}

func secretEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
