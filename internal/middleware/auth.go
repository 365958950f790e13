package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"orgdirectory/internal/config"
	"orgdirectory/internal/models"
	"orgdirectory/pkg/logger"
)

// GenerateToken signs a JWT carrying user_id, role and exp.
func GenerateToken(p models.Principal, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": p.UserID,
		"role":    string(p.Role),
		"exp":     time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(config.SecretKey)
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"message": message,
		"success": false,
		"status":  fiber.StatusUnauthorized,
	})
}

func UseToken(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return unauthorized(c, "No token provided")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return unauthorized(c, "Invalid token format")
	}
	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return config.SecretKey, nil
	})
	if err != nil || !token.Valid {
		logger.SecurityLogger.Warn("Invalid token", zap.String("ip", c.IP()), zap.Error(err))
		return unauthorized(c, "Invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return unauthorized(c, "Invalid token claims")
	}
	if exp, ok := claims["exp"].(float64); !ok || int64(exp) < time.Now().Unix() {
		return unauthorized(c, "Token expired")
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return unauthorized(c, "Invalid user ID in token")
	}
	role, ok := claims["role"].(string)
	if !ok || !models.Role(role).Valid() {
		return unauthorized(c, "Invalid role in token")
	}
	c.Locals("userID", int(userID))
	c.Locals("role", models.Role(role))
	return c.Next()
}

// Principal returns the caller UseToken stored on the context.
func Principal(c *fiber.Ctx) (models.Principal, bool) {
	id, ok := c.Locals("userID").(int)
	if !ok {
		return models.Principal{}, false
	}
	role, ok := c.Locals("role").(models.Role)
	if !ok {
		return models.Principal{}, false
	}
	return models.Principal{UserID: id, Role: role}, true
}

// RequireRoles lets the request through only for the listed roles.
// It must run after UseToken.
func RequireRoles(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := Principal(c)
		if !ok {
			return unauthorized(c, "Unauthorized")
		}
		for _, r := range roles {
			if p.Role == r {
				return c.Next()
			}
		}
		logger.SecurityLogger.Warn("Forbidden",
			zap.Int("user_id", p.UserID), zap.String("role", string(p.Role)), zap.String("path", c.Path()))
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"message": "Forbidden",
			"success": false,
			"status":  fiber.StatusForbidden,
		})
	}
}
