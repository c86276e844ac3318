package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gradeflow/gradeflow-api/internal/utils"
)

// RequireRole allows the request through only when the authenticated caller
// holds one of the given roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals("role").(string)
		if !ok || role == "" {
			return utils.SendError(c, fiber.StatusForbidden, "role information missing")
		}
		for _, allowed := range roles {
			if role == allowed {
				return c.Next()
			}
		}
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}
}
