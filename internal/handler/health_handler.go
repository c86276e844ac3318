package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/utils"
)

// HealthHandler reports liveness and dependency readiness.
type HealthHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewHealthHandler(db *gorm.DB, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient}
}

// Live always answers ok while the process is up.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "ok", nil)
}

// Ready checks the database and cache connections.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	checks := fiber.Map{"database": "ok", "redis": "ok"}
	healthy := true

	if h.db != nil {
		if sqlDB, err := h.db.DB(); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else if err := sqlDB.PingContext(c.UserContext()); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.UserContext()).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}

	if !healthy {
		return utils.SendSuccessWithStatus(c, fiber.StatusServiceUnavailable, "degraded", checks)
	}
	return utils.SendSuccess(c, "ready", checks)
}
