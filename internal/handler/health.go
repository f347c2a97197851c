package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type HealthHandler struct {
	db    *sqlx.DB
	redis *redis.Client
}

func NewHealthHandler(db *sqlx.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb}
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.Check)
}

// Check reports overall service health along with per-dependency status.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()

	status := http.StatusOK
	deps := gin.H{}

	if err := h.db.PingContext(ctx); err != nil {
		deps["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	} else {
		deps["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			deps["redis"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			deps["redis"] = "ok"
		}
	}

	c.JSON(status, gin.H{
		"status":       http.StatusText(status),
		"time":         time.Now().UTC(),
		"dependencies": deps,
	})
}
