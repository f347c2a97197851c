package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/contentforge/review-api/internal/handler"
	"github.com/contentforge/review-api/internal/realtime"
	"github.com/contentforge/review-api/pkg/auth"
	"github.com/contentforge/review-api/pkg/logger"
)

// Handler upgrades authenticated requests to WebSocket connections and hands
// them to the realtime registry. Browsers cannot set an Authorization header
// on the upgrade request, so the token travels as a query parameter.
type Handler struct {
	registry *realtime.Registry
	tokens   auth.TokenService
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

func NewHandler(registry *realtime.Registry, tokens auth.TokenService, log *logger.Logger) *Handler {
	return &Handler{
		registry: registry,
		tokens:   tokens,
		logger:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws/notifications", h.Connect)
}

func (h *Handler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing token"))
		return
	}

	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		h.logger.Error(err, "websocket upgrade failed", "user_id", claims.UserID.String())
		return
	}

	client := realtime.NewClient(claims.UserID, conn, h.registry)
	h.logger.Debug("websocket connected", "user_id", claims.UserID.String())
	go client.Serve()
}
