package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/contentforge/review-api/internal/handler"
	"github.com/contentforge/review-api/internal/middleware"
	"github.com/contentforge/review-api/internal/model"
	"github.com/contentforge/review-api/internal/service/notification"
	"github.com/contentforge/review-api/internal/service/preference"
)

type Handler struct {
	service notification.Service
	prefs   preference.Service
}

func NewHandler(service notification.Service, prefs preference.Service) *Handler {
	return &Handler{service: service, prefs: prefs}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	n := r.Group("/notifications")
	{
		n.GET("", h.List)
		n.GET("/unread-count", h.UnreadCount)
		n.POST("/read-all", h.MarkAllAsRead)
		n.POST("/:id/read", h.MarkAsRead)
		n.POST("/:id/archive", h.Archive)
		n.DELETE("/:id", h.Delete)
		n.GET("/preferences", h.GetPreferences)
		n.PUT("/preferences", h.UpdatePreferences)
	}
}

func (h *Handler) List(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}

	var filter model.NotificationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	filter.Normalize()

	items, total, err := h.service.List(c.Request.Context(), userID, &filter)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"items": items,
		"total": total,
		"page":  filter.Page,
		"size":  filter.PageSize,
	}))
}

func (h *Handler) UnreadCount(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"unread_count": count}))
}

func (h *Handler) MarkAsRead(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.service.MarkAsRead(c.Request.Context(), userID, id); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) MarkAllAsRead(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}

	if err := h.service.MarkAllAsRead(c.Request.Context(), userID); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) Archive(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.service.Archive(c.Request.Context(), userID, id); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) Delete(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, id); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) GetPreferences(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}

	pref, err := h.prefs.Get(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(pref))
}

// UpdatePreferences replaces the caller's preference document wholesale.
func (h *Handler) UpdatePreferences(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}

	var doc model.NotificationPreference
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	updated, err := h.prefs.Update(c.Request.Context(), userID, &doc)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(updated))
}

func authedUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return uuid.Nil, false
	}
	return userID, true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid id"))
		return uuid.Nil, false
	}
	return id, true
}
