package review

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/contentforge/review-api/internal/handler"
	"github.com/contentforge/review-api/internal/middleware"
	"github.com/contentforge/review-api/internal/model"
	"github.com/contentforge/review-api/internal/service/checks"
	"github.com/contentforge/review-api/internal/service/review"
)

type Handler struct {
	service review.Service
}

func NewHandler(service review.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	qc := r.Group("/quality-checks")
	{
		qc.POST("", h.Create)
		qc.GET("", h.List)
		qc.GET("/:id", h.Get)
		qc.POST("/:id/checks", h.RunChecks)
		qc.POST("/:id/assign", h.Assign)
		qc.POST("/:id/review/start", h.StartReview)
		qc.POST("/:id/review/complete", h.CompleteReview)
		qc.GET("/:id/comments", h.ListComments)
		qc.POST("/:id/comments", h.AddComment)
		qc.POST("/:id/revisions", h.SubmitRevision)
	}
	r.GET("/reviewers", h.ListReviewers)
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateQualityCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	check, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(check))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	check, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(check))
}

func (h *Handler) List(c *gin.Context) {
	var filter model.QualityCheckFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	filter.Normalize()

	items, total, err := h.service.List(c.Request.Context(), &filter)
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

// RunChecks executes the automated dimension checks against the submitted
// content snapshot and stores the results on the quality check.
func (h *Handler) RunChecks(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var content checks.Content
	if err := c.ShouldBindJSON(&content); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	check, err := h.service.RunAutomatedChecks(c.Request.Context(), id, content)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(check))
}

func (h *Handler) Assign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	check, err := h.service.AssignReviewer(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(check))
}

func (h *Handler) StartReview(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	check, err := h.service.StartManualReview(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(check))
}

func (h *Handler) CompleteReview(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req model.CompleteReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	check, err := h.service.CompleteManualReview(c.Request.Context(), id, model.ReviewVerdict(req.Verdict), req.Comments)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(check))
}

func (h *Handler) ListComments(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	check, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(check.Comments))
}

func (h *Handler) AddComment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	authorID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	var req model.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	comment, err := h.service.AddComment(c.Request.Context(), id, authorID, req.Text)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(comment))
}

func (h *Handler) SubmitRevision(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	submitterID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	var req model.SubmitRevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	check, err := h.service.SubmitRevision(c.Request.Context(), id, submitterID, req.Changes)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(check))
}

func (h *Handler) ListReviewers(c *gin.Context) {
	reviewers, err := h.service.ListReviewers(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(reviewers))
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid id"))
		return uuid.Nil, false
	}
	return id, true
}
