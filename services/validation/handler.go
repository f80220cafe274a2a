package validation

import (
	"net/http"

	"wavesight-core/pkg/db/pagination"
	"wavesight-core/pkg/errutil"
	"wavesight-core/pkg/httpapi"
	"wavesight-core/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func registerRoutes(v1 httpapi.V1, h *Handler) {
	v1.GET("/trends", h.Queue)
	v1.POST("/trends/:id/votes", h.CastVote)
	v1.GET("/trends/:id/votes", h.ListVotes)
}

func (h *Handler) Queue(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	id, _ := middleware.IdentityFrom(c.Request.Context())
	trends, info, err := h.svc.Queue(c.Request.Context(), id.UserID, page)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": trends, "page_info": info})
}

func (h *Handler) CastVote(c *gin.Context) {
	var req CastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	id, _ := middleware.IdentityFrom(c.Request.Context())
	req.TrendID = c.Param("id")
	req.ValidatorID = id.UserID

	res, err := h.svc.CastVote(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListVotes(c *gin.Context) {
	votes, err := h.svc.ListVotes(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": votes})
}
