package trend

import (
	"net/http"

	"wavesight-core/pkg/errutil"
	"wavesight-core/pkg/httpapi"
	"wavesight-core/pkg/middleware"
	"wavesight-core/pkg/minio"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Handler struct {
	svc      *Service
	uploader *minio.Uploader
}

type HandlerParams struct {
	fx.In

	Service  *Service
	Uploader *minio.Uploader `optional:"true"`
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{svc: p.Service, uploader: p.Uploader}
}

type EvidenceUploadRequest struct {
	Filename string `json:"filename" binding:"required"`
}

func registerRoutes(v1 httpapi.V1, h *Handler) {
	v1.GET("/categories", h.ListCategories)
	v1.POST("/trends", h.Submit)
	v1.POST("/trends/evidence-uploads", h.PresignEvidence)
	v1.GET("/trends/:id", h.Get)
	v1.POST("/trends/:id/cancel", h.Cancel)
}

func (h *Handler) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": Categories()})
}

func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	id, _ := middleware.IdentityFrom(c.Request.Context())
	req.SpotterID = id.UserID
	req.IdempotencyKey = c.GetHeader(HeaderIdempotencyKey)

	trend, err := h.svc.Submit(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, trend)
}

func (h *Handler) Get(c *gin.Context) {
	trend, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, trend)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c.Request.Context())

	trend, err := h.svc.Cancel(c.Request.Context(), id.UserID, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, trend)
}

// PresignEvidence returns a signed URL the client uploads a screenshot or clip to before submitting.
func (h *Handler) PresignEvidence(c *gin.Context) {
	if h.uploader == nil {
		c.Error(errutil.NotImplemented("evidence uploads are not configured", nil))
		return
	}

	var req EvidenceUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	if _, ok := minio.ContentType(req.Filename); !ok {
		c.Error(validationError("filename", "must be an image or mp4 video"))
		return
	}

	id, _ := middleware.IdentityFrom(c.Request.Context())
	upload, err := h.uploader.PresignEvidence(c.Request.Context(), id.UserID, h.svc.node.Generate().String(), req.Filename)
	if err != nil {
		c.Error(errutil.BadGateway("failed to sign evidence upload", err))
		return
	}
	c.JSON(http.StatusCreated, upload)
}
