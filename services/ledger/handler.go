package ledger

import (
	"net/http"

	"wavesight-core/pkg/authz"
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
	users := v1.Group("/users/:id", middleware.SelfOrPrivileged("id", authz.RoleModerator, authz.RoleAdmin))
	users.GET("/balance", h.GetBalance)
	users.GET("/ledger", h.ListEntries)
	users.GET("/ledger/verify", h.VerifyEntries)
	users.POST("/payouts", h.CreatePayout)
}

func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.svc.Balance(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *Handler) ListEntries(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	entries, info, err := h.svc.List(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries, "page_info": info})
}

func (h *Handler) VerifyEntries(c *gin.Context) {
	res, err := h.svc.VerifyEntries(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CreatePayout(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c.Request.Context())
	if id.UserID != c.Param("id") {
		c.Error(errutil.Forbidden("payouts can only be requested by the account owner", nil))
		return
	}

	payout, err := h.svc.Payout(c.Request.Context(), id.UserID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, payout)
}
