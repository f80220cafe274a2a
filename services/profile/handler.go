package profile

import (
	"net/http"

	"wavesight-core/pkg/authz"
	"wavesight-core/pkg/errutil"
	"wavesight-core/pkg/httpapi"
	"wavesight-core/pkg/middleware"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func registerRoutes(v1 httpapi.V1, h *Handler, enforcer *casbin.Enforcer) {
	users := v1.Group("/users/:id")
	users.GET("/tier", middleware.SelfOrPrivileged("id", authz.RoleModerator, authz.RoleAdmin), h.GetTier)
	users.GET("/profile", middleware.SelfOrPrivileged("id", authz.RoleModerator, authz.RoleAdmin), h.GetProfile)
	users.PUT("/restriction", middleware.Authorize(enforcer), h.SetRestriction)
}

func (h *Handler) GetTier(c *gin.Context) {
	report, err := h.svc.ComputeTier(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) GetProfile(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) SetRestriction(c *gin.Context) {
	var req RestrictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	p, err := h.svc.SetRestricted(c.Request.Context(), c.Param("id"), *req.Restricted)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, p)
}
