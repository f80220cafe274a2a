package middleware

import (
	"context"
	"net/http"
	"strings"

	"wavesight-core/pkg/authz"
	"wavesight-core/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type identityKey struct{}

type Identity struct {
	UserID string
	Role   string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Authenticate trusts the user id set by the upstream auth proxy.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			c.Error(errutil.Unauthorized("missing "+HeaderUserID+" header", nil))
			c.Abort()
			return
		}

		role := strings.TrimSpace(c.GetHeader(HeaderUserRole))
		if role == "" {
			role = authz.RoleUser
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), Identity{UserID: userID, Role: role}))
		c.Next()
	}
}

// Authorize checks the caller role against the casbin policy for the request path and method.
func Authorize(e *casbin.Enforcer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := IdentityFrom(c.Request.Context())

		ok, err := e.Enforce(id.Role, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			zap.L().Error("authz enforce failed", zap.Error(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if !ok {
			c.Error(errutil.Forbidden("role is not allowed to perform this action", nil))
			c.Abort()
			return
		}

		c.Next()
	}
}

// SelfOrPrivileged lets a user reach only their own :param resource unless their role is listed.
func SelfOrPrivileged(param string, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := IdentityFrom(c.Request.Context())
		if id.UserID == c.Param(param) {
			c.Next()
			return
		}
		for _, r := range roles {
			if id.Role == r {
				c.Next()
				return
			}
		}
		c.Error(errutil.Forbidden("cannot access another user's resources", nil))
		c.Abort()
	}
}
