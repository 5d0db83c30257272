package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mcofie/gatepass-settlement/internal/service"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	"github.com/mcofie/gatepass-settlement/pkg/middleware"
	"github.com/mcofie/gatepass-settlement/pkg/response"
	"go.uber.org/zap"
)

// RequireSuperAdmin allows only users holding the super admin role. It must
// run after JWTAuth.
func RequireSuperAdmin(authz service.AuthorizationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := middleware.GetUserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("UNAUTHORIZED", "authentication required"))
			return
		}

		isAdmin, err := authz.IsSuperAdmin(c.Request.Context(), id)
		if err != nil {
			logger.Get().ErrorContext(c.Request.Context(), "role lookup failed", zap.String("user_id", id), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, response.ErrorBody("SERVICE_UNAVAILABLE", "authorization check failed"))
			return
		}
		if !isAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorBody("FORBIDDEN", "super admin role required"))
			return
		}
		c.Next()
	}
}
