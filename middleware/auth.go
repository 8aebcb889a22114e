package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/cppla/campusnews/services"
	"github.com/cppla/campusnews/utils"
)

// AuthRequired ensures the request carries a valid bearer token and stores
// the caller identity in the Gin context.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			utils.AbortWithError(ctx, http.StatusUnauthorized, services.CodeNoToken,
				"Authentication required. Please provide a valid token.")
			return
		}

		claims, err := utils.ParseToken(secret, strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				utils.AbortWithError(ctx, http.StatusUnauthorized, services.CodeTokenExpired,
					"Token has expired. Please login again.")
				return
			}
			utils.AbortWithError(ctx, http.StatusUnauthorized, services.CodeInvalidToken,
				"Invalid token. Please login again.")
			return
		}

		ctx.Set(utils.ContextCallerIDKey, claims.Subject)
		ctx.Set(utils.ContextRoleKey, claims.Role)
		ctx.Next()
	}
}

// Authorize admits only callers whose role is listed.
func Authorize(roles ...string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		caller, ok := CallerFrom(ctx)
		if !ok {
			utils.AbortWithError(ctx, http.StatusUnauthorized, services.CodeNoToken, "Authentication required")
			return
		}
		if !slices.Contains(roles, caller.Role) {
			utils.AbortWithError(ctx, http.StatusForbidden, services.CodeForbidden,
				"You do not have permission to perform this action")
			return
		}
		ctx.Next()
	}
}

// CallerFrom returns the identity stored by AuthRequired.
func CallerFrom(ctx *gin.Context) (services.Caller, bool) {
	id := ctx.GetString(utils.ContextCallerIDKey)
	if id == "" {
		return services.Caller{}, false
	}
	return services.Caller{ID: id, Role: ctx.GetString(utils.ContextRoleKey)}, true
}
