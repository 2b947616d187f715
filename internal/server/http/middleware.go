// Package http implements the Dispatcher API's transport: a gin-gonic
// router standing in for a gRPC/HTTP2 framed RPC service, since no
// protobuf toolchain can run in this environment. See router.go for the
// route-by-route mapping.
package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nikitavbv/sandbox/internal/auth"
	"github.com/nikitavbv/sandbox/internal/shared/apperr"
)

// contextUserIDKey and contextIsWorkerKey are the gin context keys the auth
// middleware populates for downstream handlers.
const (
	contextUserIDKey  = "dispatch.user_id"
	contextIsWorkerKey = "dispatch.is_worker"
)

// AuthMiddleware enforces the x-access-token precedence rule: an exact
// match against the shared worker secret authenticates the caller as a
// worker; otherwise the token is decoded as a user JWT.
func AuthMiddleware(tokens *auth.TokenManager, workerToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("x-access-token"))
		if raw == "" {
			_ = c.Error(apperr.Unauthenticated("missing x-access-token"))
			c.Abort()
			return
		}

		if workerToken != "" && raw == workerToken {
			c.Set(contextIsWorkerKey, true)
			c.Next()
			return
		}

		result, err := tokens.Decode(raw)
		if err != nil {
			_ = c.Error(apperr.TokenInvalid("wrong_token", err))
			c.Abort()
			return
		}
		if result.Expired {
			_ = c.Error(apperr.TokenExpired())
			c.Abort()
			return
		}

		c.Set(contextUserIDKey, result.Claims.Subject)
		c.Next()
	}
}

// OptionalAuthMiddleware applies the same x-access-token precedence as
// AuthMiddleware but lets an anonymous caller (no header at all) through
// as unauthenticated rather than aborting — for routes that accept a
// nullable user id, such as CreateTask and GetTask. A present-but-invalid
// or expired token is still rejected.
func OptionalAuthMiddleware(tokens *auth.TokenManager, workerToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("x-access-token"))
		if raw == "" {
			c.Next()
			return
		}

		if workerToken != "" && raw == workerToken {
			c.Set(contextIsWorkerKey, true)
			c.Next()
			return
		}

		result, err := tokens.Decode(raw)
		if err != nil {
			_ = c.Error(apperr.TokenInvalid("wrong_token", err))
			c.Abort()
			return
		}
		if result.Expired {
			_ = c.Error(apperr.TokenExpired())
			c.Abort()
			return
		}

		c.Set(contextUserIDKey, result.Claims.Subject)
		c.Next()
	}
}

// userIDFromContext returns the authenticated user id, if any.
func userIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(contextUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// ErrorMiddleware maps the last error attached to the gin context into the
// HTTP status/body the Dispatcher API promises.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := httpStatusForKind(apperr.KindOf(err))
		if !c.Writer.Written() {
			c.JSON(status, gin.H{"error": err.Error()})
		}
	}
}

func httpStatusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthenticated, apperr.KindTokenExpired, apperr.KindTokenInvalid:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
