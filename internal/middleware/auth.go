package middleware

import (
	"errors"
	"net/http"
	"strings"

	pkgAuth "arena-service/pkg/auth"
	"arena-service/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserIDKey  = "userID"
	ContextAdminIDKey = "adminID"
)

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := ExtractToken(c)
		if err != nil {
			abort(c, err.Error())
			return
		}

		claims, err := pkgAuth.ParseUserToken(token)
		if err != nil {
			abort(c, "invalid token")
			return
		}

		c.Set(ContextUserIDKey, claims.SubjectID)
		c.Next()
	}
}

func AdminAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := ExtractToken(c)
		if err != nil {
			abort(c, err.Error())
			return
		}

		claims, err := pkgAuth.ParseAdminToken(token)
		if err != nil {
			abort(c, "invalid token")
			return
		}

		c.Set(ContextAdminIDKey, claims.SubjectID)
		c.Next()
	}
}

// UserID is the authenticated subject set by AuthRequired.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// ExtractToken reads a bearer token from the Authorization header, falling
// back to the token query parameter browsers use for websockets.
func ExtractToken(c *gin.Context) (string, error) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", errors.New("invalid authorization header")
		}
		if token := strings.TrimSpace(parts[1]); token != "" {
			return token, nil
		}
	}
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token, nil
	}
	return "", errors.New("missing authorization header")
}

func abort(c *gin.Context, msg string) {
	response.Error(c, http.StatusUnauthorized, msg)
	c.Abort()
}
