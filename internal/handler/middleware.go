package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/authcore/internal/model"
	"github.com/kube-rca/authcore/internal/token"
	"github.com/rs/zerolog"
)

const (
	authUserKey  = "auth_user"
	bearerPrefix = "Bearer "
)

// AuthMiddleware attaches the principal from a valid bearer token. Requests
// without a bearer token pass through unauthenticated and are left to
// RequireAuth. A token that is present but fails verification always ends
// the request with an error body.
func AuthMiddleware(codec *token.Codec, log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "auth_middleware").Logger()

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		raw, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		claims, err := codec.VerifyAccess(raw)
		if err != nil {
			log.Debug().Err(err).Str("path", c.FullPath()).Msg("rejected bearer token")
			writeError(c, err)
			return
		}

		c.Set(authUserKey, &model.AuthUser{Email: claims.Subject, Role: claims.Role})
		c.Next()
	}
}

// bearerToken extracts the token after the "Bearer " scheme. A missing
// header, another scheme or an empty token report false.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	return raw, raw != ""
}

func GetAuthUser(c *gin.Context) *model.AuthUser {
	if value, ok := c.Get(authUserKey); ok {
		if user, ok := value.(*model.AuthUser); ok {
			return user
		}
	}
	return nil
}

// RequireAuth rejects requests AuthMiddleware left unauthenticated.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetAuthUser(c) == nil {
			writeError(c, errUnauthorized)
			return
		}
		c.Next()
	}
}

// RequireRole admits only principals whose token carries one of roles.
// The role comes from the signed claims, not from the store.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	allowed := make(map[model.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		user := GetAuthUser(c)
		if user == nil {
			writeError(c, errUnauthorized)
			return
		}
		if _, ok := allowed[user.Role]; !ok {
			writeError(c, errForbidden)
			return
		}
		c.Next()
	}
}

func CORSMiddleware(allowedOrigins []string, allowCredentials bool) gin.HandlerFunc {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		originMap[trimmed] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := originMap[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				if allowCredentials {
					c.Header("Access-Control-Allow-Credentials", "true")
				}
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
				c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
