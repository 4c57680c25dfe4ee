package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/kube-rca/authcore/internal/model"
	"github.com/kube-rca/authcore/internal/token"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Codec          *token.Codec
	Auth           *AuthHandler
	OAuth          *OAuthHandler
	AllowedOrigins []string
	AllowCreds     bool
	LoginPerMinute int
	LoginBurst     int
	Log            zerolog.Logger
}

// NewRouter wires every route. /auth/reissue sits outside AuthMiddleware
// since it is called with an expired access token.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Log), CORSMiddleware(cfg.AllowedOrigins, cfg.AllowCreds))

	router.GET("/ping", Ping)
	router.GET("/", Root)

	public := router.Group("/auth")
	public.POST("/login", RateLimit(cfg.LoginPerMinute, cfg.LoginBurst), cfg.Auth.Login)
	public.POST("/signup", cfg.Auth.Signup)
	public.POST("/reissue", cfg.Auth.Reissue)

	authed := router.Group("/", AuthMiddleware(cfg.Codec, cfg.Log), RequireAuth())
	authed.POST("/auth/logout", cfg.Auth.Logout)
	authed.GET("/auth/me", cfg.Auth.Me)
	authed.DELETE("/auth/me", cfg.Auth.DeleteMe)
	authed.GET("/admin/ping", RequireRole(model.RoleAdmin), AdminPing)

	if cfg.OAuth != nil {
		router.GET("/oauth2/authorization/:provider", cfg.OAuth.Authorize)
		router.GET("/login/oauth2/code/:provider", cfg.OAuth.Callback)
	}

	return router
}
