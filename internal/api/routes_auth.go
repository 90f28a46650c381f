package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sessiond/internal/app"
	iauth "github.com/charlesng35/sessiond/internal/auth"
	"github.com/charlesng35/sessiond/internal/handlers"
	"github.com/charlesng35/sessiond/internal/middleware"
	"github.com/charlesng35/sessiond/internal/ratelimit"
)

type authRouteDeps struct {
	Handler *handlers.AuthHandler
	Tokens  *iauth.JWTService
	Limiter ratelimit.Store
	Limits  app.RateLimitSettings
}

func registerAuthRoutes(engine *gin.Engine, deps authRouteDeps) {
	limit := func(scope string) gin.HandlerFunc {
		rule := deps.Limits.Rule(scope)
		return middleware.RateLimit(deps.Limiter, scope, rule.Max, rule.Window)
	}

	auth := engine.Group("/auth")
	{
		// Failed logins are limited per address inside the credential check.
		auth.POST("/login", deps.Handler.Login)
		auth.POST("/refresh-token", deps.Handler.RefreshToken)
		auth.POST("/logout", deps.Handler.Logout)
		auth.POST("/registration", limit(app.ScopeRegistration), deps.Handler.Registration)
		auth.POST("/registration-confirmation", limit(app.ScopeRegistrationConfirmation), deps.Handler.RegistrationConfirmation)
		auth.POST("/registration-email-resending", limit(app.ScopeEmailResending), deps.Handler.RegistrationEmailResending)
		auth.POST("/password-recovery", limit(app.ScopePasswordRecovery), deps.Handler.PasswordRecovery)
		auth.POST("/new-password", limit(app.ScopeNewPassword), deps.Handler.NewPassword)
		auth.GET("/me", middleware.Auth(deps.Tokens), deps.Handler.Me)
	}
}

type securityRouteDeps struct {
	Handler  *handlers.DevicesHandler
	Tokens   *iauth.JWTService
	Verifier middleware.RefreshVerifier
}

func registerSecurityRoutes(engine *gin.Engine, deps securityRouteDeps) {
	devices := engine.Group("/security/devices")
	devices.Use(middleware.HybridAuth(deps.Tokens, deps.Verifier))
	{
		devices.GET("", deps.Handler.List)
		devices.DELETE("", deps.Handler.DeleteOthers)
		devices.DELETE("/:deviceId", deps.Handler.Delete)
	}
}
