package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/sessiond/internal/app"
	iauth "github.com/charlesng35/sessiond/internal/auth"
	"github.com/charlesng35/sessiond/internal/auth/providers"
	"github.com/charlesng35/sessiond/internal/handlers"
	"github.com/charlesng35/sessiond/internal/middleware"
	"github.com/charlesng35/sessiond/internal/monitoring"
	"github.com/charlesng35/sessiond/internal/ratelimit"
)

// Dependencies are the services the HTTP surface is built from.
type Dependencies struct {
	Config   *app.Config
	DB       *gorm.DB
	Tokens   *iauth.JWTService
	Auth     *iauth.AuthService
	Sessions *iauth.SessionService
	Local    *providers.LocalProvider
	Users    handlers.UserReader
	Limiter  ratelimit.Store
	// Health is optional; when nil only the database is checked.
	Health *monitoring.Health
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return fmt.Errorf("config must be provided")
	case d.DB == nil:
		return fmt.Errorf("database handle must be provided")
	case d.Tokens == nil:
		return fmt.Errorf("jwt service must be provided")
	case d.Auth == nil:
		return fmt.Errorf("auth service must be provided")
	case d.Sessions == nil:
		return fmt.Errorf("session service must be provided")
	case d.Local == nil:
		return fmt.Errorf("local provider must be provided")
	case d.Users == nil:
		return fmt.Errorf("user reader must be provided")
	case d.Limiter == nil:
		return fmt.Errorf("rate limit store must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	health := deps.Health
	if health == nil {
		health = monitoring.NewHealth(0)
		health.Register("database", monitoring.DatabaseCheck(deps.DB))
	}
	registerHealthRoutes(r, deps.Config, health)

	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Local, deps.Users, handlers.CookieConfig{
		Secure: !deps.Config.Server.IsTesting(),
		MaxAge: deps.Auth.RefreshTokenTTL(),
	})
	registerAuthRoutes(r, authRouteDeps{
		Handler: authHandler,
		Tokens:  deps.Tokens,
		Limiter: deps.Limiter,
		Limits:  deps.Config.Auth.RateLimit,
	})

	registerSecurityRoutes(r, securityRouteDeps{
		Handler:  handlers.NewDevicesHandler(deps.Sessions),
		Tokens:   deps.Tokens,
		Verifier: deps.Auth,
	})

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
