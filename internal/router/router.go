package router // package router defines how HTTP routes are registered for the dev API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/league-client/internal/handler"
	"github.com/iliyamo/league-client/internal/middleware"
	"github.com/iliyamo/league-client/internal/permission"
)

// Deps groups what the routes need.
type Deps struct {
	Auth      *handler.AuthHandler
	Events    *handler.EventsHandler
	Ready     echo.HandlerFunc
	Revoked   middleware.RevocationChecker
	JWTSecret string
	Policy    permission.Policy
	// Throttle guards the sign-in endpoints; nil means unthrottled.
	Throttle echo.MiddlewareFunc
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready)
	}
}

// RegisterAuth registers the authentication routes.  Unauthenticated
// operations live under /v1/auth; logout and whoami require a valid token.
func RegisterAuth(e *echo.Echo, d Deps) {
	jwt := middleware.JWTAuth(d.JWTSecret, d.Revoked)

	g := e.Group("/v1/auth")
	if d.Throttle != nil {
		g.POST("/register", d.Auth.Register, d.Throttle)
		g.POST("/login", d.Auth.Login, d.Throttle)
	} else {
		g.POST("/register", d.Auth.Register)
		g.POST("/login", d.Auth.Login)
	}
	g.POST("/logout", d.Auth.Logout, jwt)

	auth := e.Group("/v1", jwt, middleware.RequireRole(permission.RoleAdmin, permission.RoleUser))
	auth.GET("/me", d.Auth.Me)
}

// RegisterEvents registers the admin-only event publishing route.
func RegisterEvents(e *echo.Echo, d Deps) {
	policy := d.Policy
	if policy == nil {
		policy = permission.Default()
	}
	g := e.Group("/v1/topics",
		middleware.JWTAuth(d.JWTSecret, d.Revoked),
		middleware.RequireCapability(policy, permission.CapAdmin),
	)
	g.POST("/:topic/events", d.Events.Publish)
}

// New builds the dev API server with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	RegisterRoutes(e, d.Ready)
	RegisterAuth(e, d)
	if d.Events != nil {
		RegisterEvents(e, d)
	}
	return e
}
