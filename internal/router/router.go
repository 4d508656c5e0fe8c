package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/rolegate/api/handler"
)

type Middleware func(fasthttp.RequestHandler) fasthttp.RequestHandler

type Handlers struct {
	Auth    *apiHandler.AuthHandler
	Guard   *apiHandler.GuardHandler
	Page    *apiHandler.PageHandler
	Health  *apiHandler.HealthHandler
	Metrics fasthttp.RequestHandler
}

type Middlewares struct {
	// ExternalToken verifies provider tokens for the bridge route.
	ExternalToken Middleware
	// Session requires a live backend session.
	Session Middleware
	// Guard runs the authorization gate for dashboard pages.
	Guard Middleware
}

// New wires the routes. DashboardPaths are served by the page handler
// behind the guard, including any subpath.
func New(handlers Handlers, mw Middlewares, dashboardPaths ...string) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	if handlers.Metrics != nil {
		r.GET("/metrics", handlers.Metrics)
	}

	// Auth routes
	r.POST("/api/v1/auth/bridge", mw.ExternalToken(handlers.Auth.Bridge))
	r.POST("/api/v1/auth/refresh", handlers.Auth.Refresh)
	r.POST("/api/v1/auth/logout", handlers.Auth.Logout)
	r.GET("/api/v1/auth/role", mw.Session(handlers.Auth.Role))

	// Gate decisions for client-side routers
	r.GET("/api/v1/guard", handlers.Guard.Check)
	r.GET("/api/v1/guard/watch", handlers.Guard.Watch)

	// Guarded pages
	page := mw.Guard(handlers.Page.Dashboard)
	for _, path := range dashboardPaths {
		if path == "" {
			continue
		}
		r.GET(path, page)
		r.GET(path+"/{rest:*}", page)
	}

	return r
}
