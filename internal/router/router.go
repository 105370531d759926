// Package router wires handlers, middleware and routes onto the Echo
// instance.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/maquiflow/fleet-portal/internal/auth"
	"github.com/maquiflow/fleet-portal/internal/cache"
	"github.com/maquiflow/fleet-portal/internal/config"
	"github.com/maquiflow/fleet-portal/internal/handler"
	"github.com/maquiflow/fleet-portal/internal/middleware"
)

// Deps carries everything the routes need.
type Deps struct {
	Auth         *handler.AuthHandler
	Tenants      *handler.TenantHandler
	Users        *handler.UserHandler
	MachineTypes *handler.MachineTypeHandler
	Machines     *handler.MachineHandler
	Upload       *handler.UploadHandler
	Health       *handler.HealthHandler

	Cache     *cache.ResponseCache
	RateLimit config.RateLimitConfig
	Redis     *redis.Client
}

// RegisterRoutes registers every route and the middleware stack.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.Use(echomw.Recover())
	e.Use(middleware.Metrics())
	e.Use(middleware.SessionAuth())
	e.Use(middleware.RateLimit(d.RateLimit, d.Redis))

	// Public surface.
	e.POST("/login", d.Auth.Login)
	e.POST("/logout", d.Auth.Logout)
	e.GET("/healthz", d.Health.Healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/me", d.Auth.Me, middleware.RequireSession())

	// Admin surface. Handlers branch on role themselves because the visible
	// result differs per role; this family answers 401 to outsiders.
	admin := e.Group("/admin", middleware.RequireSession())
	admin.GET("/tenants", d.Tenants.List)
	admin.POST("/tenants", d.Tenants.Toggle)
	admin.DELETE("/tenants", d.Tenants.Delete)
	admin.GET("/users", d.Users.List)
	admin.POST("/users", d.Users.Create)
	admin.PUT("/users", d.Users.Update)
	admin.DELETE("/users", d.Users.Delete)

	// Inventory surface: tenant admins only, rejections are 403.
	inventory := e.Group("", middleware.RequireOperation(auth.OpManageInventory, http.StatusForbidden))
	inventory.GET("/machine-types", d.MachineTypes.List, middleware.CacheResponse(d.Cache))
	inventory.POST("/machine-types", d.MachineTypes.Create)
	inventory.PUT("/machine-types", d.MachineTypes.Update)
	inventory.DELETE("/machine-types", d.MachineTypes.Delete)
	inventory.GET("/machines", d.Machines.List, middleware.CacheResponse(d.Cache))
	inventory.POST("/machines", d.Machines.Create)
	inventory.PUT("/machines", d.Machines.Update)
	inventory.DELETE("/machines", d.Machines.Delete)

	// Upload keeps the 401-style rejection its clients expect.
	e.POST("/upload", d.Upload.Upload, middleware.RequireOperation(auth.OpUploadFile, http.StatusUnauthorized))
}
