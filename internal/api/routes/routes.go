package routes

import (
	"github.com/gin-gonic/gin"

	"gateway-service/internal/api/handlers"
	"gateway-service/internal/api/middleware"
	"gateway-service/internal/gateway"
)

type Router struct {
	engine       *gin.Engine
	wsHandler    *handlers.WSHandler
	adminHandler *handlers.AdminHandler
	authMW       *middleware.AuthMiddleware
}

func NewRouter(g *gateway.Gateway, jwtSecret string) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.LogAPI())

	return &Router{
		engine:       engine,
		wsHandler:    handlers.NewWSHandler(g),
		adminHandler: handlers.NewAdminHandler(g),
		authMW:       middleware.NewAuthMiddleware(jwtSecret),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.engine.Group("/api/v1")

	// WebSocket endpoint; credentials travel in the upgrade request.
	api.GET("/ws", r.wsHandler.HandleWebSocket)

	// Read-only dashboard views.
	api.GET("/channels", r.adminHandler.ListChannels)
	api.GET("/stats", r.authMW.RequireAuth(), r.adminHandler.Stats)
	api.GET("/events", r.authMW.RequireAuth(), r.adminHandler.RecentEvents)
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
