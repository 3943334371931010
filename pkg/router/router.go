package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mentorchat/backend/internal/api"
	"mentorchat/backend/internal/room"
	"mentorchat/backend/pkg/di"
	"mentorchat/backend/pkg/errors"
	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/pkg/middleware"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)

	// Configure Gin mode based on environment
	if container.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Use the logger middleware first to capture all requests
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(middleware.CORS(container.Config.Security.AllowedOrigins))

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
	}
}

// SetupRoutes registers all application routes. metrics may be nil when
// metrics are disabled.
func (r *Router) SetupRoutes(metrics http.Handler) {
	cfg := r.Container.Config

	healthHandler := r.Container.Health.GinHandler()
	r.Engine.GET("/health", healthHandler)
	r.Engine.GET("/api/health", healthHandler)
	if metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(metrics))
	}

	// Room events arrive over the socket; only the upgrade goes through here
	r.Engine.GET("/ws", room.ServeWs(r.Container.Hub, room.Upgrader(cfg.Security.AllowedOrigins)))

	v1 := r.Engine.Group("/api/v1")
	v1.Use(
		middleware.BodyLimit(cfg.Security.MaxBodySize),
		r.Container.RateLimiter.Middleware(),
	)
	r.addOpenAPIValidation(v1, cfg.OpenAPISchemaPath)

	chatbot := api.NewChatbotHandler(r.Container.Orchestrator, r.Container.Tickets, cfg.Tickets.Required, r.Logger)
	chatbot.RegisterRoutesV1(v1)

	rooms := api.NewRoomHandler(r.Container.Hub)
	rooms.RegisterRoutesV1(v1)
}
