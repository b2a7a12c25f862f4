// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"glider-device-service/internal/config"
	"glider-device-service/internal/handler"
	"glider-device-service/internal/middleware"
	"glider-device-service/internal/service"
	"glider-device-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config           *config.Config
	logger           *zap.Logger
	db               handler.Pinger
	eventBus         *handler.EventBus
	deviceService    *service.DeviceService
	operationService *service.OperationService
	discoveryService *service.DiscoveryService

	websocket *handler.WebSocketHandler
}

// NewRouter creates a router; db may be nil when running without a database
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db handler.Pinger,
	eventBus *handler.EventBus,
	deviceService *service.DeviceService,
	operationService *service.OperationService,
	discoveryService *service.DiscoveryService,
) *Router {
	return &Router{
		config:           config,
		logger:           logger,
		db:               db,
		eventBus:         eventBus,
		deviceService:    deviceService,
		operationService: operationService,
		discoveryService: discoveryService,
	}
}

// SetupRouter creates the gin engine with middleware and every route
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if !r.config.IsDebugEnabled() {
		gin.SetMode(gin.TestMode)
	}

	router := gin.New()
	r.addMiddleware(router)
	r.addRoutes(router)
	return router
}

// WebSocket returns the websocket handler once SetupRouter has run
func (r *Router) WebSocket() *handler.WebSocketHandler {
	return r.websocket
}

func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(utils.NewServiceLogger(r.logger, "http-server")))
	router.Use(middleware.CORSMiddleware(&r.config.Server))
}

func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.deviceService, r.config, r.logger)
	deviceHandler := handler.NewDeviceHandler(r.deviceService, r.logger)
	operationHandler := handler.NewOperationHandler(r.operationService, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.discoveryService, r.logger)
	r.websocket = handler.NewWebSocketHandler(r.eventBus, r.deviceService, r.logger)

	healthHandler.RegisterRoutes(router)

	apiV1 := router.Group("/api/v1")
	deviceHandler.RegisterRoutes(apiV1)
	operationHandler.RegisterRoutes(apiV1)
	discoveryHandler.RegisterRoutes(apiV1)

	r.websocket.RegisterRoutes(router.Group("/ws"))

	r.logger.Info("Routes configured", zap.Int("routes", len(router.Routes())))
}
