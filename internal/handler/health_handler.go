// internal/handler/health_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"glider-device-service/internal/config"
	"glider-device-service/internal/service"
	"glider-device-service/internal/utils"
)

// Pinger is a dependency health checks can probe
type Pinger interface {
	Health(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	db            Pinger
	deviceService *service.DeviceService
	config        *config.Config
	started       time.Time
	logger        *utils.ServiceLogger
}

// NewHealthHandler creates the handler; db may be nil when no database is
// configured
func NewHealthHandler(db Pinger, deviceService *service.DeviceService, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:            db,
		deviceService: deviceService,
		config:        config,
		started:       time.Now(),
		logger:        utils.NewServiceLogger(logger, "health-handler"),
	}
}

func (h *HealthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

func (h *HealthHandler) checkDatabase(ctx context.Context) CheckResult {
	if h.db == nil {
		return CheckResult{Status: "healthy", Message: "In-memory storage"}
	}
	if err := h.db.Health(ctx); err != nil {
		return CheckResult{Status: "unhealthy", Message: err.Error()}
	}
	return CheckResult{Status: "healthy", Message: "Database connection OK"}
}

// HealthCheck reports the storage backend and a summary of the device slots
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	database := h.checkDatabase(c.Request.Context())
	health.Checks["database"] = database
	if database.Status != "healthy" {
		health.Status = "unhealthy"
	}

	states := map[string]interface{}{}
	alive := 0
	for _, status := range h.deviceService.Statuses() {
		if n, ok := states[status.State].(int); ok {
			states[status.State] = n + 1
		} else {
			states[status.State] = 1
		}
		if status.Alive {
			alive++
		}
	}
	states["alive"] = alive
	health.Checks["devices"] = CheckResult{Status: "healthy", Data: states}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, health)
}

func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if database := h.checkDatabase(c.Request.Context()); database.Status != "healthy" {
		h.logger.Warn("Readiness check failed", zap.String("reason", database.Message))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "database not available",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}
