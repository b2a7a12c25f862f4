// internal/handler/discovery_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"glider-device-service/internal/service"
	"glider-device-service/internal/utils"
)

// DiscoveryHandler lists the ports instruments may be connected to
type DiscoveryHandler struct {
	discoveryService *service.DiscoveryService
	logger           *utils.ServiceLogger
}

func NewDiscoveryHandler(discoveryService *service.DiscoveryService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
		logger:           utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	discovery := router.Group("/discovery")
	{
		discovery.GET("/scanners", h.ListScanners)
		discovery.POST("/scan", h.Scan)
		discovery.POST("/scan/:type", h.Scan)
	}
}

func (h *DiscoveryHandler) ListScanners(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Scanners retrieved", gin.H{
		"scanners": h.discoveryService.AvailableScanners(),
	})
}

func (h *DiscoveryHandler) Scan(c *gin.Context) {
	candidates, err := h.discoveryService.Scan(c.Request.Context(), c.Param("type"))
	if err != nil {
		h.logger.Warn("Port scan failed", zap.String("type", c.Param("type")), zap.Error(err))
		utils.ErrorResponse(c, http.StatusBadRequest, "Port scan failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Ports discovered", gin.H{
		"ports": candidates,
		"count": len(candidates),
	})
}
