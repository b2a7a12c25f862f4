// internal/handler/device_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"glider-device-service/internal/model"
	"glider-device-service/internal/service"
	"glider-device-service/internal/utils"
)

// DeviceHandler serves the device slots, their settings and the merged
// aircraft state
type DeviceHandler struct {
	deviceService *service.DeviceService
	logger        *utils.ServiceLogger
}

func NewDeviceHandler(deviceService *service.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
		logger:        utils.NewServiceLogger(logger, "device-handler"),
	}
}

func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.GET("", h.ListDevices)
		devices.POST("/restart", h.RestartDevices)

		slot := devices.Group("/:index")
		{
			slot.GET("", h.GetDevice)
			slot.PUT("/config", h.UpdateDeviceConfig)
			slot.POST("/reopen", h.ReopenDevice)
			slot.POST("/close", h.CloseDevice)
			slot.GET("/state", h.GetDeviceState)
			slot.POST("/sensors", h.FeedSensors)
		}
	}

	router.GET("/drivers", h.ListDrivers)
	router.PUT("/settings", h.PutSettings)
	router.GET("/aircraft", h.GetAircraftState)
	router.PUT("/aircraft/derived", h.SetDerived)

	vega := router.Group("/vega/settings")
	{
		vega.GET("/:name", h.GetVegaSetting)
		vega.PUT("/:name", h.PutVegaSetting)
	}
}

func (h *DeviceHandler) ListDevices(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Devices retrieved", h.deviceService.Statuses())
}

func (h *DeviceHandler) GetDevice(c *gin.Context) {
	index, ok := deviceIndex(c)
	if !ok {
		return
	}

	status, err := h.deviceService.Status(index)
	if err != nil {
		respondError(c, "Device not found", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device retrieved", status)
}

// UpdateDeviceConfig applies and stores a slot configuration. A config
// that was stored but failed to open is reported with 202.
func (h *DeviceHandler) UpdateDeviceConfig(c *gin.Context) {
	index, ok := deviceIndex(c)
	if !ok {
		return
	}

	var cfg model.DeviceConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status, applied, err := h.deviceService.UpdateConfig(c.Request.Context(), index, cfg)
	if err != nil {
		if applied {
			h.logger.Warn("Device configured but not opened", zap.Int("device_index", index), zap.Error(err))
			utils.SuccessResponse(c, http.StatusAccepted, "Configuration stored, device not opened", status)
			return
		}
		h.logger.Warn("Device configuration rejected", zap.Int("device_index", index), zap.Error(err))
		respondError(c, "Failed to update device configuration", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device configuration updated", status)
}

func (h *DeviceHandler) ReopenDevice(c *gin.Context) {
	index, ok := deviceIndex(c)
	if !ok {
		return
	}

	if err := h.deviceService.Reopen(c.Request.Context(), index); err != nil {
		respondError(c, "Failed to reopen device", err)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Device reopening", nil)
}

func (h *DeviceHandler) CloseDevice(c *gin.Context) {
	index, ok := deviceIndex(c)
	if !ok {
		return
	}

	if err := h.deviceService.Close(index); err != nil {
		respondError(c, "Failed to close device", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device closed", nil)
}

func (h *DeviceHandler) RestartDevices(c *gin.Context) {
	if err := h.deviceService.RestartAll(c.Request.Context()); err != nil {
		respondError(c, "Failed to restart devices", err)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Devices restarting", h.deviceService.Statuses())
}

func (h *DeviceHandler) GetDeviceState(c *gin.Context) {
	index, ok := deviceIndex(c)
	if !ok {
		return
	}

	state, err := h.deviceService.DeviceState(index)
	if err != nil {
		respondError(c, "Device not found", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device state retrieved", state)
}

func (h *DeviceHandler) FeedSensors(c *gin.Context) {
	index, ok := deviceIndex(c)
	if !ok {
		return
	}

	var reading service.InternalReading
	if err := c.ShouldBindJSON(&reading); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.deviceService.FeedInternal(index, &reading); err != nil {
		respondError(c, "Failed to feed sensor reading", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DeviceHandler) ListDrivers(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Drivers retrieved", h.deviceService.Drivers())
}

// PutSettings sends settings to every device. Devices that failed are
// listed in the error details.
func (h *DeviceHandler) PutSettings(c *gin.Context) {
	var req service.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.deviceService.PutSettings(c.Request.Context(), &req); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		utils.ErrorResponse(c, status, "Failed to send settings", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Settings sent", nil)
}

func (h *DeviceHandler) GetAircraftState(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Aircraft state retrieved", h.deviceService.AircraftState())
}

func (h *DeviceHandler) SetDerived(c *gin.Context) {
	var derived model.DerivedInfo
	if err := c.ShouldBindJSON(&derived); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.deviceService.SetDerived(derived)
	c.Status(http.StatusNoContent)
}

func (h *DeviceHandler) GetVegaSetting(c *gin.Context) {
	name := c.Param("name")
	value, known, err := h.deviceService.VegaSettingValue(name)
	if err != nil {
		respondError(c, "Failed to read Vega setting", err)
		return
	}
	if !known {
		utils.SuccessResponse(c, http.StatusAccepted, "Setting requested from the Vega", gin.H{"name": name})
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Vega setting retrieved", gin.H{"name": name, "value": value})
}

func (h *DeviceHandler) PutVegaSetting(c *gin.Context) {
	var req struct {
		Value *int `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	name := c.Param("name")
	index, err := h.deviceService.VegaSetting(name, *req.Value)
	if err != nil {
		respondError(c, "Failed to send Vega setting", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Vega setting sent", gin.H{"name": name, "value": *req.Value, "device_index": index})
}
