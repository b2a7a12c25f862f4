// internal/handler/operation_handler.go
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"glider-device-service/internal/model"
	"glider-device-service/internal/service"
	"glider-device-service/internal/utils"
)

// OperationHandler starts and tracks declare and flight download operations
type OperationHandler struct {
	operationService *service.OperationService
	logger           *utils.ServiceLogger
}

func NewOperationHandler(operationService *service.OperationService, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{
		operationService: operationService,
		logger:           utils.NewServiceLogger(logger, "operation-handler"),
	}
}

func (h *OperationHandler) RegisterRoutes(router *gin.RouterGroup) {
	operations := router.Group("/operations")
	{
		operations.GET("", h.ListOperations)
		operations.GET("/:id", h.GetOperation)
		operations.POST("/:id/cancel", h.CancelOperation)
	}

	slot := router.Group("/devices/:index")
	{
		slot.POST("/declare", h.Declare)
		slot.POST("/flights", h.ListFlights)
		slot.POST("/flights/download", h.DownloadFlight)
	}
}

func (h *OperationHandler) started(c *gin.Context, op *model.DeviceOperation, err error) {
	if err != nil {
		h.logger.Warn("Operation not started", zap.Error(err))
		respondError(c, "Failed to start operation", err)
		return
	}
	c.Header("Location", "operations/"+op.ID.String())
	utils.SuccessResponse(c, http.StatusAccepted, "Operation started", op)
}

func (h *OperationHandler) Declare(c *gin.Context) {
	index, ok := deviceIndex(c)
	if !ok {
		return
	}

	var req model.DeclareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	op, err := h.operationService.Declare(c.Request.Context(), index, &req)
	h.started(c, op, err)
}

func (h *OperationHandler) ListFlights(c *gin.Context) {
	index, ok := deviceIndex(c)
	if !ok {
		return
	}

	op, err := h.operationService.ListFlights(c.Request.Context(), index)
	h.started(c, op, err)
}

func (h *OperationHandler) DownloadFlight(c *gin.Context) {
	index, ok := deviceIndex(c)
	if !ok {
		return
	}

	var req model.DownloadFlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	op, err := h.operationService.DownloadFlight(c.Request.Context(), index, &req)
	h.started(c, op, err)
}

func (h *OperationHandler) GetOperation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid operation ID", err)
		return
	}

	op, err := h.operationService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Operation not found", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Operation retrieved", op)
}

func (h *OperationHandler) ListOperations(c *gin.Context) {
	filter := &model.OperationFilter{Limit: 20}

	if v := c.Query("device_index"); v != "" {
		index, err := strconv.Atoi(v)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device_index", err)
			return
		}
		filter.DeviceIndex = &index
	}
	if v := c.Query("operation_type"); v != "" {
		opType := model.OperationType(v)
		filter.OperationType = &opType
	}
	if v := c.Query("status"); v != "" {
		status := model.OperationStatus(v)
		filter.Status = &status
	}
	if v := c.Query("start_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.StartDate = &t
		}
	}
	if v := c.Query("end_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.EndDate = &t
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	operations, total, err := h.operationService.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list operations", zap.Error(err))
		respondError(c, "Failed to list operations", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Operations retrieved", gin.H{
		"operations": operations,
		"total":      total,
		"limit":      filter.Limit,
		"offset":     filter.Offset,
	})
}

func (h *OperationHandler) CancelOperation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid operation ID", err)
		return
	}

	if err := h.operationService.Cancel(id); err != nil {
		respondError(c, "Failed to cancel operation", err)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Operation cancellation requested", nil)
}
