// internal/handler/errors.go
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"glider-device-service/internal/device"
	"glider-device-service/internal/repository"
	"glider-device-service/internal/service"
	"glider-device-service/internal/utils"
	driverapi "glider-device-service/pkg/driver"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, device.ErrNoSuchDevice),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrNoVega):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrNotInternal),
		errors.Is(err, driverapi.ErrNoSuchDriver):
		return http.StatusBadRequest
	case errors.Is(err, device.ErrOverlap),
		errors.Is(err, device.ErrOccupied),
		errors.Is(err, device.ErrNotOpen),
		errors.Is(err, service.ErrOperationNotRunning):
		return http.StatusConflict
	case errors.Is(err, driverapi.ErrNotSupported):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, message string, err error) {
	utils.ErrorResponse(c, statusFor(err), message, err)
}

// deviceIndex parses the :index path parameter
func deviceIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device index", err)
		return 0, false
	}
	return index, true
}
