// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// OperationType represents the type of operation
type OperationType string

const (
	OperationTypeDeclare        OperationType = "DECLARE"
	OperationTypeListFlights    OperationType = "LIST_FLIGHTS"
	OperationTypeDownloadFlight OperationType = "DOWNLOAD_FLIGHT"
	OperationTypeReopen         OperationType = "REOPEN"
)

// OperationStatus represents the status of an operation
type OperationStatus string

const (
	OperationStatusPending    OperationStatus = "PENDING"
	OperationStatusProcessing OperationStatus = "PROCESSING"
	OperationStatusSuccess    OperationStatus = "SUCCESS"
	OperationStatusFailed     OperationStatus = "FAILED"
	OperationStatusCancelled  OperationStatus = "CANCELLED"
)

// DeviceOperation represents a long running operation on a device slot
type DeviceOperation struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	DeviceIndex      int             `json:"device_index" db:"device_index"`
	OperationType    OperationType   `json:"operation_type" db:"operation_type"`
	OperationData    JSONObject      `json:"operation_data" db:"operation_data"`
	Status           OperationStatus `json:"status" db:"status"`
	ProgressRange    uint            `json:"progress_range" db:"progress_range"`
	ProgressPosition uint            `json:"progress_position" db:"progress_position"`
	Message          string          `json:"message" db:"message"`
	StartedAt        time.Time       `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at" db:"completed_at"`
	DurationMs       *int            `json:"duration_ms" db:"duration_ms"`
	ErrorMessage     *string         `json:"error_message" db:"error_message"`
	Result           JSONObject      `json:"result" db:"result"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// IsCompleted checks if operation is completed (success or failed)
func (op *DeviceOperation) IsCompleted() bool {
	return op.Status == OperationStatusSuccess ||
		op.Status == OperationStatusFailed ||
		op.Status == OperationStatusCancelled
}

// Progress returns the completed fraction in [0, 1]
func (op *DeviceOperation) Progress() float64 {
	if op.ProgressRange == 0 {
		return 0
	}
	if op.ProgressPosition >= op.ProgressRange {
		return 1
	}
	return float64(op.ProgressPosition) / float64(op.ProgressRange)
}

// Complete marks the operation finished with the given status
func (op *DeviceOperation) Complete(status OperationStatus, err error) {
	now := time.Now()
	duration := int(now.Sub(op.StartedAt).Milliseconds())
	op.Status = status
	op.CompletedAt = &now
	op.DurationMs = &duration
	if err != nil {
		msg := err.Error()
		op.ErrorMessage = &msg
	}
}

// DeclareRequest represents a task declaration request
type DeclareRequest struct {
	Declaration Declaration `json:"declaration" binding:"required"`
	Home        *Waypoint   `json:"home,omitempty"`
}

// DownloadFlightRequest represents a flight download request
type DownloadFlightRequest struct {
	Flight RecordedFlightInfo `json:"flight"`
}

// OperationFilter represents filters for operation queries
type OperationFilter struct {
	DeviceIndex   *int             `json:"device_index,omitempty"`
	OperationType *OperationType   `json:"operation_type,omitempty"`
	Status        *OperationStatus `json:"status,omitempty"`
	StartDate     *time.Time       `json:"start_date,omitempty"`
	EndDate       *time.Time       `json:"end_date,omitempty"`
	Limit         int              `json:"limit,omitempty"`
	Offset        int              `json:"offset,omitempty"`
}
