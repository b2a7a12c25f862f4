// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventDeviceConnected    EventType = "DEVICE_CONNECTED"
	EventDeviceDisconnected EventType = "DEVICE_DISCONNECTED"
	EventDeviceError        EventType = "DEVICE_ERROR"
	EventLinkTimeout        EventType = "LINK_TIMEOUT"
	EventOperationStarted   EventType = "OPERATION_STARTED"
	EventOperationProgress  EventType = "OPERATION_PROGRESS"
	EventOperationCompleted EventType = "OPERATION_COMPLETED"
	EventOperationFailed    EventType = "OPERATION_FAILED"
	EventAircraftState      EventType = "AIRCRAFT_STATE"
	EventConfigUpdate       EventType = "CONFIG_UPDATE"
)

// DeviceEvent represents an event in the system
type DeviceEvent struct {
	ID          uuid.UUID  `json:"id"`
	EventType   EventType  `json:"event_type"`
	DeviceIndex int        `json:"device_index"`
	Data        JSONObject `json:"data"`
	Timestamp   time.Time  `json:"timestamp"`
	Source      string     `json:"source"`
	Severity    string     `json:"severity"` // INFO, WARNING, ERROR
}

// NewDeviceEvent creates an event stamped with a fresh id and the current time
func NewDeviceEvent(eventType EventType, deviceIndex int, source string, data JSONObject) DeviceEvent {
	severity := "INFO"
	switch eventType {
	case EventDeviceError, EventOperationFailed:
		severity = "ERROR"
	case EventLinkTimeout, EventDeviceDisconnected:
		severity = "WARNING"
	}

	return DeviceEvent{
		ID:          uuid.New(),
		EventType:   eventType,
		DeviceIndex: deviceIndex,
		Data:        data,
		Timestamp:   time.Now(),
		Source:      source,
		Severity:    severity,
	}
}

// EventPublisher receives device events
type EventPublisher interface {
	Publish(event DeviceEvent)
}
