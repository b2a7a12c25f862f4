// internal/driver/generic/generic.go
package generic

import (
	"go.uber.org/zap"

	"glider-device-service/internal/model"
	"glider-device-service/internal/port"
	"glider-device-service/pkg/driver"
)

// Device is a plain NMEA source; everything it sends is handled by the
// standard sentence parser.
type Device struct {
	driver.AbstractDevice
}

// New creates a generic NMEA device
func New(p port.Port, cfg model.DeviceConfig, logger *zap.Logger) driver.Device {
	return &Device{}
}

// OutputDevice receives the NMEA forwarded from the other devices and
// ignores whatever it sends back.
type OutputDevice struct {
	driver.AbstractDevice
}

// NewOutput creates an NMEA output device
func NewOutput(p port.Port, cfg model.DeviceConfig, logger *zap.Logger) driver.Device {
	return &OutputDevice{}
}

func (d *OutputDevice) ParseNMEA(line string, info *model.NMEAInfo) bool {
	return true
}
