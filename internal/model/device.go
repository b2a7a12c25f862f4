// internal/model/device.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// PortType represents how a device slot reaches its instrument
type PortType string

const (
	PortTypeDisabled    PortType = "DISABLED"
	PortTypeSerial      PortType = "SERIAL"
	PortTypeRFCOMM      PortType = "RFCOMM"
	PortTypeIOIOUART    PortType = "IOIOUART"
	PortTypeAuto        PortType = "AUTO"
	PortTypeInternal    PortType = "INTERNAL"
	PortTypeTCPListener PortType = "TCP_LISTENER"
)

// ParsePortType converts a configuration string to a PortType
func ParsePortType(s string) (PortType, error) {
	switch t := PortType(strings.ToUpper(strings.TrimSpace(s))); t {
	case PortTypeDisabled, PortTypeSerial, PortTypeRFCOMM, PortTypeIOIOUART,
		PortTypeAuto, PortTypeInternal, PortTypeTCPListener:
		return t, nil
	case "":
		return PortTypeDisabled, nil
	default:
		return PortTypeDisabled, fmt.Errorf("unknown port type: %s", s)
	}
}

// UsesDriver reports whether the port type needs a driver name
func (t PortType) UsesDriver() bool {
	switch t {
	case PortTypeSerial, PortTypeRFCOMM, PortTypeIOIOUART, PortTypeAuto, PortTypeTCPListener:
		return true
	}
	return false
}

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// DeviceConfig describes one device slot
type DeviceConfig struct {
	PortType       PortType `json:"port_type" mapstructure:"port_type"`
	Path           string   `json:"path,omitempty" mapstructure:"path"`
	BluetoothMAC   string   `json:"bluetooth_mac,omitempty" mapstructure:"bluetooth_mac"`
	IOIOUARTID     int      `json:"ioio_uart_id,omitempty" mapstructure:"ioio_uart_id"`
	TCPPort        int      `json:"tcp_port,omitempty" mapstructure:"tcp_port"`
	BaudRate       uint     `json:"baud_rate,omitempty" mapstructure:"baud_rate"`
	BulkBaudRate   uint     `json:"bulk_baud_rate,omitempty" mapstructure:"bulk_baud_rate"`
	DriverName     string   `json:"driver,omitempty" mapstructure:"driver"`
	IgnoreChecksum bool     `json:"ignore_checksum" mapstructure:"ignore_checksum"`
	K6Bt           bool     `json:"k6bt" mapstructure:"k6bt"`
}

// IsConfigured reports whether the slot has a port type other than disabled
func (c DeviceConfig) IsConfigured() bool {
	return c.PortType != "" && c.PortType != PortTypeDisabled
}

// IsAvailable reports whether the port type can be opened on this host
func (c DeviceConfig) IsAvailable() bool {
	switch c.PortType {
	case PortTypeDisabled, "":
		return false
	case PortTypeIOIOUART:
		// IOIO boards only exist on the Android build
		return false
	case PortTypeRFCOMM:
		return c.Path != ""
	}
	return true
}

// Clear resets the slot to disabled
func (c *DeviceConfig) Clear() {
	*c = DeviceConfig{PortType: PortTypeDisabled}
}

// Overlaps reports whether two configs claim the same physical resource
func (c DeviceConfig) Overlaps(other DeviceConfig) bool {
	switch c.PortType {
	case PortTypeSerial:
		return other.PortType == PortTypeSerial && c.Path == other.Path
	case PortTypeRFCOMM:
		return other.PortType == PortTypeRFCOMM &&
			strings.EqualFold(c.BluetoothMAC, other.BluetoothMAC)
	case PortTypeIOIOUART:
		return other.PortType == PortTypeIOIOUART && c.IOIOUARTID == other.IOIOUARTID
	case PortTypeTCPListener:
		return other.PortType == PortTypeTCPListener && c.TCPPort == other.TCPPort
	default:
		return c.PortType == other.PortType
	}
}

// EffectiveBulkBaudRate returns the baud rate used for bulk transfers
func (c DeviceConfig) EffectiveBulkBaudRate() uint {
	if c.BulkBaudRate != 0 {
		return c.BulkBaudRate
	}
	return c.BaudRate
}

// Validate checks the fields required by the port type
func (c DeviceConfig) Validate() error {
	if _, err := ParsePortType(string(c.PortType)); err != nil {
		return err
	}

	switch c.PortType {
	case PortTypeSerial:
		if c.Path == "" {
			return fmt.Errorf("serial port requires a path")
		}
	case PortTypeRFCOMM:
		if c.BluetoothMAC == "" {
			return fmt.Errorf("rfcomm port requires a bluetooth mac")
		}
	case PortTypeTCPListener:
		if c.TCPPort < 1 || c.TCPPort > 32767 {
			return fmt.Errorf("tcp port must be between 1 and 32767, got %d", c.TCPPort)
		}
	}

	if c.PortType.UsesDriver() && c.DriverName == "" {
		return fmt.Errorf("port type %s requires a driver", c.PortType)
	}

	return nil
}

// String returns a short human readable description of the port
func (c DeviceConfig) String() string {
	switch c.PortType {
	case PortTypeSerial:
		return c.Path
	case PortTypeRFCOMM:
		return "Bluetooth " + c.BluetoothMAC
	case PortTypeIOIOUART:
		return fmt.Sprintf("IOIO UART %d", c.IOIOUARTID)
	case PortTypeTCPListener:
		return fmt.Sprintf("TCP port %d", c.TCPPort)
	case PortTypeInternal:
		return "Built-in GPS & sensors"
	case PortTypeAuto:
		return "GPS Intermediate Driver"
	default:
		return "Disabled"
	}
}
