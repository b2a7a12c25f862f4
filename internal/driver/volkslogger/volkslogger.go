// internal/driver/volkslogger/volkslogger.go
package volkslogger

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"glider-device-service/internal/model"
	"glider-device-service/internal/operation"
	"glider-device-service/internal/port"
	"glider-device-service/pkg/driver"
)

const (
	connectTimeout = 10 * time.Second

	maxDirectorySize = 0x4000
	maxFlightSize    = 0x20000

	dirEntrySize = 16
)

// Device talks to a Garrecht Volkslogger over its bulk protocol
type Device struct {
	driver.AbstractDevice

	port         port.Port
	bulkBaudRate uint
	logger       *zap.Logger
}

// New creates a Volkslogger session on p
func New(p port.Port, cfg model.DeviceConfig, logger *zap.Logger) driver.Device {
	return &Device{
		port:         p,
		bulkBaudRate: cfg.EffectiveBulkBaudRate(),
		logger:       logger.With(zap.String("driver", "Volkslogger")),
	}
}

// EnableNMEA aborts whatever the logger is doing, which makes it resume
// NMEA output
func (d *Device) EnableNMEA(env operation.Env) error {
	return Reset(d.port, env, 10)
}

func (d *Device) ReadFlightList(env operation.Env) ([]model.RecordedFlightInfo, error) {
	env.SetText("Connecting to Volkslogger")
	if err := ConnectAndFlush(d.port, env, connectTimeout); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	env.SetText("Reading flight list")
	data, err := SendCommandReadBulk(d.port, env, CmdDirectory, maxDirectorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	flights := ParseDirectory(data)
	d.logger.Info("Flight list read", zap.Int("flights", len(flights)))
	return flights, nil
}

func (d *Device) DownloadFlight(flight model.RecordedFlightInfo, path string, env operation.Env) error {
	if flight.Index < 0 || flight.Index > 0xff {
		return fmt.Errorf("invalid flight index %d", flight.Index)
	}

	env.SetText("Connecting to Volkslogger")
	if err := ConnectAndFlush(d.port, env, connectTimeout); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	env.SetText("Downloading flight")
	data, err := SendCommandReadBulkAt(d.port, env, CmdGetFlight, byte(flight.Index), maxFlightSize, d.bulkBaudRate)
	if err != nil {
		return fmt.Errorf("failed to download flight %d: %w", flight.Index, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("flight %d is empty", flight.Index)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write flight: %w", err)
	}

	d.logger.Info("Flight downloaded",
		zap.Int("index", flight.Index),
		zap.Int("bytes", len(data)),
		zap.String("path", path),
	)
	return nil
}

// ParseDirectory decodes a flight directory of fixed records, each
//
//	'F' year-2000 month day start_h start_m start_s end_h end_m end_s
//
// padded to 16 bytes; a 0x00 or 0xff marker ends the directory.
//
// TODO: decode the logger's native tag/length directory stream. Real
// loggers do not send this layout, so flight lists read from hardware
// come back empty.
func ParseDirectory(data []byte) []model.RecordedFlightInfo {
	var flights []model.RecordedFlightInfo
	for i := 0; i+dirEntrySize <= len(data); i += dirEntrySize {
		entry := data[i : i+dirEntrySize]
		if entry[0] == 0x00 || entry[0] == 0xff {
			break
		}
		if entry[0] != 'F' {
			continue
		}

		date := time.Date(2000+int(entry[1]), time.Month(entry[2]), int(entry[3]), 0, 0, 0, 0, time.UTC)
		flights = append(flights, model.RecordedFlightInfo{
			Date:      date,
			StartTime: date.Add(clockTime(entry[4:7])),
			EndTime:   date.Add(clockTime(entry[7:10])),
			Index:     i / dirEntrySize,
		})
	}
	return flights
}

func clockTime(hms []byte) time.Duration {
	return time.Duration(hms[0])*time.Hour +
		time.Duration(hms[1])*time.Minute +
		time.Duration(hms[2])*time.Second
}
