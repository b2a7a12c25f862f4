// internal/driver/cai302/cai302.go
package cai302

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"glider-device-service/internal/model"
	"glider-device-service/internal/nmea"
	"glider-device-service/internal/operation"
	"glider-device-service/internal/port"
	"glider-device-service/pkg/driver"
)

// ctrlC leaves the command mode of the CAI302 command interpreter
const ctrlC = 0x03

// Device talks to a Cambridge CAI302 flight computer
type Device struct {
	driver.AbstractDevice

	port   port.Port
	logger *zap.Logger
}

// New creates a CAI302 session on p
func New(p port.Port, cfg model.DeviceConfig, logger *zap.Logger) driver.Device {
	return &Device{
		port:   p,
		logger: logger.With(zap.String("driver", "CAI302")),
	}
}

// EnableNMEA switches the instrument to log mode, where it streams NMEA
func (d *Device) EnableNMEA(env operation.Env) error {
	if err := port.WriteByte(d.port, ctrlC); err != nil {
		return err
	}
	if !env.Sleep(50 * time.Millisecond) {
		return operation.ErrCancelled
	}
	return port.WriteString(d.port, "LOG 0\r")
}

// quantize rounds value to a whole number of units the way the
// instrument stores it
func quantize(value float64) uint {
	q := decimal.NewFromFloat(value).Round(0)
	if q.IsNegative() {
		return 0
	}
	return uint(q.IntPart())
}

func (d *Device) PutMacCready(mc float64, env operation.Env) error {
	tenths := quantize(mc / nmea.KnotsToMetersPerSecond * 10)
	return port.WriteString(d.port, fmt.Sprintf("!g,m%d\r", tenths))
}

func (d *Device) PutBugs(bugs float64, env operation.Env) error {
	return port.WriteString(d.port, fmt.Sprintf("!g,u%d\r", quantize(bugs*100)))
}

func (d *Device) PutBallast(fraction, overload float64, env operation.Env) error {
	return port.WriteString(d.port, fmt.Sprintf("!g,b%d\r", quantize(fraction*100)))
}

func (d *Device) ParseNMEA(line string, info *model.NMEAInfo) bool {
	in := nmea.NewInputLine(line)
	switch in.Read() {
	case "!w":
		return parseW(in, info)
	case "$PCAIB":
		// destination elevation and attributes are not used
		return true
	case "$PCAID":
		return parsePCAID(in, info)
	}
	return false
}

// parseW decodes the "!w" data record
func parseW(in *nmea.InputLine, info *model.NMEAInfo) bool {
	var bearing, speed float64
	bearingOK := in.ReadChecked(&bearing)
	speedOK := in.ReadChecked(&speed)
	if bearingOK && speedOK {
		wind := model.SpeedVector{
			Bearing: bearing,
			Norm:    speed / 10 * nmea.KPHToMetersPerSecond,
		}
		info.ProvideExternalWind(wind.Reciprocal())
	}

	in.Skip(2)

	var value float64
	if in.ReadChecked(&value) {
		info.ProvideBaroAltitudeTrue(value - 1000)
	}

	if in.ReadChecked(&value) {
		info.ProvideTotalEnergyVario((value - 200) / 10 * nmea.KnotsToMetersPerSecond)
	}

	in.Skip(2)

	if in.ReadChecked(&value) {
		info.Settings.ProvideMacCready(value/10*nmea.KnotsToMetersPerSecond, info.Clock)
	}
	if in.ReadChecked(&value) {
		info.Settings.ProvideBallastFraction(value/100, info.Clock)
	}
	if in.ReadChecked(&value) {
		info.Settings.ProvideBugs(value/100, info.Clock)
	}
	return true
}

// parsePCAID decodes logged-in flag, pressure altitude and engine noise
func parsePCAID(in *nmea.InputLine, info *model.NMEAInfo) bool {
	in.Skip()

	var value float64
	if in.ReadChecked(&value) {
		info.ProvidePressureAltitude(value)
	}
	return true
}
