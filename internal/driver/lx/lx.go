// internal/driver/lx/lx.go
package lx

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"glider-device-service/internal/model"
	"glider-device-service/internal/nmea"
	"glider-device-service/internal/operation"
	"glider-device-service/internal/port"
	"glider-device-service/pkg/driver"
)

// Device talks to LX Navigation varios (LX1600, LX7007, Colibri)
type Device struct {
	driver.AbstractDevice

	port   port.Port
	logger *zap.Logger

	// condor reports wind as the direction it blows to
	condor bool
}

// New creates an LX session on p
func New(p port.Port, cfg model.DeviceConfig, logger *zap.Logger) driver.Device {
	return &Device{
		port:   p,
		logger: logger.With(zap.String("driver", "LX")),
	}
}

// NewCondor creates a session for the Condor soaring simulator, which
// emits LX sentences
func NewCondor(p port.Port, cfg model.DeviceConfig, logger *zap.Logger) driver.Device {
	return &Device{
		port:   p,
		logger: logger.With(zap.String("driver", "Condor")),
		condor: true,
	}
}

func (d *Device) ParseNMEA(line string, info *model.NMEAInfo) bool {
	in := nmea.NewInputLine(line)
	switch in.Read() {
	case "$LXWP0":
		return d.lxwp0(in, info)
	case "$LXWP1":
		// serial number, instrument id and versions
		return true
	case "$LXWP2":
		return lxwp2(in, info)
	case "$LXWP3":
		// altitude offset and filter settings
		return true
	}
	return false
}

func readSpeedVector(in *nmea.InputLine) (model.SpeedVector, bool) {
	var bearing, norm float64
	bearingOK := in.ReadChecked(&bearing)
	normOK := in.ReadChecked(&norm)
	if !bearingOK || !normOK {
		return model.SpeedVector{}, false
	}
	return model.SpeedVector{Bearing: bearing, Norm: norm * nmea.KPHToMetersPerSecond}, true
}

// lxwp0 decodes
//
//	$LXWP0,logger_stored,tas,altitude,vario*6,heading,wind_course,wind_speed
func (d *Device) lxwp0(in *nmea.InputLine, info *model.NMEAInfo) bool {
	in.Skip()

	var airspeed float64
	tasOK := in.ReadChecked(&airspeed)

	// the LX sends uncorrected altitude above the 1013.25 hPa surface
	var altitude float64
	if in.ReadChecked(&altitude) {
		info.ProvidePressureAltitude(altitude)
	}

	if tasOK {
		info.ProvideTrueAirspeedWithAltitude(airspeed*nmea.KPHToMetersPerSecond, altitude)
	}

	var vario float64
	if in.ReadChecked(&vario) {
		info.ProvideTotalEnergyVario(vario)
	}

	in.Skip(6)

	if wind, ok := readSpeedVector(in); ok {
		if d.condor {
			wind = wind.Reciprocal()
		}
		info.ProvideExternalWind(wind)
	}

	if d.condor {
		info.GPS.Simulator = true
	}
	return true
}

// lxwp2 decodes
//
//	$LXWP2,maccready,ballast,bugs,polar_a,polar_b,polar_c,volume
func lxwp2(in *nmea.InputLine, info *model.NMEAInfo) bool {
	var value float64
	if in.ReadChecked(&value) {
		info.Settings.ProvideMacCready(value, info.Clock)
	}
	if in.ReadChecked(&value) {
		info.Settings.ProvideBallastOverload(value, info.Clock)
	}
	if in.ReadChecked(&value) {
		info.Settings.ProvideBugs((100-value)/100, info.Clock)
	}
	return true
}

func (d *Device) PutMacCready(mc float64, env operation.Env) error {
	return port.WriteNMEA(d.port, fmt.Sprintf("PFLX2,%1.1f,,,,,,", mc))
}

func (d *Device) PutBugs(bugs float64, env operation.Env) error {
	transformed := 100 - int(math.Round(bugs*100))
	return port.WriteNMEA(d.port, fmt.Sprintf("PFLX2,,,%d,,,,", transformed))
}

func (d *Device) PutBallast(fraction, overload float64, env operation.Env) error {
	return port.WriteNMEA(d.port, fmt.Sprintf("PFLX2,,%.2f,,,,,", overload))
}
