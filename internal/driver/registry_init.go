// internal/driver/registry_init.go
package driver

import (
	"go.uber.org/zap"

	"glider-device-service/internal/driver/cai302"
	"glider-device-service/internal/driver/flarm"
	"glider-device-service/internal/driver/generic"
	"glider-device-service/internal/driver/lx"
	"glider-device-service/internal/driver/vega"
	"glider-device-service/internal/driver/volkslogger"
)

// Driver names stored in device configurations
const (
	NameGeneric     = "Generic"
	NameCAI302      = "CAI 302"
	NameFLARM       = "FLARM"
	NameLX          = "LX"
	NameVolkslogger = "Volkslogger"
	NameVega        = "Vega"
	NameCondor      = "Condor"
	NameNMEAOut     = "NmeaOut"
)

// RegisterDefaultDrivers registers all built in instrument drivers
func RegisterDefaultDrivers(registry *Registry, logger *zap.Logger) {
	for _, reg := range []*Register{
		{
			Name:         NameGeneric,
			DisplayName:  "Generic",
			CreateOnPort: generic.New,
		},
		{
			Name:         NameCAI302,
			DisplayName:  "Cambridge CAI302",
			Flags:        FlagManageable,
			CreateOnPort: cai302.New,
		},
		{
			Name:         NameFLARM,
			DisplayName:  "FLARM",
			Flags:        FlagDeclare | FlagManageable,
			CreateOnPort: flarm.New,
		},
		{
			Name:         NameLX,
			DisplayName:  "LXNAV",
			CreateOnPort: lx.New,
		},
		{
			Name:         NameVolkslogger,
			DisplayName:  "Volkslogger",
			Flags:        FlagLogger | FlagBulkBaudRate,
			CreateOnPort: volkslogger.New,
		},
		{
			Name:         NameVega,
			DisplayName:  "Vega",
			Flags:        FlagManageable,
			CreateOnPort: vega.New,
		},
		{
			Name:         NameCondor,
			DisplayName:  "Condor Soaring Simulator",
			CreateOnPort: lx.NewCondor,
		},
		{
			Name:         NameNMEAOut,
			DisplayName:  "NMEA output",
			Flags:        FlagNMEAOut,
			CreateOnPort: generic.NewOutput,
		},
	} {
		registry.Register(reg)
	}

	logger.Info("Instrument drivers registered",
		zap.Int("drivers", len(registry.List())),
		zap.Int("loggers", len(registry.Loggers())),
	)
}
