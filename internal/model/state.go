// internal/model/state.go
package model

import (
	"math"
	"time"
)

// GeoPoint is a WGS84 location in degrees
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsValid reports whether the point lies within the valid coordinate range
func (p GeoPoint) IsValid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// SpeedVector is a bearing in degrees and a norm in m/s
type SpeedVector struct {
	Bearing float64 `json:"bearing"`
	Norm    float64 `json:"norm"`
}

// Reciprocal turns a "blowing to" vector into "blowing from" and vice versa
func (v SpeedVector) Reciprocal() SpeedVector {
	return SpeedVector{Bearing: math.Mod(v.Bearing+180, 360), Norm: v.Norm}
}

// FixQuality mirrors the GGA fix quality indicator
type FixQuality int

const (
	FixQualityNoFix FixQuality = iota
	FixQualityGPS
	FixQualityDGPS
	FixQualityPPS
	FixQualityRealTimeKinematic
	FixQualityFloatRTK
	FixQualityEstimation
	FixQualityManualInput
	FixQualitySimulation
)

// GPSState describes the satellite receiver
type GPSState struct {
	FixQuality              FixQuality `json:"fix_quality"`
	FixQualityAvailable     Validity   `json:"-"`
	SatellitesUsed          int        `json:"satellites_used"`
	SatellitesUsedAvailable Validity   `json:"-"`
	HDOP                    float64    `json:"hdop"`
	Real                    bool       `json:"real"`
	Internal                bool       `json:"internal"`
	Simulator               bool       `json:"simulator"`
}

// NMEAInfo is the aircraft state one device contributes
type NMEAInfo struct {
	// Clock is the monotonic time of the last update
	Clock time.Duration `json:"-"`

	Alive Validity `json:"-"`

	GPS GPSState `json:"gps"`

	// Time is seconds since midnight UTC of the first day; it grows past
	// 86400 after a date rollover.
	Time          float64   `json:"time"`
	TimeAvailable bool      `json:"time_available"`
	DateTimeUTC   time.Time `json:"date_time_utc"`
	DateAvailable bool      `json:"date_available"`

	Location          GeoPoint `json:"location"`
	LocationAvailable Validity `json:"-"`

	GPSAltitude          float64  `json:"gps_altitude"`
	GPSAltitudeAvailable Validity `json:"-"`

	Track          float64  `json:"track"`
	TrackAvailable Validity `json:"-"`

	GroundSpeed          float64  `json:"ground_speed"`
	GroundSpeedAvailable Validity `json:"-"`

	StaticPressure          float64  `json:"static_pressure"`
	StaticPressureAvailable Validity `json:"-"`

	PressureAltitude          float64  `json:"pressure_altitude"`
	PressureAltitudeAvailable Validity `json:"-"`

	BaroAltitude          float64  `json:"baro_altitude"`
	BaroAltitudeAvailable Validity `json:"-"`

	TrueAirspeed      float64  `json:"true_airspeed"`
	IndicatedAirspeed float64  `json:"indicated_airspeed"`
	AirspeedAvailable Validity `json:"-"`
	AirspeedReal      bool     `json:"airspeed_real"`

	TotalEnergyVario          float64  `json:"total_energy_vario"`
	TotalEnergyVarioAvailable Validity `json:"-"`

	NettoVario          float64  `json:"netto_vario"`
	NettoVarioAvailable Validity `json:"-"`

	ExternalWind          SpeedVector `json:"external_wind"`
	ExternalWindAvailable Validity    `json:"-"`

	GLoad          float64  `json:"g_load"`
	GLoadAvailable Validity `json:"-"`

	Settings ExternalSettings `json:"settings"`
}

// Reset clears all state
func (info *NMEAInfo) Reset() {
	*info = NMEAInfo{}
}

// UpdateClock stamps the state with the current monotonic clock
func (info *NMEAInfo) UpdateClock(clock time.Duration) {
	info.Clock = clock
}

// ProvideTime stores the internal time of day
func (info *NMEAInfo) ProvideTime(seconds float64) {
	info.Time = seconds
	info.TimeAvailable = true
}

// ProvideDate stores the UTC date, keeping the time of day
func (info *NMEAInfo) ProvideDate(date time.Time) {
	y, m, d := date.Date()
	info.DateTimeUTC = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(math.Mod(info.Time, 86400) * float64(time.Second)))
	info.DateAvailable = true
}

// ProvidePressureAltitude stores an altitude above the 1013.25 hPa surface
func (info *NMEAInfo) ProvidePressureAltitude(value float64) {
	info.PressureAltitude = value
	info.PressureAltitudeAvailable.Update(info.Clock)
}

// ProvideBaroAltitudeTrue stores a QNH corrected altitude
func (info *NMEAInfo) ProvideBaroAltitudeTrue(value float64) {
	info.BaroAltitude = value
	info.BaroAltitudeAvailable.Update(info.Clock)
}

// ProvideStaticPressure stores the static pressure in hPa
func (info *NMEAInfo) ProvideStaticPressure(hpa float64) {
	info.StaticPressure = hpa
	info.StaticPressureAvailable.Update(info.Clock)
}

// ProvideTrueAirspeedWithAltitude stores TAS and derives IAS at altitude
func (info *NMEAInfo) ProvideTrueAirspeedWithAltitude(tas, altitude float64) {
	info.TrueAirspeed = tas
	info.IndicatedAirspeed = tas * AirDensityRatio(altitude)
	info.AirspeedAvailable.Update(info.Clock)
	info.AirspeedReal = true
}

// ProvideIndicatedAirspeedWithAltitude stores IAS and derives TAS at altitude
func (info *NMEAInfo) ProvideIndicatedAirspeedWithAltitude(ias, altitude float64) {
	info.IndicatedAirspeed = ias
	info.TrueAirspeed = ias / AirDensityRatio(altitude)
	info.AirspeedAvailable.Update(info.Clock)
	info.AirspeedReal = true
}

// ProvideBothAirspeeds stores airspeeds measured independently
func (info *NMEAInfo) ProvideBothAirspeeds(ias, tas float64) {
	info.IndicatedAirspeed = ias
	info.TrueAirspeed = tas
	info.AirspeedAvailable.Update(info.Clock)
	info.AirspeedReal = true
}

// ProvideTotalEnergyVario stores the total energy vario in m/s
func (info *NMEAInfo) ProvideTotalEnergyVario(value float64) {
	info.TotalEnergyVario = value
	info.TotalEnergyVarioAvailable.Update(info.Clock)
}

// ProvideNettoVario stores the netto vario in m/s
func (info *NMEAInfo) ProvideNettoVario(value float64) {
	info.NettoVario = value
	info.NettoVarioAvailable.Update(info.Clock)
}

// ProvideExternalWind stores a wind vector measured by the instrument
func (info *NMEAInfo) ProvideExternalWind(wind SpeedVector) {
	info.ExternalWind = wind
	info.ExternalWindAvailable.Update(info.Clock)
}

// Expire drops values that are too old to be trusted
func (info *NMEAInfo) Expire(maxAge time.Duration) {
	clock := info.Clock
	info.Alive.Expire(clock, maxAge)
	if info.LocationAvailable.Expire(clock, maxAge) {
		info.GPS.FixQualityAvailable.Clear()
	}
	info.GPSAltitudeAvailable.Expire(clock, maxAge)
	info.TrackAvailable.Expire(clock, maxAge)
	info.GroundSpeedAvailable.Expire(clock, maxAge)
	info.StaticPressureAvailable.Expire(clock, maxAge)
	info.PressureAltitudeAvailable.Expire(clock, maxAge)
	info.BaroAltitudeAvailable.Expire(clock, maxAge)
	info.AirspeedAvailable.Expire(clock, maxAge)
	info.TotalEnergyVarioAvailable.Expire(clock, maxAge)
	info.NettoVarioAvailable.Expire(clock, maxAge)
	info.ExternalWindAvailable.Expire(clock, maxAge)
	info.GLoadAvailable.Expire(clock, maxAge)
}

// Complement fills in fields missing here from other
func (info *NMEAInfo) Complement(other *NMEAInfo) {
	if !other.Alive.IsValid() {
		return
	}
	if other.Clock > info.Clock {
		info.Clock = other.Clock
	}
	info.Alive.Complement(other.Alive)

	if info.LocationAvailable.Complement(other.LocationAvailable) {
		info.Location = other.Location
		info.GPS = other.GPS
		if other.TimeAvailable {
			info.Time = other.Time
			info.TimeAvailable = true
		}
		if other.DateAvailable {
			info.DateTimeUTC = other.DateTimeUTC
			info.DateAvailable = true
		}
	}
	if info.GPSAltitudeAvailable.Complement(other.GPSAltitudeAvailable) {
		info.GPSAltitude = other.GPSAltitude
	}
	if info.TrackAvailable.Complement(other.TrackAvailable) {
		info.Track = other.Track
	}
	if info.GroundSpeedAvailable.Complement(other.GroundSpeedAvailable) {
		info.GroundSpeed = other.GroundSpeed
	}
	if info.StaticPressureAvailable.Complement(other.StaticPressureAvailable) {
		info.StaticPressure = other.StaticPressure
	}
	if info.PressureAltitudeAvailable.Complement(other.PressureAltitudeAvailable) {
		info.PressureAltitude = other.PressureAltitude
	}
	if info.BaroAltitudeAvailable.Complement(other.BaroAltitudeAvailable) {
		info.BaroAltitude = other.BaroAltitude
	}
	if info.AirspeedAvailable.Complement(other.AirspeedAvailable) {
		info.TrueAirspeed = other.TrueAirspeed
		info.IndicatedAirspeed = other.IndicatedAirspeed
		info.AirspeedReal = other.AirspeedReal
	}
	if info.TotalEnergyVarioAvailable.Complement(other.TotalEnergyVarioAvailable) {
		info.TotalEnergyVario = other.TotalEnergyVario
	}
	if info.NettoVarioAvailable.Complement(other.NettoVarioAvailable) {
		info.NettoVario = other.NettoVario
	}
	if info.ExternalWindAvailable.Complement(other.ExternalWindAvailable) {
		info.ExternalWind = other.ExternalWind
	}
	if info.GLoadAvailable.Complement(other.GLoadAvailable) {
		info.GLoad = other.GLoad
	}
	info.Settings.Complement(other.Settings)
}

// AirDensityRatio returns sqrt(rho/rho0) in the standard atmosphere
func AirDensityRatio(altitude float64) float64 {
	const isaSeaLevelDensity = 1.225
	density := math.Pow((44330.8-altitude)/42266.5, 1.0/0.234969)
	return math.Sqrt(density / isaSeaLevelDensity)
}

// PressureAltitudeToStaticPressure converts an altitude to hPa in the standard atmosphere
func PressureAltitudeToStaticPressure(altitude float64) float64 {
	return 1013.25 * math.Pow(1-altitude/44330.8, 1/0.190263)
}

// StaticPressureToPressureAltitude converts hPa to an altitude in the standard atmosphere
func StaticPressureToPressureAltitude(hpa float64) float64 {
	return 44330.8 * (1 - math.Pow(hpa/1013.25, 0.190263))
}

// DerivedInfo is the subset of computed flight state pushed to instruments
type DerivedInfo struct {
	MacCready       float64 `json:"mac_cready"`
	SpeedToFly      float64 `json:"speed_to_fly"`
	Circling        bool    `json:"circling"`
	TerrainAltitude float64 `json:"terrain_altitude"`
	TerrainValid    bool    `json:"terrain_valid"`
}
