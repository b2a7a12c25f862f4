// internal/nmea/parser.go
package nmea

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"glider-device-service/internal/model"
)

const (
	secondsPerDay = 86400

	// a time of day that drops by more than this is a midnight rollover,
	// smaller drops are out-of-order sentences
	rolloverThreshold = secondsPerDay / 2

	KnotsToMetersPerSecond = 1852.0 / 3600.0
	FeetToMeters           = 0.3048
	KPHToMetersPerSecond   = 1000.0 / 3600.0
)

// Parser decodes the standard sentences every GPS receiver emits. It
// keeps the state needed to make the time of day monotonic across
// midnight.
type Parser struct {
	// IgnoreChecksum disables checksum verification for the session
	IgnoreChecksum bool

	// Real marks positions as coming from real hardware
	Real bool

	startDate time.Time
	lastTime  float64
	haveLast  bool
}

// NewParser creates a parser for a real GPS source
func NewParser() *Parser {
	return &Parser{Real: true}
}

// Reset forgets the time history, e.g. after the device was reopened
func (p *Parser) Reset() {
	p.startDate = time.Time{}
	p.lastTime = 0
	p.haveLast = false
}

// ParseLine decodes one sentence into info. Unknown sentences are
// ignored and reported as not handled.
func (p *Parser) ParseLine(line string, info *model.NMEAInfo) bool {
	if !CheckLine(line, p.IgnoreChecksum) {
		return false
	}

	in := NewInputLine(line)
	tag := in.Read()
	if len(tag) < 2 || tag[0] != '$' {
		return false
	}

	if tag[1] == 'P' {
		switch tag {
		case "$PGRMZ":
			return p.pgrmz(in, info)
		}
		return false
	}

	if len(tag) != 6 {
		return false
	}

	switch tag[3:] {
	case "RMC":
		return p.rmc(in, info)
	case "GGA":
		return p.gga(in, info)
	case "GLL":
		return p.gll(in, info)
	}
	return false
}

func (p *Parser) rmc(in *InputLine, info *model.NMEAInfo) bool {
	sod, timeOK := ReadTime(in)
	valid := in.ReadChar() == 'A'
	location, locationOK := ReadGeoPoint(in)
	speed, speedOK := in.ReadFloat()
	track, trackOK := in.ReadFloat()
	date, dateOK := ReadDate(in)

	if timeOK {
		var datePtr *time.Time
		if dateOK {
			datePtr = &date
		}
		info.ProvideTime(p.timeModify(sod, datePtr))
	}
	if dateOK {
		info.ProvideDate(date)
	}

	info.GPS.Real = p.Real
	if !valid {
		info.LocationAvailable.Clear()
		return true
	}

	if locationOK {
		info.Location = location
		info.LocationAvailable.Update(info.Clock)
	}
	if speedOK {
		info.GroundSpeed = speed * KnotsToMetersPerSecond
		info.GroundSpeedAvailable.Update(info.Clock)
	}
	if trackOK && info.GroundSpeed > 2*KnotsToMetersPerSecond {
		info.Track = math.Mod(track, 360)
		info.TrackAvailable.Update(info.Clock)
	}
	return true
}

func (p *Parser) gga(in *InputLine, info *model.NMEAInfo) bool {
	sod, timeOK := ReadTime(in)
	location, locationOK := ReadGeoPoint(in)
	quality, qualityOK := in.ReadInt()
	satellites, satellitesOK := in.ReadInt()

	if timeOK {
		info.ProvideTime(p.timeModify(sod, nil))
	}

	info.GPS.Real = p.Real
	if qualityOK {
		info.GPS.FixQuality = model.FixQuality(quality)
		info.GPS.FixQualityAvailable.Update(info.Clock)
	}
	if satellitesOK {
		info.GPS.SatellitesUsed = satellites
		info.GPS.SatellitesUsedAvailable.Update(info.Clock)
	}
	in.ReadChecked(&info.GPS.HDOP)

	if qualityOK && quality == 0 {
		info.LocationAvailable.Clear()
		return true
	}

	if locationOK {
		info.Location = location
		info.LocationAvailable.Update(info.Clock)
	}

	if altitude, ok := in.ReadFloat(); ok {
		info.GPSAltitude = altitude
		info.GPSAltitudeAvailable.Update(info.Clock)
	}
	return true
}

func (p *Parser) gll(in *InputLine, info *model.NMEAInfo) bool {
	location, locationOK := ReadGeoPoint(in)
	sod, timeOK := ReadTime(in)
	valid := in.ReadChar() == 'A'

	if timeOK {
		info.ProvideTime(p.timeModify(sod, nil))
	}
	if !valid {
		info.LocationAvailable.Clear()
		return true
	}
	if locationOK {
		info.Location = location
		info.LocationAvailable.Update(info.Clock)
	}
	return true
}

func (p *Parser) pgrmz(in *InputLine, info *model.NMEAInfo) bool {
	altitude, ok := in.ReadFloat()
	if !ok {
		return false
	}
	if in.ReadChar() == 'f' {
		altitude *= FeetToMeters
	}
	info.ProvidePressureAltitude(altitude)
	return true
}

// timeModify turns a time of day into the monotonic internal time. A date
// advance adds whole days relative to the first date seen; a large drop
// in the time of day without a date advance is a midnight rollover.
func (p *Parser) timeModify(sod float64, date *time.Time) float64 {
	t := sod
	if date != nil {
		if p.startDate.IsZero() || date.Before(p.startDate) {
			p.startDate = *date
		}
		days := int(date.Sub(p.startDate).Hours()/24 + 0.5)
		t += float64(days * secondsPerDay)
	} else if p.haveLast {
		t += math.Floor(p.lastTime/secondsPerDay) * secondsPerDay
	}

	if p.haveLast && t < p.lastTime-rolloverThreshold {
		t += secondsPerDay
	}

	p.lastTime = t
	p.haveLast = true
	return t
}

// ReadTime parses "hhmmss[.sss]" into seconds of the day
func ReadTime(in *InputLine) (float64, bool) {
	value, ok := in.ReadDecimal()
	if !ok || value.IsNegative() {
		return 0, false
	}

	hundred := decimal.NewFromInt(100)
	hours := value.Div(decimal.NewFromInt(10000)).Floor()
	rest := value.Sub(hours.Mul(decimal.NewFromInt(10000)))
	minutes := rest.Div(hundred).Floor()
	seconds := rest.Sub(minutes.Mul(hundred))

	if hours.GreaterThanOrEqual(decimal.NewFromInt(24)) ||
		minutes.GreaterThanOrEqual(decimal.NewFromInt(60)) ||
		seconds.GreaterThanOrEqual(decimal.NewFromInt(61)) {
		return 0, false
	}

	total := hours.Mul(decimal.NewFromInt(3600)).
		Add(minutes.Mul(decimal.NewFromInt(60))).
		Add(seconds)
	return total.InexactFloat64(), true
}

// ReadDate parses "ddmmyy" into a UTC date
func ReadDate(in *InputLine) (time.Time, bool) {
	field := strings.TrimSpace(in.Read())
	if len(field) != 6 {
		return time.Time{}, false
	}
	date, err := time.Parse("020106", field)
	if err != nil {
		return time.Time{}, false
	}
	return date.UTC(), true
}

// ReadGeoPoint reads the latitude, N/S, longitude and E/W fields
func ReadGeoPoint(in *InputLine) (model.GeoPoint, bool) {
	lat, latOK := readAngle(in, 'N', 'S')
	lon, lonOK := readAngle(in, 'E', 'W')
	if !latOK || !lonOK {
		return model.GeoPoint{}, false
	}
	p := model.GeoPoint{Latitude: lat, Longitude: lon}
	return p, p.IsValid()
}

func readAngle(in *InputLine, positive, negative byte) (float64, bool) {
	value, ok := in.ReadDecimal()
	hemisphere := in.ReadChar()
	if !ok {
		return 0, false
	}

	degrees := value.Div(decimal.NewFromInt(100)).Floor()
	minutes := value.Sub(degrees.Mul(decimal.NewFromInt(100)))
	angle := degrees.Add(minutes.Div(decimal.NewFromInt(60))).InexactFloat64()

	switch hemisphere {
	case positive:
		return angle, true
	case negative:
		return -angle, true
	}
	return 0, false
}
