package layers

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/pspoerri/wmsoverlay/internal/geo"
)

// EarthRadiusKm converts great-circle distances to angles for twilight. It
// matches the radius geo.Position uses for distances.
const EarthRadiusKm = orb.EarthRadius / 1000

// Twilight is the illumination class of a location, from the altitude of
// the sun above its horizon.
type Twilight int

const (
	Daylight     Twilight = iota // sun above the horizon
	Civil                        // 0 to -6 degrees
	Nautical                     // -6 to -12 degrees
	Astronomical                 // -12 to -18 degrees
	Night                        // below -18 degrees
)

func (t Twilight) String() string {
	switch t {
	case Daylight:
		return "daylight"
	case Civil:
		return "civil"
	case Nautical:
		return "nautical"
	case Astronomical:
		return "astronomical"
	case Night:
		return "night"
	default:
		return fmt.Sprintf("Twilight(%d)", int(t))
	}
}

// TwilightForAltitude classifies a solar altitude in degrees. Each class
// includes its upper threshold.
func TwilightForAltitude(altDeg float64) Twilight {
	switch {
	case altDeg >= 0:
		return Daylight
	case altDeg >= -6:
		return Civil
	case altDeg >= -12:
		return Nautical
	case altDeg >= -18:
		return Astronomical
	default:
		return Night
	}
}

// TwilightAt returns the twilight class at p given the sub-solar point.
func TwilightAt(subSolar, p geo.Position) Twilight {
	rad := p.DistanceKm(subSolar) / EarthRadiusKm
	return TwilightForAltitude(90 - rad*180/math.Pi)
}

// JulianDay returns the Julian day number (with fraction) of t.
func JulianDay(t time.Time) float64 {
	return float64(t.UnixNano())/float64(24*time.Hour) + 2440587.5
}

// SubSolarPoint returns the position at which the sun is at the zenith at
// time t, from the low precision solar coordinates of the Astronomical
// Almanac (good to about 0.01 degrees).
func SubSolarPoint(t time.Time) geo.Position {
	jd := JulianDay(t)
	// Julian centuries since J2000.0.
	T := (jd - 2451545.0) / 36525

	meanAnomaly := 357.52910 + 35999.05030*T - 0.0001559*T*T - 0.00000048*T*T*T
	meanLon := 280.46645 + 36000.76983*T + 0.0003032*T*T
	m := rad(meanAnomaly)
	center := (1.914600-0.004817*T-0.000014*T*T)*math.Sin(m) +
		(0.019993-0.000101*T)*math.Sin(2*m) +
		0.000290*math.Sin(3*m)
	trueLon := rad(meanLon + center)

	obliquity := rad(23.0 + 26.0/60.0 + 21.448/3600.0 -
		(46.8150*T+0.00059*T*T-0.001813*T*T*T)/3600.0)

	x := math.Cos(trueLon)
	y := math.Cos(obliquity) * math.Sin(trueLon)
	z := math.Sin(obliquity) * math.Sin(trueLon)
	r := math.Sqrt(1 - z*z)

	declination := deg(math.Atan(z / r))
	rightAscension := 2 * deg(math.Atan(y/(x+r))) // degrees

	sidereal := 280.46061837 + 360.98564736629*(jd-2451545.0) +
		0.000387933*T*T - T*T*T/38710000.0

	hourAngle := geo.To360(sidereal - rightAscension)
	lon := -hourAngle
	if hourAngle >= 180 {
		lon = 360 - hourAngle
	}
	return geo.New(declination, geo.To180(lon))
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }
