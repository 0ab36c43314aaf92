// Package geo provides the WGS84 position value used by classification and
// path-building code, with great-circle helpers backed by orb.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Position is an immutable WGS84 position. Latitude and longitude are in
// degrees, altitude in metres.
type Position struct {
	lat, lon, alt float64
}

// New returns a surface position. Latitude is clamped to [-90, 90] so that
// numerical noise from inverse projections never produces an invalid value;
// longitude is kept as given.
func New(lat, lon float64) Position {
	return Position{lat: clampLat(lat), lon: lon}
}

// NewWithAlt returns a position at the given altitude in metres.
func NewWithAlt(lat, lon, alt float64) Position {
	return Position{lat: clampLat(lat), lon: lon, alt: alt}
}

// FromPoint converts an orb point (lon, lat order) to a Position.
func FromPoint(p orb.Point) Position {
	return New(p.Lat(), p.Lon())
}

func (p Position) Lat() float64 { return p.lat }
func (p Position) Lon() float64 { return p.lon }
func (p Position) Alt() float64 { return p.alt }

// Point returns the position as an orb point.
func (p Position) Point() orb.Point { return orb.Point{p.lon, p.lat} }

// Equal reports whether two positions share latitude and longitude.
// Altitude is ignored.
func (p Position) Equal(o Position) bool {
	return p.lat == o.lat && p.lon == o.lon
}

func (p Position) String() string {
	return fmt.Sprintf("[%g,%g]", p.lat, p.lon)
}

// DistanceKm returns the great-circle distance to o in kilometres.
func (p Position) DistanceKm(o Position) float64 {
	return orbgeo.DistanceHaversine(p.Point(), o.Point()) / 1000
}

// BearingDegrees returns the initial great-circle bearing to o in [0, 360).
func (p Position) BearingDegrees(o Position) float64 {
	b := orbgeo.Bearing(p.Point(), o.Point())
	if b < 0 {
		b += 360
	}
	return b
}

// Predict returns the position reached by travelling distanceKm along the
// great circle with the given initial course. Only surface positions can be
// predicted.
func (p Position) Predict(distanceKm, courseDegrees float64) Position {
	q := orbgeo.PointAtBearingAndDistance(p.Point(), courseDegrees, distanceKm*1000)
	return New(q.Lat(), To180(q.Lon()))
}

// AlongPath returns the position at proportion (0..1) of the way from p to o
// along the great circle.
func (p Position) AlongPath(o Position, proportion float64) (Position, error) {
	if proportion < 0 || proportion > 1 || math.IsNaN(proportion) {
		return Position{}, fmt.Errorf("proportion %v outside [0,1]", proportion)
	}
	if p.Equal(o) {
		return p, nil
	}
	return p.intermediate(o, p.DistanceKm(o)/(orb.EarthRadius/1000), proportion), nil
}

// PositionsAlongPath splits the great circle from p to o into segments no
// longer than maxSegmentKm. The result starts with p and ends with o.
func (p Position) PositionsAlongPath(o Position, maxSegmentKm float64) []Position {
	if maxSegmentKm <= 0 {
		return []Position{p, o}
	}
	dist := p.DistanceKm(o)
	n := int(math.Floor(dist/maxSegmentKm)) + 1
	delta := dist / (orb.EarthRadius / 1000)
	out := make([]Position, 0, n+1)
	out = append(out, p)
	for i := 1; i < n; i++ {
		out = append(out, p.intermediate(o, delta, float64(i)/float64(n)))
	}
	return append(out, o)
}

// intermediate interpolates on the unit sphere between p and o, which are
// delta radians apart. Antipodal points have no unique great circle; the
// path then leaves p along its initial bearing.
func (p Position) intermediate(o Position, delta, f float64) Position {
	sd := math.Sin(delta)
	if sd < 1e-12 {
		return p.Predict(f*delta*orb.EarthRadius/1000, p.BearingDegrees(o))
	}
	a := math.Sin((1-f)*delta) / sd
	b := math.Sin(f*delta) / sd
	lat1, lon1 := p.lat*math.Pi/180, p.lon*math.Pi/180
	lat2, lon2 := o.lat*math.Pi/180, o.lon*math.Pi/180
	x := a*math.Cos(lat1)*math.Cos(lon1) + b*math.Cos(lat2)*math.Cos(lon2)
	y := a*math.Cos(lat1)*math.Sin(lon1) + b*math.Cos(lat2)*math.Sin(lon2)
	z := a*math.Sin(lat1) + b*math.Sin(lat2)
	lat := math.Atan2(z, math.Hypot(x, y)) * 180 / math.Pi
	lon := math.Atan2(y, x) * 180 / math.Pi
	return New(lat, lon)
}

// NormalizeLongitude returns p with longitude in (-180, 180].
func (p Position) NormalizeLongitude() Position {
	return Position{lat: p.lat, lon: To180(p.lon), alt: p.alt}
}

// To360 returns p with longitude in [0, 360).
func (p Position) To360() Position {
	return Position{lat: p.lat, lon: To360(p.lon), alt: p.alt}
}

// EnsureContinuous shifts p's longitude by 360 degrees when needed so that
// moving from last to p does not jump across the antimeridian.
func (p Position) EnsureContinuous(last Position) Position {
	if math.Abs(p.lon-last.lon) <= 180 {
		return p
	}
	lon := p.lon
	if last.lon < 0 {
		lon -= 360
	} else {
		lon += 360
	}
	return Position{lat: p.lat, lon: lon, alt: p.alt}
}

// To180 maps an angle in degrees into (-180, 180].
func To180(d float64) float64 {
	d = math.Mod(d, 360)
	switch {
	case d > 180:
		d -= 360
	case d <= -180:
		d += 360
	}
	return d
}

// To360 maps an angle in degrees into [0, 360).
func To360(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// LongitudeDiff returns the eastward difference a-b in [0, 360).
func LongitudeDiff(a, b float64) float64 {
	return To360(To180(a) - To180(b))
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}
