package coord

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

const (
	// EarthCircumference is the equatorial circumference in meters.
	EarthCircumference = 2 * OriginShift
	// OriginShift is the projected X of longitude 180 in spherical mercator.
	OriginShift = 20037508.342789244
)

// WebMercatorProj implements spherical mercator (EPSG:3857 and its legacy
// aliases 900913 and 102100). The transforms are orb's.
type WebMercatorProj struct {
	epsg int
}

func (w WebMercatorProj) EPSG() int {
	if w.epsg == 0 {
		return 3857
	}
	return w.epsg
}

// Cylindrical reports true: the period is the same at every latitude.
func (w WebMercatorProj) Cylindrical() bool { return true }

func (w WebMercatorProj) ToWGS84(x, y float64) (lon, lat float64) {
	p := project.Mercator.ToWGS84(orb.Point{x, y})
	return p.Lon(), p.Lat()
}

func (w WebMercatorProj) FromWGS84(lon, lat float64) (x, y float64) {
	p := project.WGS84.ToMercator(orb.Point{lon, lat})
	return p.X(), p.Y()
}

// TileBounds returns the EPSG:3857 bounds of web map tile z/x/y.
func TileBounds(z, x, y int) Bounds {
	b := maptile.New(uint32(x), uint32(y), maptile.Zoom(z)).Bound()
	lo := project.WGS84.ToMercator(b.Min)
	hi := project.WGS84.ToMercator(b.Max)
	return Bounds{SRS: EPSG3857, MinX: lo.X(), MinY: lo.Y(), MaxX: hi.X(), MaxY: hi.Y()}
}
