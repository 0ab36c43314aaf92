package coord

import (
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"

	"github.com/pspoerri/wmsoverlay/internal/geo"
)

// Projection maps between geographic positions and pixel coordinates for a
// single request's bounds and target size. It is immutable after New and may
// be shared by concurrently running layer jobs.
type Projection struct {
	bounds Bounds
	target Target
	crs    CRS

	// Effective X extent. For antimeridian windows maxX has been moved one
	// period east so that minX < maxX.
	minX, maxX float64

	// Period of a cylindrical CRS, the same at every latitude. Zero for
	// other CRSs, whose periods are memoised per latitude in periods.
	period  float64
	periods sync.Map // latitude (float64) -> period (float64)
	nPeriod atomic.Int32
}

// maxPeriods bounds the per-latitude period memo of non-cylindrical CRSs.
const maxPeriods = 4096

// New builds the projection for bounds b rendered into target t.
func New(b Bounds, t Target) (*Projection, error) {
	if err := t.Validate(); err != nil {
		return nil, configErr("projection target", err)
	}
	if err := b.Validate(); err != nil {
		return nil, configErr("projection bounds", err)
	}
	crs, err := Lookup(b.SRS)
	if err != nil {
		return nil, err
	}

	p := &Projection{bounds: b, target: t, crs: crs, minX: b.MinX, maxX: b.MaxX}
	if cc, ok := crs.(interface{ Cylindrical() bool }); ok && cc.Cylindrical() {
		p.period = p.periodAt(0)
	}
	if b.MinX > b.MaxX {
		period := p.PeriodAtLatitude(0)
		if !(period > 0) || math.IsInf(period, 0) {
			return nil, configErr("projection bounds",
				fmt.Errorf("%w: %v crosses the antimeridian but %s is not periodic", ErrZeroExtent, b, b.SRS))
		}
		p.maxX += period
	}

	// A CRS whose inverse fails at a corner is rejected up front.
	for _, c := range [...][2]float64{{0, 0}, {float64(t.Width), 0}, {0, float64(t.Height)}, {float64(t.Width), float64(t.Height)}} {
		pos := p.ToGeo(c[0], c[1])
		if math.IsNaN(pos.Lat()) || math.IsNaN(pos.Lon()) || math.IsInf(pos.Lon(), 0) {
			return nil, configErr("projection bounds", fmt.Errorf("%w: corner %v of %v", ErrTransform, c, b))
		}
	}
	return p, nil
}

// Bounds returns the request bounds as given to New.
func (p *Projection) Bounds() Bounds { return p.bounds }

// Target returns the pixel size.
func (p *Projection) Target() Target { return p.target }

// CRS returns the coordinate reference system of the bounds.
func (p *Projection) CRS() CRS { return p.crs }

// Rect returns the full pixel rectangle of the target.
func (p *Projection) Rect() image.Rectangle {
	return image.Rect(0, 0, p.target.Width, p.target.Height)
}

// ToPixel maps a WGS84 position to fractional pixel coordinates. Projected X
// values that fall outside the bounds are shifted by one longitude period in
// whichever direction brings them inside.
func (p *Projection) ToPixel(lat, lon float64) (x, y float64) {
	px, py := p.crs.FromWGS84(lon, lat)
	if px < p.minX || px > p.maxX {
		px = p.rewrap(px, lat)
	}
	x = (px - p.minX) / (p.maxX - p.minX) * float64(p.target.Width)
	y = (p.bounds.MaxY - py) / (p.bounds.MaxY - p.bounds.MinY) * float64(p.target.Height)
	return x, y
}

// ToPoint is ToPixel rounded to the nearest pixel.
func (p *Projection) ToPoint(lat, lon float64) image.Point {
	x, y := p.ToPixel(lat, lon)
	return image.Pt(int(math.Round(x)), int(math.Round(y)))
}

// ToGeo maps pixel coordinates to a WGS84 position with longitude in
// (-180, 180].
func (p *Projection) ToGeo(x, y float64) geo.Position {
	px := p.minX + x/float64(p.target.Width)*(p.maxX-p.minX)
	py := p.bounds.MaxY - y/float64(p.target.Height)*(p.bounds.MaxY-p.bounds.MinY)
	lon, lat := p.crs.ToWGS84(px, py)
	return geo.New(lat, geo.To180(lon))
}

// PeriodAtLatitude returns the projected width of 360 degrees of longitude at
// lat. Cylindrical CRSs have one period for all latitudes; for others the
// value is memoised per latitude, up to maxPeriods distinct latitudes.
// CRSs that report Periodic() == false have period 0 and are never rewrapped.
func (p *Projection) PeriodAtLatitude(lat float64) float64 {
	if pc, ok := p.crs.(interface{ Periodic() bool }); ok && !pc.Periodic() {
		return 0
	}
	if p.period > 0 {
		return p.period
	}
	if math.IsNaN(lat) {
		return math.NaN()
	}
	if v, ok := p.periods.Load(lat); ok {
		return v.(float64)
	}
	period := p.periodAt(lat)
	if p.nPeriod.Load() < maxPeriods {
		if _, loaded := p.periods.LoadOrStore(lat, period); !loaded {
			p.nPeriod.Add(1)
		}
	}
	return period
}

func (p *Projection) periodAt(lat float64) float64 {
	east, _ := p.crs.FromWGS84(180, lat)
	west, _ := p.crs.FromWGS84(-180, lat)
	return east - west
}

func (p *Projection) rewrap(x, lat float64) float64 {
	period := p.PeriodAtLatitude(lat)
	if !(period > 0) {
		return x
	}
	if w := x + period; w >= p.minX && w <= p.maxX {
		return w
	}
	if w := x - period; w >= p.minX && w <= p.maxX {
		return w
	}
	return x
}

func (p *Projection) String() string {
	return fmt.Sprintf("Projection[%v -> %dx%d]", p.bounds, p.target.Width, p.target.Height)
}
