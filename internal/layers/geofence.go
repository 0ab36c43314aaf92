package layers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/pspoerri/wmsoverlay/internal/coord"
	"github.com/pspoerri/wmsoverlay/internal/geo"
)

// Canberra is used by the demonstration geofence.
var Canberra = geo.New(-35.3075, 149.1244)

// ErrNoPolygons is returned when a GeoJSON document holds no polygon geometry.
var ErrNoPolygons = errors.New("no polygon geometry")

// Geofence fills the inside of one or more polygons and outlines their rings
// along great circles.
type Geofence struct {
	Common

	Name         string // layer name for metrics and logs, default "geofence"
	Area         orb.MultiPolygon
	Fill         color.Color // nil leaves the inside unfilled
	Outline      color.Color // nil draws no outline
	LineWidth    float64
	MaxGapPixels float64
}

// CanberraBox returns a box 4 degrees of latitude by 8 degrees of longitude
// centred on Canberra.
func CanberraBox() orb.Polygon {
	lat, lon := Canberra.Lat(), Canberra.Lon()
	return orb.Polygon{orb.Ring{
		{lon - 4, lat - 2},
		{lon - 4, lat + 2},
		{lon + 4, lat + 2},
		{lon + 4, lat - 2},
		{lon - 4, lat - 2},
	}}
}

// Contains reports whether p lies inside the area.
func (g *Geofence) Contains(p geo.Position) bool {
	return planar.MultiPolygonContains(g.Area, p.NormalizeLongitude().Point())
}

// Paint renders the layer. It has the compose.LayerFunc signature.
func (g *Geofence) Paint(ctx context.Context, dst *image.RGBA, proj *coord.Projection) error {
	if len(g.Area) == 0 {
		return ErrNoPolygons
	}
	name := g.Name
	if name == "" {
		name = "geofence"
	}
	if g.Fill != nil {
		common := g.Common
		common.Reduce = featureOptions(common.Reduce, proj, smallestBound(g.Area))
		err := fillRegions(ctx, common, name, dst, proj, g.Contains,
			func(inside bool) color.Color {
				if inside {
					return g.Fill
				}
				return nil
			})
		if err != nil {
			return err
		}
	}
	if g.Outline != nil {
		gap := g.MaxGapPixels
		if gap == 0 {
			gap = DefaultMaxGapPixels
		}
		width := g.LineWidth
		if width <= 0 {
			width = 1
		}
		for _, poly := range g.Area {
			for _, ring := range poly {
				strokePaths(dst, ScreenPaths(proj, ringPositions(ring), gap), g.Outline, width)
			}
		}
	}
	return ctx.Err()
}

// smallestBound returns the bound of the polygon with the least area.
func smallestBound(mp orb.MultiPolygon) orb.Bound {
	area := func(b orb.Bound) float64 { return (b.Max.X() - b.Min.X()) * (b.Max.Y() - b.Min.Y()) }
	best := mp[0].Bound()
	for _, p := range mp[1:] {
		if b := p.Bound(); area(b) < area(best) {
			best = b
		}
	}
	return best
}

func ringPositions(r orb.Ring) []geo.Position {
	out := make([]geo.Position, len(r))
	for i, p := range r {
		out[i] = geo.FromPoint(p)
	}
	return out
}

// LoadGeoJSON reads the polygons of a GeoJSON FeatureCollection, Feature or
// bare geometry. Non-polygon geometries are ignored.
func LoadGeoJSON(r io.Reader) (orb.MultiPolygon, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading geojson: %w", err)
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parsing geojson: %w", err)
	}

	var geoms []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("parsing feature collection: %w", err)
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("parsing feature: %w", err)
		}
		geoms = append(geoms, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("parsing geometry: %w", err)
		}
		geoms = append(geoms, g.Geometry())
	}

	var mp orb.MultiPolygon
	for _, g := range geoms {
		switch v := g.(type) {
		case orb.Polygon:
			mp = append(mp, v)
		case orb.MultiPolygon:
			mp = append(mp, v...)
		case orb.Collection:
			for _, c := range v {
				switch cv := c.(type) {
				case orb.Polygon:
					mp = append(mp, cv)
				case orb.MultiPolygon:
					mp = append(mp, cv...)
				}
			}
		}
	}
	if len(mp) == 0 {
		return nil, ErrNoPolygons
	}
	return mp, nil
}
