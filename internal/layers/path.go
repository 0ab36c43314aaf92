package layers

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/pspoerri/wmsoverlay/internal/coord"
	"github.com/pspoerri/wmsoverlay/internal/geo"
)

const (
	// DefaultMaxGapPixels is the largest screen distance between consecutive
	// vertices of a densified great-circle edge.
	DefaultMaxGapPixels = 20.0

	// Edges shorter than this are never subdivided; near the antimeridian
	// short edges can project far apart.
	minSplitKm = 20.0

	// A longitude jump larger than this between consecutive vertices is
	// taken as an antimeridian crossing and starts a new screen path.
	wrapJumpDegrees = 300.0
)

// JoinPixels densifies the great circle from a to b until consecutive
// positions are less than maxGap pixels apart on screen. The result starts
// with a and ends with b.
func JoinPixels(proj *coord.Projection, a, b geo.Position, maxGap float64) []geo.Position {
	if maxGap < 2 {
		maxGap = 2
	}
	out := []geo.Position{a}
	return append(out, joinPixels(proj, a, b, maxGap)...)
}

// joinPixels returns the densified path from a to b without a.
func joinPixels(proj *coord.Projection, a, b geo.Position, maxGap float64) []geo.Position {
	pa := proj.ToPoint(a.Lat(), a.Lon())
	pb := proj.ToPoint(b.Lat(), b.Lon())
	dx, dy := float64(pb.X-pa.X), float64(pb.Y-pa.Y)
	if a.DistanceKm(b) <= minSplitKm || math.Hypot(dx, dy) < maxGap {
		return []geo.Position{b}
	}
	mid, err := a.AlongPath(b, 0.5)
	if err != nil {
		return []geo.Position{b}
	}
	return append(joinPixels(proj, a, mid, maxGap), joinPixels(proj, mid, b, maxGap)...)
}

// ScreenPaths converts a sequence of positions to pixel polylines, densifying
// each edge along its great circle. The sequence is broken into separate
// polylines wherever consecutive longitudes jump across the antimeridian.
func ScreenPaths(proj *coord.Projection, positions []geo.Position, maxGap float64) []orb.LineString {
	var paths []orb.LineString
	var cur orb.LineString
	var last geo.Position
	for i, p := range positions {
		p = p.NormalizeLongitude()
		if i == 0 {
			cur = orb.LineString{pixel(proj, p)}
			last = p
			continue
		}
		if math.Abs(p.Lon()-last.Lon()) > wrapJumpDegrees {
			if len(cur) > 1 {
				paths = append(paths, cur)
			}
			cur = orb.LineString{pixel(proj, p)}
		} else {
			for _, q := range joinPixels(proj, last, p, maxGap) {
				cur = append(cur, pixel(proj, q))
			}
		}
		last = p
	}
	if len(cur) > 1 {
		paths = append(paths, cur)
	}
	return paths
}

func pixel(proj *coord.Projection, p geo.Position) orb.Point {
	x, y := proj.ToPixel(p.Lat(), p.Lon())
	return orb.Point{x, y}
}

// Circle returns n positions on the circle of radius radiusKm around center,
// starting due north and closed by repeating the first position. Longitudes
// are kept continuous with the center so the ring does not split at the
// antimeridian.
func Circle(center geo.Position, radiusKm float64, n int) []geo.Position {
	if n < 3 {
		n = 3
	}
	c := center.NormalizeLongitude()
	out := make([]geo.Position, 0, n+1)
	for i := 0; i < n; i++ {
		bearing := 360 * float64(i) / float64(n)
		p := c.Predict(radiusKm, bearing).NormalizeLongitude().EnsureContinuous(c)
		out = append(out, p)
	}
	return append(out, out[0])
}
