package coord

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CRS converts between a projected coordinate reference system and WGS84.
type CRS interface {
	// ToWGS84 converts CRS coordinates to WGS84 longitude/latitude (degrees).
	ToWGS84(x, y float64) (lon, lat float64)

	// FromWGS84 converts WGS84 longitude/latitude (degrees) to CRS coordinates.
	FromWGS84(lon, lat float64) (x, y float64)

	// EPSG returns the EPSG code for this CRS.
	EPSG() int
}

// Well-known identifiers accepted by Lookup.
const (
	EPSG4326   = "EPSG:4326"
	EPSG3857   = "EPSG:3857"
	EPSG900913 = "EPSG:900913"
	EPSG102100 = "EPSG:102100"
	EPSG2056   = "EPSG:2056"
)

// Parsed CRS definitions are immutable, so one instance per code is shared by
// every request. singleflight keeps concurrent first lookups from building
// the same definition twice.
var (
	crsCache  sync.Map // "EPSG:n" -> CRS
	crsLoader singleflight.Group
)

// Lookup returns the CRS for an identifier such as "EPSG:3857", "3857",
// "urn:ogc:def:crs:EPSG::3857" or "CRS:84". Unknown identifiers yield a
// *ConfigurationError wrapping ErrUnsupportedCRS.
func Lookup(code string) (CRS, error) {
	key, err := NormalizeCode(code)
	if err != nil {
		return nil, configErr("lookup crs", err)
	}
	if c, ok := crsCache.Load(key); ok {
		return c.(CRS), nil
	}
	v, err, _ := crsLoader.Do(key, func() (any, error) {
		if c, ok := crsCache.Load(key); ok {
			return c, nil
		}
		c, err := buildCRS(key)
		if err != nil {
			return nil, err
		}
		crsCache.Store(key, c)
		return c, nil
	})
	if err != nil {
		return nil, configErr("lookup crs", err)
	}
	return v.(CRS), nil
}

// ForEPSG returns the CRS for an EPSG code, or nil if it is not supported.
func ForEPSG(epsg int) CRS {
	c, err := Lookup("EPSG:" + strconv.Itoa(epsg))
	if err != nil {
		return nil
	}
	return c
}

// NormalizeCode canonicalises a CRS identifier to "EPSG:<n>".
func NormalizeCode(code string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(code))
	switch s {
	case "CRS:84", "OGC:CRS84", "URN:OGC:DEF:CRS:OGC:1.3:CRS84", "WGS84":
		return EPSG4326, nil
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCRS, code)
	}
	return "EPSG:" + strconv.Itoa(n), nil
}

func buildCRS(key string) (CRS, error) {
	switch key {
	case EPSG4326:
		return WGS84Identity{}, nil
	case EPSG3857, "EPSG:3785":
		return WebMercatorProj{epsg: 3857}, nil
	case EPSG900913:
		return WebMercatorProj{epsg: 900913}, nil
	case EPSG102100:
		return WebMercatorProj{epsg: 102100}, nil
	case EPSG2056:
		return SwissLV95{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCRS, key)
	}
}

// WGS84Identity is a no-op CRS for data already in EPSG:4326 (x=lon, y=lat).
type WGS84Identity struct{}

func (WGS84Identity) ToWGS84(x, y float64) (lon, lat float64)   { return x, y }
func (WGS84Identity) FromWGS84(lon, lat float64) (x, y float64) { return lon, lat }
func (WGS84Identity) EPSG() int                                 { return 4326 }
func (WGS84Identity) Cylindrical() bool                         { return true }
