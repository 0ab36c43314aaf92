package coord

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func mustProjection(t *testing.T, b Bounds, tg Target) *Projection {
	t.Helper()
	p, err := New(b, tg)
	if err != nil {
		t.Fatalf("New(%v, %v): %v", b, tg, err)
	}
	return p
}

func TestNew_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		bounds Bounds
		target Target
		is     error
	}{
		{"zero width", Bounds{EPSG4326, 10, 0, 10, 20}, Target{100, 100}, ErrZeroExtent},
		{"zero height", Bounds{EPSG4326, 0, 5, 20, 5}, Target{100, 100}, ErrZeroExtent},
		{"inverted y", Bounds{EPSG4326, 0, 20, 20, 0}, Target{100, 100}, ErrZeroExtent},
		{"nan", Bounds{EPSG4326, math.NaN(), 0, 20, 20}, Target{100, 100}, ErrZeroExtent},
		{"zero target", Bounds{EPSG4326, 0, 0, 20, 20}, Target{0, 100}, ErrInvalidTarget},
		{"negative target", Bounds{EPSG4326, 0, 0, 20, 20}, Target{100, -1}, ErrInvalidTarget},
		{"unsupported crs", Bounds{"EPSG:32632", 0, 0, 20, 20}, Target{100, 100}, ErrUnsupportedCRS},
		{"swiss antimeridian", Bounds{EPSG2056, 2_700_000, 1_100_000, 2_500_000, 1_200_000}, Target{100, 100}, ErrZeroExtent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.bounds, tt.target)
			if err == nil {
				t.Fatal("New returned nil error")
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("error %v is not a *ConfigurationError", err)
			}
			if !errors.Is(err, tt.is) {
				t.Errorf("error %v does not wrap %v", err, tt.is)
			}
		})
	}
}

func TestProjection_RoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		bounds Bounds
	}{
		{"wgs84", Bounds{EPSG4326, 100, -40, 160, 0}},
		{"mercator", Bounds{EPSG3857, 11_131_949, -4_865_942, 17_811_118, 0}},
		{"google alias", Bounds{"EPSG:900913", 11_131_949, -4_865_942, 17_811_118, 0}},
	}
	points := [][2]float64{{-35.3075, 149.1244}, {-10, 110}, {-33.86, 151.2}, {-20, 130.5}}
	for _, tc := range cases {
		p := mustProjection(t, tc.bounds, Target{300, 200})
		for _, pt := range points {
			x, y := p.ToPixel(pt[0], pt[1])
			got := p.ToGeo(x, y)
			if math.Abs(got.Lat()-pt[0]) > 1e-6 || math.Abs(got.Lon()-pt[1]) > 1e-6 {
				t.Errorf("%s: ToGeo(ToPixel(%v, %v)) = %v", tc.name, pt[0], pt[1], got)
			}
		}
	}
}

func TestProjection_Corners(t *testing.T) {
	p := mustProjection(t, Bounds{EPSG4326, -10, -5, 10, 5}, Target{200, 100})
	tests := []struct {
		lat, lon float64
		x, y     float64
	}{
		{5, -10, 0, 0},
		{-5, 10, 200, 100},
		{0, 0, 100, 50},
	}
	for _, tt := range tests {
		x, y := p.ToPixel(tt.lat, tt.lon)
		if math.Abs(x-tt.x) > 1e-9 || math.Abs(y-tt.y) > 1e-9 {
			t.Errorf("ToPixel(%v, %v) = (%v, %v), want (%v, %v)", tt.lat, tt.lon, x, y, tt.x, tt.y)
		}
	}
	if got := p.ToPoint(0.01, 0.01); got.X != 100 || got.Y != 50 {
		t.Errorf("ToPoint(0.01, 0.01) = %v, want (100,50)", got)
	}
}

func TestProjection_Antimeridian(t *testing.T) {
	p := mustProjection(t, Bounds{EPSG4326, 170, -10, -170, 10}, Target{100, 100})

	xe, _ := p.ToPixel(0, 179.9)
	xw, _ := p.ToPixel(0, -179.9)
	if math.Abs(xe-49.5) > 1e-9 {
		t.Errorf("ToPixel(0, 179.9).x = %v, want 49.5", xe)
	}
	if math.Abs(xw-50.5) > 1e-9 {
		t.Errorf("ToPixel(0, -179.9).x = %v, want 50.5", xw)
	}
	if d := math.Abs(xw - xe); d > 1.5 {
		t.Errorf("points either side of the antimeridian are %v px apart", d)
	}

	if got := p.ToGeo(75, 50); math.Abs(got.Lon()-(-175)) > 1e-9 {
		t.Errorf("ToGeo(75, 50).Lon() = %v, want -175", got.Lon())
	}
}

func TestProjection_MercatorAntimeridian(t *testing.T) {
	b := Bounds{EPSG3857, 18_924_313.4349, -4_865_942, -18_924_313.4349, 0}
	p := mustProjection(t, b, Target{300, 200})
	xe, _ := p.ToPixel(-20, 179.95)
	xw, _ := p.ToPixel(-20, -179.95)
	if xe < 0 || xe > 300 || xw < 0 || xw > 300 {
		t.Fatalf("antimeridian points off canvas: %v, %v", xe, xw)
	}
	if d := math.Abs(xw - xe); d > 2 {
		t.Errorf("points either side of the antimeridian are %v px apart", d)
	}
}

func TestProjection_OutsideBoundsNotRewrapped(t *testing.T) {
	p := mustProjection(t, Bounds{EPSG4326, 0, 0, 10, 10}, Target{100, 100})
	x, _ := p.ToPixel(5, -20)
	if math.Abs(x-(-200)) > 1e-9 {
		t.Errorf("ToPixel(5, -20).x = %v, want -200", x)
	}
}

func TestProjection_PeriodAtLatitude(t *testing.T) {
	p := mustProjection(t, Bounds{EPSG4326, 0, 0, 10, 10}, Target{10, 10})
	for _, lat := range []float64{0, 45, -60} {
		if got := p.PeriodAtLatitude(lat); got != 360 {
			t.Errorf("PeriodAtLatitude(%v) = %v, want 360", lat, got)
		}
	}

	m := mustProjection(t, TileBounds(2, 1, 1), Target{256, 256})
	if got := m.PeriodAtLatitude(30); math.Abs(got-EarthCircumference) > 1 {
		t.Errorf("mercator PeriodAtLatitude(30) = %v, want ~%v", got, EarthCircumference)
	}

	s := mustProjection(t, Bounds{EPSG2056, 2_500_000, 1_100_000, 2_700_000, 1_250_000}, Target{10, 10})
	if got := s.PeriodAtLatitude(46); got != 0 {
		t.Errorf("swiss PeriodAtLatitude(46) = %v, want 0", got)
	}
}

// sinusoidal is a periodic CRS whose period shrinks towards the poles.
type sinusoidal struct{}

func (sinusoidal) ToWGS84(x, y float64) (lon, lat float64) {
	return x / math.Cos(y*math.Pi/180), y
}
func (sinusoidal) FromWGS84(lon, lat float64) (x, y float64) {
	return lon * math.Cos(lat*math.Pi/180), lat
}
func (sinusoidal) EPSG() int { return 0 }

func TestProjection_PeriodMemo(t *testing.T) {
	// Cylindrical: one period, nothing memoised however many rows rewrap.
	p := mustProjection(t, Bounds{EPSG4326, 170, -80, -170, 80}, Target{100, 1000})
	for y := 0; y < 1000; y++ {
		lat := 80 - float64(y)*0.16
		p.ToPixel(lat, -179.9)
	}
	if n := p.nPeriod.Load(); n != 0 {
		t.Errorf("cylindrical CRS memoised %d periods, want 0", n)
	}

	s := &Projection{crs: sinusoidal{}}
	if got := s.PeriodAtLatitude(60); math.Abs(got-180) > 1e-9 {
		t.Errorf("sinusoidal PeriodAtLatitude(60) = %v, want 180", got)
	}
	for i := 0; i < 3*maxPeriods; i++ {
		lat := -89 + 178*float64(i)/(3*maxPeriods)
		want := 360 * math.Cos(lat*math.Pi/180)
		if got := s.PeriodAtLatitude(lat); math.Abs(got-want) > 1e-9 {
			t.Fatalf("sinusoidal PeriodAtLatitude(%v) = %v, want %v", lat, got, want)
		}
	}
	if n := s.nPeriod.Load(); n > maxPeriods {
		t.Errorf("memoised %d periods, want at most %d", n, maxPeriods)
	}
}

func TestProjection_Concurrent(t *testing.T) {
	p := mustProjection(t, Bounds{EPSG4326, 170, -10, -170, 10}, Target{100, 100})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				lat := float64((i*j)%20 - 10)
				x, y := p.ToPixel(lat, 175)
				got := p.ToGeo(x, y)
				if math.Abs(got.Lon()-175) > 1e-6 {
					t.Errorf("concurrent round trip lon = %v", got.Lon())
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
