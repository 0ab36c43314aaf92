package coord

// SwissLV95 is EPSG:2056 (CH1903+ / LV95) using swisstopo's approximate
// polynomial formulas, accurate to about a metre inside Switzerland.
type SwissLV95 struct{}

// Bern reference point of the polynomial expansion.
const (
	lv95E0 = 2_600_000.0
	lv95N0 = 1_200_000.0

	bernLatSec = 169028.66
	bernLonSec = 26782.5
)

func (SwissLV95) EPSG() int { return 2056 }

// Periodic reports false: the polynomial is only meaningful near Bern.
func (SwissLV95) Periodic() bool { return false }

// ToWGS84 converts easting/northing to longitude/latitude in degrees.
func (SwissLV95) ToWGS84(easting, northing float64) (lon, lat float64) {
	// Offsets from Bern in units of 1000 km.
	y := (easting - lv95E0) / 1e6
	x := (northing - lv95N0) / 1e6

	lon10k := 2.6779094 + y*(4.728982+0.791484*x+0.1306*x*x-0.0436*y*y)
	lat10k := 16.9023892 + 3.238272*x - 0.270978*y*y - 0.002528*x*x - 0.0447*y*y*x - 0.0140*x*x*x

	// 10000" units to degrees.
	return lon10k * 100 / 36, lat10k * 100 / 36
}

// FromWGS84 converts longitude/latitude in degrees to easting/northing.
func (SwissLV95) FromWGS84(lon, lat float64) (easting, northing float64) {
	phi := (lat*3600 - bernLatSec) / 10000
	lam := (lon*3600 - bernLonSec) / 10000

	easting = 2_600_072.37 + lam*(211_455.93-10_938.51*phi-0.36*phi*phi-44.54*lam*lam)
	northing = 1_200_147.07 + 308_807.95*phi + 3_745.25*lam*lam + 76.63*phi*phi -
		194.56*lam*lam*phi + 119.79*phi*phi*phi
	return easting, northing
}
