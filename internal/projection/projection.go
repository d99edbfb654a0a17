// Package projection implements the closed-form EPSG:3857 (Web Mercator)
// to EPSG:4326 (WGS84) conversion the tile prioritizer and loader rely on.
//
// A general CRS-reprojection library is not needed here: the core only
// ever sees Web Mercator tiles against WGS84 viewport bounds, so the
// transform is inlined instead of depending on an authority-lookup
// library or a network call to resolve EPSG codes.
package projection

import (
	"fmt"
	"math"
	"regexp"
)

// semiMajorAxis is the WGS84 equatorial radius in meters, the sphere
// radius Web Mercator projects onto.
const semiMajorAxis = 6378137.0

// originShift is S = π · semiMajorAxis, the scale factor used by both
// halves of the forward/inverse transform.
var originShift = math.Pi * semiMajorAxis

// Definition describes a normalized EPSG:3857 projection record: name
// "merc", unit "meter", origin at zero lat/lng, scale 1.
type Definition struct {
	Name      string
	Unit      string
	SemiMajor float64
	SemiMinor float64
	OriginLat float64
	OriginLng float64
	Scale     float64
}

// WebMercator3857 is the normalized projection definition this package
// implements.
var WebMercator3857 = Definition{
	Name:      "merc",
	Unit:      "meter",
	SemiMajor: semiMajorAxis,
	SemiMinor: semiMajorAxis,
	OriginLat: 0,
	OriginLng: 0,
	Scale:     1,
}

// WebMercatorToWGS84 converts EPSG:3857 meters to EPSG:4326 degrees.
func WebMercatorToWGS84(x, y float64) (lng, lat float64) {
	lng = x / originShift * 180
	lat = math.Atan(math.Exp(y/originShift*math.Pi))*(360/math.Pi) - 90
	return lng, lat
}

// WGS84ToWebMercator converts EPSG:4326 degrees to EPSG:3857 meters.
func WGS84ToWebMercator(lng, lat float64) (x, y float64) {
	x = lng * originShift / 180
	y = math.Log(math.Tan((90+lat)*math.Pi/360)) * originShift / 180 * (180 / math.Pi)
	return x, y
}

// Converter holds a forward/inverse pair of coordinate transforms between
// two projections.
type Converter struct {
	Forward func(x, y float64) (float64, float64)
	Inverse func(x, y float64) (float64, float64)
}

// ErrUnsupportedProjection is returned by CreateConverter for any EPSG
// pair other than (3857,4326), (4326,3857), or identity.
var ErrUnsupportedProjection = fmt.Errorf("projection: unsupported EPSG pair")

var epsgDigits = regexp.MustCompile(`\d+`)

// epsgCode extracts the decimal digit run from an EPSG code that may or
// may not carry the "EPSG:" prefix (e.g. "EPSG:3857" or "3857").
func epsgCode(code string) (string, bool) {
	m := epsgDigits.FindString(code)
	return m, m != ""
}

// CreateConverter returns a forward/inverse Converter for the ordered
// pair (src, tgt). Supported pairs are (3857,4326), (4326,3857), and
// identity (src == tgt, any recognized code). Any other pair fails with
// ErrUnsupportedProjection.
func CreateConverter(src, tgt string) (Converter, error) {
	srcCode, ok := epsgCode(src)
	if !ok {
		return Converter{}, fmt.Errorf("projection: malformed source code %q: %w", src, ErrUnsupportedProjection)
	}
	tgtCode, ok := epsgCode(tgt)
	if !ok {
		return Converter{}, fmt.Errorf("projection: malformed target code %q: %w", tgt, ErrUnsupportedProjection)
	}

	identity := Converter{
		Forward: func(x, y float64) (float64, float64) { return x, y },
		Inverse: func(x, y float64) (float64, float64) { return x, y },
	}

	switch {
	case srcCode == tgtCode:
		return identity, nil
	case srcCode == "3857" && tgtCode == "4326":
		return Converter{Forward: WebMercatorToWGS84, Inverse: WGS84ToWebMercator}, nil
	case srcCode == "4326" && tgtCode == "3857":
		return Converter{Forward: WGS84ToWebMercator, Inverse: WebMercatorToWGS84}, nil
	default:
		return Converter{}, fmt.Errorf("projection: EPSG:%s -> EPSG:%s: %w", srcCode, tgtCode, ErrUnsupportedProjection)
	}
}
