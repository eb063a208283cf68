package tracker

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

const metresPerFoot = 0.3048

// DeclinationFunc returns the magnetic declination in degrees (+East, -West)
// at a position and time.
type DeclinationFunc func(lat, lon, altFt float64, at time.Time) (float64, error)

// WMMDeclination evaluates the World Magnetic Model
func WMMDeclination(lat, lon, altFt float64, at time.Time) (float64, error) {
	loc := egm96.NewLocationGeodetic(lat, lon, altFt*metresPerFoot)
	mag, err := wmm.CalculateWMMMagneticField(loc, at)
	if err != nil {
		return 0, err
	}
	return mag.D(), nil
}

// trueHeading applies a declination to a magnetic heading
func trueHeading(magnetic, declination float64) float64 {
	h := math.Mod(magnetic+declination, 360)
	if h < 0 {
		h += 360
	}
	return h
}
