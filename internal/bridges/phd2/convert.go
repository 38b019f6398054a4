package phd2

import "math"

// ToArcsec converts a pixel-domain measurement into arcseconds.
//
// The caller must ensure the scale is known; there is no error path.
//
// Parameters:
//   - px: Pixel-domain value
//   - scale: Guider image scale in arcsec/pixel
//
// Returns:
//   - float64: px * scale, exact under IEEE-754 double arithmetic
func ToArcsec(px, scale float64) float64 {
	return px * scale
}

// TotalMagnitude returns the Euclidean norm of the RA/Dec error pair,
// still in the pixel domain. Scale separately with ToArcsec.
func TotalMagnitude(ra, dec float64) float64 {
	return math.Sqrt(ra*ra + dec*dec)
}
