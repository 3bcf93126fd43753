package wcs

import "math"

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi

	// cosCMin is the smallest cos(angular distance) at which the gnomonic
	// projection is still considered defined. Positions at or beyond 90
	// degrees from the tangent point project to infinity.
	cosCMin = 1e-12
)

// project maps a sky position to intermediate coordinates (degrees) about
// the frame's reference sky position. ok is false where the projection is
// undefined for the given position.
func (f *Frame) project(s Sky) (xi, eta float64, ok bool) {
	switch f.projection {
	case ProjectionLinear:
		return s.RA - f.refSky.RA, s.Dec - f.refSky.Dec, true
	default: // ProjectionTangent
		ra0 := f.refSky.RA * degToRad
		dec0 := f.refSky.Dec * degToRad
		ra := s.RA * degToRad
		dec := s.Dec * degToRad

		sinDec0, cosDec0 := math.Sincos(dec0)
		sinDec, cosDec := math.Sincos(dec)
		cosDRA := math.Cos(ra - ra0)

		cosC := sinDec0*sinDec + cosDec0*cosDec*cosDRA
		if cosC < cosCMin {
			return 0, 0, false
		}

		xi = cosDec * math.Sin(ra-ra0) / cosC
		eta = (cosDec0*sinDec - sinDec0*cosDec*cosDRA) / cosC
		return xi * radToDeg, eta * radToDeg, true
	}
}

// deproject maps intermediate coordinates (degrees) back to a sky
// position. ok is false for non-finite inputs.
func (f *Frame) deproject(xi, eta float64) (Sky, bool) {
	if math.IsNaN(xi) || math.IsNaN(eta) || math.IsInf(xi, 0) || math.IsInf(eta, 0) {
		return Sky{}, false
	}

	switch f.projection {
	case ProjectionLinear:
		return Sky{RA: f.refSky.RA + xi, Dec: f.refSky.Dec + eta}, true
	default: // ProjectionTangent
		x := xi * degToRad
		y := eta * degToRad
		rho := math.Hypot(x, y)
		if rho == 0 {
			return f.refSky, true
		}

		ra0 := f.refSky.RA * degToRad
		dec0 := f.refSky.Dec * degToRad
		sinDec0, cosDec0 := math.Sincos(dec0)

		c := math.Atan(rho)
		sinC, cosC := math.Sincos(c)

		dec := math.Asin(cosC*sinDec0 + y*sinC*cosDec0/rho)
		ra := ra0 + math.Atan2(x*sinC, rho*cosDec0*cosC-y*sinDec0*sinC)

		return Sky{RA: normalizeRA(ra * radToDeg), Dec: dec * radToDeg}, true
	}
}

// normalizeRA wraps right ascension into [0, 360).
func normalizeRA(ra float64) float64 {
	ra = math.Mod(ra, 360)
	if ra < 0 {
		ra += 360
	}
	return ra
}
