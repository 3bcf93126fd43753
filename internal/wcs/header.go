package wcs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FromHeader builds a Frame from a FITS-style header mapping.
//
// The loader that produced the mapping is irrelevant; only the documented
// key names matter:
//
//	CRPIX1, CRPIX2           reference pixel (1-based, FITS convention)
//	CRVAL1, CRVAL2           sky position at the reference pixel (degrees)
//	CD1_1 .. CD2_2           linear matrix (degrees/pixel), or
//	CDELT1, CDELT2 [CROTA2]  per-axis scales with optional rotation
//	CTYPE1, CTYPE2           projection, e.g. "RA---TAN", "DEC--TAN";
//	                         a "-SIP" suffix declares SIP distortion
//	A_ORDER, A_i_j, B_i_j    forward SIP coefficients
//	AP_ORDER, AP_i_j, BP_i_j inverse SIP coefficients (optional)
//
// Missing CD and CDELT keys, an unsupported CTYPE, or a singular matrix
// return an error (the latter wrapping ErrInvalidFrame).
func FromHeader(header map[string]string) (*Frame, error) {
	crpix1, err := headerFloat(header, "CRPIX1")
	if err != nil {
		return nil, err
	}
	crpix2, err := headerFloat(header, "CRPIX2")
	if err != nil {
		return nil, err
	}
	crval1, err := headerFloat(header, "CRVAL1")
	if err != nil {
		return nil, err
	}
	crval2, err := headerFloat(header, "CRVAL2")
	if err != nil {
		return nil, err
	}

	cd, err := headerMatrix(header)
	if err != nil {
		return nil, err
	}

	projection, sip, err := headerProjection(header)
	if err != nil {
		return nil, err
	}

	var dist *Distortion
	if sip {
		dist, err = headerSIP(header)
		if err != nil {
			return nil, err
		}
	}

	return NewFrame(
		Pixel{X: crpix1, Y: crpix2},
		Origin1,
		Sky{RA: crval1, Dec: crval2},
		cd,
		projection,
		dist,
	)
}

func headerFloat(header map[string]string, key string) (float64, error) {
	raw, ok := header[key]
	if !ok {
		return 0, fmt.Errorf("header missing required key %s", key)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("header key %s: %w", key, err)
	}
	return v, nil
}

func headerFloatDefault(header map[string]string, key string, def float64) float64 {
	if raw, ok := header[key]; ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return v
		}
	}
	return def
}

// headerMatrix reads the linear matrix, preferring explicit CDi_j keys
// and falling back to CDELT1/CDELT2 with an optional CROTA2 rotation.
func headerMatrix(header map[string]string) (CD, error) {
	if _, ok := header["CD1_1"]; ok {
		var cd CD
		for i, key := range []string{"CD1_1", "CD1_2", "CD2_1", "CD2_2"} {
			cd[i] = headerFloatDefault(header, key, 0)
		}
		return cd, nil
	}

	cdelt1, err1 := headerFloat(header, "CDELT1")
	cdelt2, err2 := headerFloat(header, "CDELT2")
	if err1 != nil || err2 != nil {
		return CD{}, fmt.Errorf("header has neither CD matrix nor CDELT scales")
	}
	rot := headerFloatDefault(header, "CROTA2", 0) * degToRad
	sin, cos := math.Sincos(rot)
	return CD{
		cdelt1 * cos, -cdelt2 * sin,
		cdelt1 * sin, cdelt2 * cos,
	}, nil
}

func headerProjection(header map[string]string) (Projection, bool, error) {
	ctype := strings.Trim(strings.TrimSpace(header["CTYPE1"]), "'\" ")
	if ctype == "" {
		// No CTYPE declared: fall back to a plain linear mapping.
		return ProjectionLinear, false, nil
	}

	sip := strings.HasSuffix(ctype, "-SIP")
	base := strings.TrimSuffix(ctype, "-SIP")

	switch {
	case strings.HasSuffix(base, "-TAN"):
		return ProjectionTangent, sip, nil
	case strings.HasSuffix(base, "-CAR") || base == "LINEAR" || base == "PIXEL":
		return ProjectionLinear, sip, nil
	default:
		return 0, false, fmt.Errorf("unsupported projection in CTYPE1 %q", ctype)
	}
}

// headerSIP reads the forward (and, when present, inverse) SIP
// polynomial coefficients.
func headerSIP(header map[string]string) (*Distortion, error) {
	a, err := headerPoly(header, "A")
	if err != nil {
		return nil, err
	}
	b, err := headerPoly(header, "B")
	if err != nil {
		return nil, err
	}
	if len(a) == 0 && len(b) == 0 {
		return nil, fmt.Errorf("CTYPE declares SIP but no A_i_j/B_i_j coefficients present")
	}

	ap, err := headerPoly(header, "AP")
	if err != nil {
		return nil, err
	}
	bp, err := headerPoly(header, "BP")
	if err != nil {
		return nil, err
	}

	return &Distortion{
		Convention: ConventionSIP,
		A:          a,
		B:          b,
		AP:         ap,
		BP:         bp,
	}, nil
}

// headerPoly collects PREFIX_i_j coefficients up to PREFIX_ORDER.
func headerPoly(header map[string]string, prefix string) (Poly, error) {
	orderRaw, ok := header[prefix+"_ORDER"]
	if !ok {
		return nil, nil
	}
	order, err := strconv.Atoi(strings.TrimSpace(orderRaw))
	if err != nil || order < 0 || order > 9 {
		return nil, fmt.Errorf("invalid %s_ORDER %q", prefix, orderRaw)
	}

	poly := Poly{}
	for i := 0; i <= order; i++ {
		for j := 0; j <= order-i; j++ {
			key := fmt.Sprintf("%s_%d_%d", prefix, i, j)
			raw, ok := header[key]
			if !ok {
				continue
			}
			c, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("header key %s: %w", key, err)
			}
			if c != 0 {
				poly[Exponent{I: i, J: j}] = c
			}
		}
	}
	return poly, nil
}
