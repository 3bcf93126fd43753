package wcs

// Convention selects where the distortion polynomial acts in the
// transform pipeline.
type Convention int

const (
	// ConventionSIP applies the polynomial to pixel offsets from the
	// reference pixel, before the linear matrix (the FITS SIP standard).
	ConventionSIP Convention = iota

	// ConventionTPV applies the polynomial to intermediate world
	// coordinates, after the linear matrix (TPV-style).
	ConventionTPV
)

func (c Convention) String() string {
	if c == ConventionTPV {
		return "TPV"
	}
	return "SIP"
}

// Exponent is an (i, j) exponent pair of one polynomial term u^i * v^j.
type Exponent struct {
	I int
	J int
}

// Poly is a 2-D polynomial stored as an ordered-by-key mapping from
// exponent pair to coefficient. A nil or empty Poly evaluates to zero.
type Poly map[Exponent]float64

// Eval evaluates the polynomial at (u, v).
func (p Poly) Eval(u, v float64) float64 {
	if len(p) == 0 {
		return 0
	}
	sum := 0.0
	for e, c := range p {
		sum += c * powInt(u, e.I) * powInt(v, e.J)
	}
	return sum
}

// powInt computes x^n for small non-negative integer exponents by
// repeated multiplication; distortion orders never exceed single digits.
func powInt(x float64, n int) float64 {
	r := 1.0
	for ; n > 0; n-- {
		r *= x
	}
	return r
}

func (p Poly) clone() Poly {
	if p == nil {
		return nil
	}
	out := make(Poly, len(p))
	for e, c := range p {
		out[e] = c
	}
	return out
}

// Distortion is a polynomial correction attached to a frame.
//
// A and B are the forward corrections for the first and second axis: the
// corrected coordinates are (u + A(u,v), v + B(u,v)), where (u, v) are
// pixel offsets (SIP) or intermediate world coordinates (TPV) depending
// on the convention.
//
// AP and BP, when present, give the closed-form inverse in the same
// space: (U + AP(U,V), V + BP(U,V)) recovers the uncorrected coordinates.
// Frames without AP/BP fall back to the iterative inverse.
type Distortion struct {
	Convention Convention
	A          Poly
	B          Poly
	AP         Poly
	BP         Poly
}

// HasInverse reports whether the model carries explicit inverse
// coefficients on either axis.
func (d *Distortion) HasInverse() bool {
	return d != nil && (len(d.AP) > 0 || len(d.BP) > 0)
}

// forward returns the corrected coordinates (u + A(u,v), v + B(u,v)).
func (d *Distortion) forward(u, v float64) (float64, float64) {
	return u + d.A.Eval(u, v), v + d.B.Eval(u, v)
}

// inverse returns the closed-form inverse correction. Only meaningful
// when HasInverse is true.
func (d *Distortion) inverse(u, v float64) (float64, float64) {
	return u + d.AP.Eval(u, v), v + d.BP.Eval(u, v)
}

func (d Distortion) clone() Distortion {
	return Distortion{
		Convention: d.Convention,
		A:          d.A.clone(),
		B:          d.B.clone(),
		AP:         d.AP.clone(),
		BP:         d.BP.clone(),
	}
}
