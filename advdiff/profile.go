package advdiff

import (
	"fmt"
	"math"
)

// Profile is an initial condition evaluated at a point.
type Profile func(p *Problem, x float64) float64

// GaussIC is a Gaussian bump centered at 0.3*L with width 0.05*L.
func GaussIC(p *Problem, x float64) float64 {
	wc, ww := 0.3*p.L, 0.05*p.L
	d := p.dist(x, wc) / (2 * ww)
	return math.Exp(-d * d)
}

// SquareIC is a unit square wave on [0.1*L, 0.4*L].
func SquareIC(p *Problem, x float64) float64 {
	mean, half := 0.25*p.L, 0.15*p.L
	if p.dist(mean, x) < half {
		return 1
	}
	return 0
}

// ZeroIC is identically zero.
func ZeroIC(p *Problem, x float64) float64 {
	return 0
}

// NewProfile returns a profile from its command line name.
func NewProfile(name string) (Profile, error) {
	switch name {
	case "gauss":
		return GaussIC, nil
	case "square":
		return SquareIC, nil
	case "zero":
		return ZeroIC, nil
	}
	return nil, fmt.Errorf("Unknown initial condition: %s", name)
}

// Sample evaluates a profile at the mesh nodes.
func (p *Problem) Sample(f Profile) []float64 {
	u := make([]float64, p.N())
	for i, x := range p.X {
		u[i] = f(p, x)
	}
	return u
}

// ExactAdvection samples the profile shifted by vel*t, the exact
// solution of the pure advection equation on the torus. It is the
// error reference of the periodic demos with diff = 0.
func (p *Problem) ExactAdvection(f Profile, t float64) []float64 {
	u := make([]float64, p.N())
	for i, x := range p.X {
		u[i] = f(p, x-t*p.Vel)
	}
	return u
}

// Norms returns the mass-weighted l1 and l2 errors and the max norm
// of ref - u.
func Norms(u, ref, ml []float64) (l1, l2, linf float64) {
	for i := range u {
		err := math.Abs(ref[i] - u[i])
		l1 += err * ml[i]
		l2 += err * err * ml[i]
		if err > linf {
			linf = err
		}
	}
	l2 = math.Sqrt(l2)
	return l1, l2, linf
}
