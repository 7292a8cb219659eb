// Package advdiff discretizes the 1D advection-diffusion equation
//
//	u_t = diff*u_xx - vel*u_x + q
//
// on [0, L) with linear finite elements on a uniform mesh, either
// periodic or with homogeneous Dirichlet ends. The semidiscrete form
// is Ml*du/dt = q - A*u with a lumped mass Ml, exposed as an
// integrate.System so exponential steppers can advect at CFL numbers
// far above the explicit limit.
package advdiff

import (
	"math"

	"bitbucket.org/expmlab/kiops/integrate"
	"bitbucket.org/expmlab/kiops/linop"
	"github.com/op/go-logging"
	"gonum.org/v1/gonum/floats"
)

var log = logging.MustGetLogger("advdiff")

// Problem is an assembled advection-diffusion discretization.
type Problem struct {
	Nx       int
	L        float64
	Vel      float64
	Diff     float64
	Periodic bool

	// X holds the node coordinates: nx nodes for periodic meshes,
	// nx+1 otherwise.
	X []float64
	// Ml is the lumped mass, the row sums of the consistent mass.
	Ml []float64
	// A is the assembled stiffness plus advection matrix.
	A *linop.CSR

	// op is -A with rows divided by Ml and Dirichlet rows zeroed,
	// the Jacobian of the semidiscrete system.
	op *linop.CSR
}

// NewProblem assembles the operator on nx elements. Element (a, b)
// contributes diff/h*[[1,-1],[-1,1]] and vel/2*[[-1,1],[-1,1]]; the
// lumped mass gets h/2 per element node.
func NewProblem(nx int, l, vel, diff float64, periodic bool) *Problem {
	if nx < 2 {
		panic("advdiff: need at least two elements")
	}
	if l <= 0 {
		panic("advdiff: nonpositive domain length")
	}
	h := l / float64(nx)
	n := nx + 1
	if periodic {
		n = nx
	}

	coo := linop.NewCOO(n)
	ml := make([]float64, n)
	for e := 0; e < nx; e++ {
		a, b := e, e+1
		if periodic {
			b = (e + 1) % nx
		}
		ml[a] += h / 2
		ml[b] += h / 2
		kd := diff / h
		coo.Add(a, a, kd)
		coo.Add(a, b, -kd)
		coo.Add(b, a, -kd)
		coo.Add(b, b, kd)
		kc := vel / 2
		coo.Add(a, a, -kc)
		coo.Add(a, b, kc)
		coo.Add(b, a, -kc)
		coo.Add(b, b, kc)
	}
	csr := coo.ToCSR()

	scale := make([]float64, n)
	for i := range scale {
		scale[i] = -1 / ml[i]
	}
	if !periodic {
		// pinned ends: time derivative rows vanish
		scale[0] = 0
		scale[n-1] = 0
	}

	p := &Problem{
		Nx:       nx,
		L:        l,
		Vel:      vel,
		Diff:     diff,
		Periodic: periodic,
		X:        make([]float64, n),
		Ml:       ml,
		A:        csr,
		op:       csr.ScaleRows(scale),
	}
	for i := range p.X {
		p.X[i] = float64(i) * h
	}
	log.Debugf("assembled %d nodes, h=%g, %d nonzeros", n, h, csr.NNZ())
	return p
}

// N returns the number of nodes.
func (p *Problem) N() int {
	return len(p.X)
}

// H returns the mesh spacing.
func (p *Problem) H() float64 {
	return p.L / float64(p.Nx)
}

// Jacobian returns -Ml^-1*A with Dirichlet rows zeroed.
func (p *Problem) Jacobian() linop.Operator {
	return p.op
}

// System wraps the problem with a constant source q (nil means zero)
// for time integration.
func (p *Problem) System(q []float64) integrate.System {
	qs := make([]float64, p.N())
	if q != nil {
		if len(q) != p.N() {
			panic(linop.ErrDim)
		}
		linop.NewDiag(p.Ml).ApplyInv(qs, q)
		if !p.Periodic {
			qs[0], qs[p.N()-1] = 0, 0
		}
	}
	return &system{p: p, qs: qs}
}

type system struct {
	p  *Problem
	qs []float64
}

func (s *system) Dim() int {
	return s.p.N()
}

func (s *system) RHS(dst []float64, t float64, u []float64) {
	s.p.op.Apply(dst, u)
	floats.Add(dst, s.qs)
}

func (s *system) Jacobian(t float64, u []float64) linop.Operator {
	return s.p.op
}

// dist returns the distance between two points, on the torus for
// periodic problems.
func (p *Problem) dist(x, xp float64) float64 {
	if !p.Periodic {
		return math.Abs(x - xp)
	}
	dx := math.Abs(wrap(x, p.L) - wrap(xp, p.L))
	if dx > p.L/2 {
		return p.L - dx
	}
	return dx
}

// wrap maps x into [0, l).
func wrap(x, l float64) float64 {
	m := math.Mod(x, l)
	if m < 0 {
		m += l
	}
	return m
}
