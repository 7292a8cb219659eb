package integrate

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// NewStepper returns a stepper from its command line name.
func NewStepper(method string, opts Options) (Stepper, error) {
	switch method {
	case "exprb2":
		return NewExpRB2(opts), nil
	case "epi3":
		return NewEPI3(opts), nil
	case "rk4":
		return NewRK4(), nil
	}
	return nil, fmt.Errorf("Unknown integration method: %s", method)
}

// ExpRB2 is the exponential Rosenbrock-Euler scheme,
//
//	u+ = u + phi_1(dt*J) * dt*f(u),
//
// second order, one phi evaluation per step. On a linear autonomous
// system a single step reproduces exp(dt*A)*u exactly (up to the phi
// evaluation), whatever the step size.
type ExpRB2 struct {
	opts Options
}

// NewExpRB2 creates a Rosenbrock-Euler stepper.
func NewExpRB2(opts Options) *ExpRB2 {
	return &ExpRB2{opts: opts}
}

// Name returns the command line name of the stepper.
func (s *ExpRB2) Name() string { return "exprb2" }

// Order returns the classical order of the stepper.
func (s *ExpRB2) Order() int { return 2 }

// Step advances u from t to t+dt.
func (s *ExpRB2) Step(sys System, t, dt float64, u []float64) ([]float64, error) {
	n := sys.Dim()
	f := make([]float64, n)
	sys.RHS(f, t, u)
	jac := sys.Jacobian(t, u)

	b1 := make([]float64, n)
	floats.AddScaled(b1, dt, f)
	w, err := s.opts.phiCombination(jac, dt, [][]float64{make([]float64, n), b1})
	if err != nil {
		return nil, err
	}
	floats.Add(w, u)
	return w, nil
}

// EPI3 is the two-step third-order exponential propagation scheme
//
//	u+ = u + phi_1(dt*J) * dt*f(u) + phi_2(dt*J) * (2/3)*dt*r,
//	r  = f(u_prev) - f(u) - J*(u_prev - u),
//
// with J and f evaluated at the current state. The remainder term r
// needs the previous solution at the same step size, so the first
// step (and any step after a step size change) falls back to
// Rosenbrock-Euler.
type EPI3 struct {
	opts   Options
	prevU  []float64
	prevF  []float64
	prevDt float64
}

// NewEPI3 creates a two-step EPI stepper.
func NewEPI3(opts Options) *EPI3 {
	return &EPI3{opts: opts}
}

// Name returns the command line name of the stepper.
func (s *EPI3) Name() string { return "epi3" }

// Order returns the classical order of the stepper.
func (s *EPI3) Order() int { return 3 }

// Step advances u from t to t+dt.
func (s *EPI3) Step(sys System, t, dt float64, u []float64) ([]float64, error) {
	n := sys.Dim()
	f := make([]float64, n)
	sys.RHS(f, t, u)
	jac := sys.Jacobian(t, u)

	if s.prevU == nil || dt != s.prevDt {
		log.Debugf("epi3: no usable history at t=%g, taking a Rosenbrock-Euler step", t)
		b1 := make([]float64, n)
		floats.AddScaled(b1, dt, f)
		w, err := s.opts.phiCombination(jac, dt, [][]float64{make([]float64, n), b1})
		if err != nil {
			return nil, err
		}
		floats.Add(w, u)
		s.remember(dt, u, f)
		return w, nil
	}

	r := make([]float64, n)
	dv := make([]float64, n)
	floats.SubTo(dv, s.prevU, u)
	jac.Apply(r, dv)
	for i := range r {
		r[i] = s.prevF[i] - f[i] - r[i]
	}

	b1 := make([]float64, n)
	floats.AddScaled(b1, dt, f)
	b2 := make([]float64, n)
	floats.AddScaled(b2, 2.0/3.0*dt, r)
	w, err := s.opts.phiCombination(jac, dt, [][]float64{make([]float64, n), b1, b2})
	if err != nil {
		return nil, err
	}
	floats.Add(w, u)
	s.remember(dt, u, f)
	return w, nil
}

func (s *EPI3) remember(dt float64, u, f []float64) {
	s.prevU = append(s.prevU[:0], u...)
	s.prevF = append(s.prevF[:0], f...)
	s.prevDt = dt
}

// Reset drops the stored previous step, forcing a bootstrap step.
func (s *EPI3) Reset() {
	s.prevU = nil
	s.prevF = nil
}

// RK4 is the classical fourth-order explicit Runge-Kutta scheme. It
// needs no Jacobian and serves as a non-stiff cross-check for the
// exponential steppers.
type RK4 struct{}

// NewRK4 creates a classical Runge-Kutta stepper.
func NewRK4() *RK4 {
	return &RK4{}
}

// Name returns the command line name of the stepper.
func (s *RK4) Name() string { return "rk4" }

// Order returns the classical order of the stepper.
func (s *RK4) Order() int { return 4 }

// Step advances u from t to t+dt.
func (s *RK4) Step(sys System, t, dt float64, u []float64) ([]float64, error) {
	n := sys.Dim()
	k1 := make([]float64, n)
	k2 := make([]float64, n)
	k3 := make([]float64, n)
	k4 := make([]float64, n)
	stage := make([]float64, n)

	sys.RHS(k1, t, u)
	floats.AddScaledTo(stage, u, dt/2, k1)
	sys.RHS(k2, t+dt/2, stage)
	floats.AddScaledTo(stage, u, dt/2, k2)
	sys.RHS(k3, t+dt/2, stage)
	floats.AddScaledTo(stage, u, dt, k3)
	sys.RHS(k4, t+dt, stage)

	w := make([]float64, n)
	copy(w, u)
	floats.AddScaled(w, dt/6, k1)
	floats.AddScaled(w, dt/3, k2)
	floats.AddScaled(w, dt/3, k3)
	floats.AddScaled(w, dt/6, k4)
	return w, nil
}
