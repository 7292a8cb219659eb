// Package integrate advances stiff ODE systems du/dt = f(t, u) with
// exponential integrators built on Krylov phi-function evaluation.
// Systems expose their right-hand side and a Jacobian as a linear
// operator; steppers combine the two into one time step, and a Runner
// drives the step loop with progress reporting, checkpointing and
// signal handling.
package integrate

import (
	"fmt"

	"bitbucket.org/expmlab/kiops/krylov"
	"bitbucket.org/expmlab/kiops/linop"
	"bitbucket.org/expmlab/kiops/matexp"
	"github.com/op/go-logging"
	"gonum.org/v1/gonum/floats"
)

var log = logging.MustGetLogger("integrate")

// System is an ODE system du/dt = f(t, u).
type System interface {
	// Dim returns the number of unknowns.
	Dim() int
	// RHS writes f(t, u) into dst.
	RHS(dst []float64, t float64, u []float64)
	// Jacobian returns df/du at (t, u) as a linear operator. Exponential
	// steppers only apply it to vectors, so matrix-free systems work.
	Jacobian(t float64, u []float64) linop.Operator
}

// Stepper advances a system by one time step. Implementations return a
// fresh slice and leave u untouched, so callers may keep history.
type Stepper interface {
	Step(sys System, t, dt float64, u []float64) ([]float64, error)
	Name() string
	Order() int
}

// Options controls how steppers evaluate phi-function actions.
type Options struct {
	// MaxKrylovDim caps the Krylov subspace size per step.
	MaxKrylovDim int
	// IOM is the incomplete orthogonalization window.
	IOM int
	// NSteps splits the phi evaluation into substeps for stiff spectra.
	NSteps int
	// PhiMethod selects the phi kernel: "kiops" for the adaptive Krylov
	// evaluation, or the name of a partial fraction table (see
	// matexp.PFDMethods) to solve shifted systems directly.
	PhiMethod string
}

// DefaultOptions returns the settings used by the command line tool.
func DefaultOptions() Options {
	return Options{
		MaxKrylovDim: 160,
		IOM:          10,
		NSteps:       1,
		PhiMethod:    "kiops",
	}
}

// phiCombination evaluates sum_j phi_j(dt*jac)*b[j] according to the
// options, either through one KIOPS call or by direct partial fraction
// solves per order.
func (o Options) phiCombination(jac linop.Operator, dt float64, b [][]float64) ([]float64, error) {
	if o.PhiMethod == "" || o.PhiMethod == "kiops" {
		return krylov.Kiops(jac, dt, b, o.MaxKrylovDim, o.IOM, o.NSteps), nil
	}
	if _, err := matexp.LookupPFD(o.PhiMethod); err != nil {
		return nil, err
	}
	scaled := linop.Scale(dt, jac)
	w := make([]float64, jac.Dim())
	for j, bj := range b {
		if bj == nil || allZero(bj) {
			continue
		}
		wj, err := matexp.PhiPFD(scaled, bj, j, o.PhiMethod)
		if err != nil {
			return nil, fmt.Errorf("phi_%d action: %v", j, err)
		}
		floats.Add(w, wj)
	}
	return w, nil
}

func allZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
