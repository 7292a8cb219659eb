// Package krylov approximates the action of phi functions of large
// linear operators: w = phi_k(dt*A)*b and the combinations
// sum_j phi_j(dt*A)*b_j used by exponential integrators. Both are
// built on an Arnoldi process with incomplete orthogonalization, so
// operators only need to provide their action on a vector.
package krylov

import (
	"math"

	"bitbucket.org/expmlab/kiops/linop"
	"github.com/op/go-logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var log = logging.MustGetLogger("krylov")

// DefaultBreakdownTol is the relative threshold below which the next
// Krylov vector counts as numerically zero: a happy breakdown that
// stops the sweep with an invariant subspace.
const DefaultBreakdownTol = 1.0 / (1 << 53)

// Basis is the outcome of an Arnoldi sweep over an operator of
// dimension N: M orthonormal vectors stored back to back in V, the
// (M+1) x M upper Hessenberg projection H and the seed norm Beta.
// After a happy breakdown Happy is set and V holds exactly M vectors;
// otherwise it holds M+1, the extra one generated by the last step.
// A zero seed yields M = 0 with V and H nil.
type Basis struct {
	N, M  int
	Beta  float64
	Happy bool
	V     []float64
	H     *mat.Dense
}

// Vec returns basis vector j.
func (b *Basis) Vec(j int) []float64 {
	return b.V[j*b.N : (j+1)*b.N]
}

// Arnoldi runs up to m steps of the Arnoldi iteration on op seeded
// with seed, orthogonalizing each new vector against the previous
// iom basis vectors (modified Gram-Schmidt). iom >= m reorthogonalizes
// fully; small windows give the incomplete variant that trades
// orthogonality for O(iom*n) work per step, exact for symmetric
// operators with iom = 2. m is capped at the operator dimension.
//
// tol is the relative breakdown threshold; tol <= 0 uses
// DefaultBreakdownTol. The candidate norm is compared against the
// largest Hessenberg column sum seen so far.
func Arnoldi(op linop.Operator, seed []float64, m, iom int, tol float64) *Basis {
	n := op.Dim()
	if len(seed) != n {
		panic(linop.ErrDim)
	}
	if m < 1 {
		panic("krylov: nonpositive subspace dimension")
	}
	if iom < 1 {
		panic("krylov: nonpositive orthogonalization window")
	}
	if m > n {
		m = n
	}
	if tol <= 0 {
		tol = DefaultBreakdownTol
	}

	b := &Basis{N: n, Beta: floats.Norm(seed, 2)}
	if b.Beta == 0 {
		b.Happy = true
		return b
	}

	v := make([]float64, (m+1)*n)
	copy(v, seed)
	floats.Scale(1/b.Beta, v[:n])
	h := mat.NewDense(m+1, m, nil)
	w := make([]float64, n)

	hmax := 0.0
	vecs := 1
	for j := 0; j < m; j++ {
		op.Apply(w, v[j*n:(j+1)*n])
		start := j - iom + 1
		if start < 0 {
			start = 0
		}
		colsum := 0.0
		for i := start; i <= j; i++ {
			vi := v[i*n : (i+1)*n]
			hij := floats.Dot(vi, w)
			floats.AddScaled(w, -hij, vi)
			h.Set(i, j, hij)
			colsum += math.Abs(hij)
		}
		hj := floats.Norm(w, 2)
		h.Set(j+1, j, hj)
		colsum += hj
		if colsum > hmax {
			hmax = colsum
		}
		b.M = j + 1
		if hj <= tol*hmax {
			b.Happy = true
			log.Debugf("happy breakdown at step %d: %g <= %g", b.M, hj, tol*hmax)
			break
		}
		next := v[(j+1)*n : (j+2)*n]
		copy(next, w)
		floats.Scale(1/hj, next)
		vecs = j + 2
	}
	b.V = v[:vecs*n]
	if b.M < m {
		b.H = mat.DenseCopyOf(h.Slice(0, b.M+1, 0, b.M))
	} else {
		b.H = h
	}
	return b
}
