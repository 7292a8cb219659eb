// Package matexp evaluates matrix phi functions
//
//	phi_k(z) = (e^z - sum_{j<k} z^j/j!) / z^k,  phi_0(z) = e^z,
//
// the building blocks of exponential time integrators. Dense kernels
// cover small matrices (several interchangeable algorithms); the
// partial-fraction evaluator in pfd.go computes phi_k(A)*b through
// shifted linear solves for larger operators.
package matexp

import (
	"errors"
	"fmt"
	"math"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"
)

var log = logging.MustGetLogger("matexp")

var (
	// ErrSingular is returned when the phi recurrence meets a
	// singular matrix.
	ErrSingular = errors.New("matexp: singular matrix")
	// ErrSingularShift is returned when a PFD pole coincides with an
	// eigenvalue of the operator and the shifted system cannot be
	// solved.
	ErrSingularShift = errors.New("matexp: singular shifted system")
)

// factorials holds j! as float64; entries beyond 22 carry the usual
// float64 rounding, which is fine for use as series denominators.
var factorials = func() []float64 {
	f := make([]float64, 40)
	f[0] = 1
	for j := 1; j < len(f); j++ {
		f[j] = f[j-1] * float64(j)
	}
	return f
}()

func factorial(k int) float64 {
	if k < len(factorials) {
		return factorials[k]
	}
	f := factorials[len(factorials)-1]
	for j := len(factorials); j <= k; j++ {
		f *= float64(j)
	}
	return f
}

// PhiScalar evaluates phi_k at a real scalar argument. Small
// arguments use the Taylor series of phi_k; larger ones use the
// upward recurrence phi_{j+1}(z) = (phi_j(z) - 1/j!)/z seeded with
// expm1, which is stable once |z| is away from zero.
func PhiScalar(z float64, k int) float64 {
	if k == 0 {
		return math.Exp(z)
	}
	if z == 0 {
		return 1 / factorial(k)
	}
	if math.Abs(z) < 0.5 {
		term := 1 / factorial(k)
		sum := term
		for j := 1; j <= 30; j++ {
			term *= z / float64(j+k)
			sum += term
			if math.Abs(term) <= 1e-17*math.Abs(sum) {
				break
			}
		}
		return sum
	}
	p := math.Expm1(z) / z
	for j := 1; j < k; j++ {
		p = (p - 1/factorial(j)) / z
	}
	return p
}

func squareDims(a mat.Matrix) int {
	r, c := a.Dims()
	if r != c {
		panic(mat.ErrShape)
	}
	return r
}

// Phi computes phi_k of a dense square matrix via the recurrence
// phi_j(Z) = Z^-1 (phi_{j-1}(Z) - I/(j-1)!) seeded with the matrix
// exponential. One LU factorization of Z is reused across orders.
// Returns ErrSingular when Z is not invertible; use PhiExt or PhiSq
// for singular arguments.
func Phi(a mat.Matrix, k int) (*mat.Dense, error) {
	n := squareDims(a)
	p := mat.NewDense(n, n, nil)
	p.Exp(a)
	if k == 0 {
		return p, nil
	}

	var lu mat.LU
	lu.Factorize(a)
	rhs := mat.NewDense(n, n, nil)
	next := mat.NewDense(n, n, nil)
	for j := 1; j <= k; j++ {
		rhs.Copy(p)
		f := 1 / factorial(j-1)
		for i := 0; i < n; i++ {
			rhs.Set(i, i, rhs.At(i, i)-f)
		}
		if err := lu.SolveTo(next, false, rhs); err != nil {
			// a Condition(+Inf) solve leaves next unwritten
			c, ok := err.(mat.Condition)
			if !ok || math.IsInf(float64(c), 1) {
				return nil, fmt.Errorf("%w: phi recurrence order %d: %v", ErrSingular, j, err)
			}
			log.Warningf("phi recurrence order %d: ill-conditioned solve, cond=%g", j, float64(c))
		}
		p.Copy(next)
	}
	return p, nil
}

// PhiExt computes phi_k through the augmented block matrix
//
//	W = | Z I       |
//	    |   0 I     |
//	    |       ... |
//	    |         0 |
//
// of dimension (k+1)n: block (0, j) of exp(W) equals phi_j(Z). Valid
// for every Z, including singular ones.
func PhiExt(a mat.Matrix, k int) *mat.Dense {
	all := PhiExtAll(a, k)
	return all[k]
}

// PhiExtAll returns phi_0(Z)..phi_k(Z) from a single augmented
// exponential.
func PhiExtAll(a mat.Matrix, k int) []*mat.Dense {
	n := squareDims(a)
	if k == 0 {
		e := mat.NewDense(n, n, nil)
		e.Exp(a)
		return []*mat.Dense{e}
	}
	nn := (k + 1) * n
	w := mat.NewDense(nn, nn, nil)
	w.Slice(0, n, 0, n).(*mat.Dense).Copy(a)
	for blk := 0; blk < k; blk++ {
		for i := 0; i < n; i++ {
			w.Set(blk*n+i, (blk+1)*n+i, 1)
		}
	}
	var e mat.Dense
	e.Exp(w)
	out := make([]*mat.Dense, k+1)
	for j := 0; j <= k; j++ {
		blk := mat.NewDense(n, n, nil)
		blk.Copy(e.Slice(0, n, j*n, (j+1)*n))
		out[j] = blk
	}
	return out
}

// PhiSq computes phi_k by scaling and squaring: the argument is
// scaled by 2^-s so its 1-norm is at most 1/2, phi_0..phi_k are
// evaluated by a short Taylor series, and the doubling recurrence
//
//	phi_m(2A) = ( phi_0(A) phi_m(A) + sum_{j=1..m} phi_j(A)/(m-j)! ) / 2^m
//
// is applied s times. This path stays finite on arguments whose
// unscaled exponential series overflows.
func PhiSq(a mat.Matrix, k int) *mat.Dense {
	all := PhiSqAll(a, k)
	return all[k]
}

// PhiSqAll returns phi_0(Z)..phi_k(Z) sharing the scaling, series and
// squaring work across orders.
func PhiSqAll(a mat.Matrix, k int) []*mat.Dense {
	n := squareDims(a)
	norm := mat.Norm(a, 1)
	s := 0
	if norm > 0.5 {
		s = int(math.Ceil(math.Log2(norm / 0.5)))
	}
	scaled := mat.NewDense(n, n, nil)
	scaled.Scale(1/math.Exp2(float64(s)), a)
	phis := phiTaylorAll(scaled, k)

	tmp := mat.NewDense(n, n, nil)
	for step := 0; step < s; step++ {
		next := make([]*mat.Dense, k+1)
		for m := 0; m <= k; m++ {
			acc := mat.NewDense(n, n, nil)
			acc.Mul(phis[0], phis[m])
			for j := 1; j <= m; j++ {
				tmp.Scale(1/factorial(m-j), phis[j])
				acc.Add(acc, tmp)
			}
			if m > 0 {
				acc.Scale(1/math.Exp2(float64(m)), acc)
			}
			next[m] = acc
		}
		phis = next
	}
	return phis
}

// phiTaylorAll evaluates phi_0..phi_k by the Taylor series
// sum_j Z^j/(j+m)! at an argument with 1-norm at most 1/2, where 20
// terms push the truncation error below unit roundoff.
func phiTaylorAll(z *mat.Dense, k int) []*mat.Dense {
	n, _ := z.Dims()
	const terms = 20
	pow := make([]*mat.Dense, terms+1)
	pow[0] = identity(n)
	for j := 1; j <= terms; j++ {
		pow[j] = mat.NewDense(n, n, nil)
		pow[j].Mul(pow[j-1], z)
	}
	out := make([]*mat.Dense, k+1)
	tmp := mat.NewDense(n, n, nil)
	for m := 0; m <= k; m++ {
		acc := mat.NewDense(n, n, nil)
		for j := 0; j <= terms; j++ {
			tmp.Scale(1/factorial(j+m), pow[j])
			acc.Add(acc, tmp)
		}
		out[m] = acc
	}
	return out
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// PhiApply computes phi_k(Z)*b without forming phi_k(Z): exp of the
// (n+k) augmented matrix [[Z, B],[0, K]] with b in the first column
// of B and K the k×k upper shift carries phi_j(Z)*b in column n+j-1
// of its top block.
func PhiApply(a mat.Matrix, b []float64, k int) []float64 {
	all := PhiApplyAll(a, b, k)
	return all[k]
}

// PhiApplyAll returns phi_j(Z)*b for all j in 0..k from one augmented
// exponential.
func PhiApplyAll(a mat.Matrix, b []float64, k int) [][]float64 {
	n := squareDims(a)
	if len(b) != n {
		panic(mat.ErrShape)
	}
	if k == 0 {
		e := mat.NewDense(n, n, nil)
		e.Exp(a)
		out := make([]float64, n)
		mat.NewVecDense(n, out).MulVec(e, mat.NewVecDense(n, b))
		return [][]float64{out}
	}
	nn := n + k
	w := mat.NewDense(nn, nn, nil)
	w.Slice(0, n, 0, n).(*mat.Dense).Copy(a)
	for i := range b {
		w.Set(i, n, b[i])
	}
	for i := 0; i < k-1; i++ {
		w.Set(n+i, n+i+1, 1)
	}
	var e mat.Dense
	e.Exp(w)

	out := make([][]float64, k+1)
	out[0] = make([]float64, n)
	for j := 1; j <= k; j++ {
		col := make([]float64, n)
		for i := 0; i < n; i++ {
			col[i] = e.At(i, n+j-1)
		}
		out[j] = col
	}
	// order 0 comes from the top-left block of the same exponential
	for i := 0; i < n; i++ {
		s := 0.0
		for j := 0; j < n; j++ {
			s += e.At(i, j) * b[j]
		}
		out[0][i] = s
	}
	return out
}
