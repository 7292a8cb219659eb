package krylov

import (
	"bitbucket.org/expmlab/kiops/linop"
	"bitbucket.org/expmlab/kiops/matexp"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Phiv approximates w = phi_k(dt*A)*b through an m-dimensional Krylov
// projection seeded directly with b,
//
//	w = beta * V_M * phi_k(dt*H_M) e_1,  beta = |b|_2.
//
// The basis depends on A and b only, so dt and k cost nothing extra.
// With m equal to the operator dimension the result is exact up to
// roundoff. A zero b returns the zero vector.
func Phiv(op linop.Operator, dt float64, b []float64, k, m, iom int) []float64 {
	basis := Arnoldi(op, b, m, iom, 0)
	w := make([]float64, op.Dim())
	if basis.M == 0 {
		return w
	}
	hm := mat.DenseCopyOf(basis.H.Slice(0, basis.M, 0, basis.M))
	hm.Scale(dt, hm)
	phi := matexp.PhiSq(hm, k)
	coef := make([]float64, basis.M)
	for i := range coef {
		coef[i] = phi.At(i, 0)
	}
	applyBasis(w, basis, coef)
	return w
}

// applyBasis sets dst = Beta * V_M * coef.
func applyBasis(dst []float64, b *Basis, coef []float64) {
	av := blas64.General{Rows: b.M, Cols: b.N, Stride: b.N, Data: b.V[:b.M*b.N]}
	xv := blas64.Vector{N: b.M, Inc: 1, Data: coef}
	yv := blas64.Vector{N: b.N, Inc: 1, Data: dst}
	blas64.Gemv(blas.Trans, b.Beta, av, xv, 0, yv)
}

// augmented couples the source columns to op so that the exponential
// of the (n+p)-dimensional block matrix
//
//	W = | A  B |     (K v)[i] = v[i+1], last entry 0
//	    | 0  K |
//
// reproduces a phi combination on the leading n entries.
type augmented struct {
	op   linop.Operator
	cols [][]float64
}

func (a *augmented) Dim() int { return a.op.Dim() + len(a.cols) }

func (a *augmented) Apply(dst, x []float64) {
	n := a.op.Dim()
	p := len(a.cols)
	if len(dst) != n+p || len(x) != n+p {
		panic(linop.ErrDim)
	}
	a.op.Apply(dst[:n], x[:n])
	for c, col := range a.cols {
		floats.AddScaled(dst[:n], x[n+c], col)
	}
	for i := 0; i < p-1; i++ {
		dst[n+i] = x[n+i+1]
	}
	dst[n+p-1] = 0
}

// Kiops evaluates the combination
//
//	w = sum_{j=0..p} phi_j(dt*A) * b_j
//
// with one augmented Krylov projection per substep instead of p
// separate builds (the fixed-step variant of the KIOPS algorithm).
// Source column p-j carries b_j/dt^j; the augmented exponential
// reintroduces the dt^j factors, so the sum comes out unweighted.
//
// nSteps splits dt into equal substeps. Each substep Taylor-shifts
// the source columns to its start time and seeds the projection with
// the previous result, which composes exactly: nSteps > 1 targets the
// same combination as nSteps = 1.
//
// dt = 0 short-circuits to sum b_j/j!.
func Kiops(op linop.Operator, dt float64, b [][]float64, m, iom, nSteps int) []float64 {
	n := op.Dim()
	if len(b) == 0 {
		panic("krylov: kiops needs at least one source vector")
	}
	for _, bj := range b {
		if len(bj) != n {
			panic(linop.ErrDim)
		}
	}
	if nSteps < 1 {
		panic("krylov: nonpositive step count")
	}
	p := len(b) - 1

	w := make([]float64, n)
	copy(w, b[0])
	if dt == 0 {
		for j := 1; j <= p; j++ {
			floats.AddScaled(w, matexp.PhiScalar(0, j), b[j])
		}
		return w
	}
	if p == 0 {
		return Phiv(op, dt, b[0], 0, m, iom)
	}

	d := make([][]float64, p+1)
	pow := 1.0
	for j := 1; j <= p; j++ {
		pow *= dt
		d[j] = make([]float64, n)
		floats.AddScaled(d[j], 1/pow, b[j])
	}

	aug := &augmented{op: op, cols: make([][]float64, p)}
	for c := range aug.cols {
		aug.cols[c] = make([]float64, n)
	}

	tau := dt / float64(nSteps)
	seed := make([]float64, n+p)
	out := make([]float64, n+p)
	for i := 0; i < nSteps; i++ {
		sigma := float64(i) * tau
		// column p-ord carries sum_{j>=ord} sigma^(j-ord)/(j-ord)! d_j,
		// the source polynomial shifted to the substep start
		for ord := 1; ord <= p; ord++ {
			col := aug.cols[p-ord]
			for x := range col {
				col[x] = 0
			}
			f := 1.0
			for j := ord; j <= p; j++ {
				if j > ord {
					f *= sigma / float64(j-ord)
				}
				floats.AddScaled(col, f, d[j])
			}
		}

		copy(seed[:n], w)
		for x := n; x < n+p; x++ {
			seed[x] = 0
		}
		seed[n+p-1] = 1

		basis := Arnoldi(aug, seed, m, iom, 0)
		hm := mat.DenseCopyOf(basis.H.Slice(0, basis.M, 0, basis.M))
		hm.Scale(tau, hm)
		expH := matexp.PhiSq(hm, 0)
		coef := make([]float64, basis.M)
		for c := range coef {
			coef[c] = expH.At(c, 0)
		}
		applyBasis(out, basis, coef)
		copy(w, out[:n])
	}
	return w
}
