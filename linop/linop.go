// Package linop provides a minimal linear-operator abstraction over
// dense, sparse and diagonal storage. Operators expose their action on
// a vector and can be composed lazily into scalings and sums, so the
// Krylov and phi-function code runs identically over every
// representation, including matrix-free ones.
package linop

import (
	"errors"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var log = logging.MustGetLogger("linop")

// ErrDim is the panic value used when operator and vector shapes
// disagree.
var ErrDim = errors.New("linop: dimension mismatch")

// Operator is a square linear operator of a fixed dimension.
// Implementations are immutable after construction; Apply must not
// mutate receiver state, so a single operator is safe for concurrent
// use from multiple evaluations.
type Operator interface {
	// Dim returns the operator dimension n.
	Dim() int
	// Apply computes dst = A*x. Both slices must have length Dim
	// and must not alias; Apply panics with ErrDim on a length
	// mismatch.
	Apply(dst, x []float64)
}

// Denser is implemented by operators that can produce a dense copy of
// themselves cheaply. AsDense falls back to column-by-column
// application for operators without it.
type Denser interface {
	AsDense() *mat.Dense
}

func checkDim(n int, dst, x []float64) {
	if len(dst) != n || len(x) != n {
		panic(ErrDim)
	}
}

// Dense wraps a dense square matrix. The matrix is copied on
// construction.
type Dense struct {
	a *mat.Dense
	n int
}

// NewDense creates a dense operator from any square matrix.
func NewDense(a mat.Matrix) *Dense {
	r, c := a.Dims()
	if r != c {
		panic(ErrDim)
	}
	d := mat.NewDense(r, r, nil)
	d.Copy(a)
	return &Dense{a: d, n: r}
}

func (d *Dense) Dim() int { return d.n }

func (d *Dense) Apply(dst, x []float64) {
	checkDim(d.n, dst, x)
	xv := mat.NewVecDense(d.n, x)
	yv := mat.NewVecDense(d.n, dst)
	yv.MulVec(d.a, xv)
}

func (d *Dense) AsDense() *mat.Dense {
	out := mat.NewDense(d.n, d.n, nil)
	out.Copy(d.a)
	return out
}

// Diag is a diagonal operator storing only the diagonal entries.
type Diag struct {
	d []float64
}

// NewDiag creates a diagonal operator; the slice is copied.
func NewDiag(d []float64) *Diag {
	c := make([]float64, len(d))
	copy(c, d)
	return &Diag{d: c}
}

func (dg *Diag) Dim() int { return len(dg.d) }

func (dg *Diag) Apply(dst, x []float64) {
	checkDim(len(dg.d), dst, x)
	floats.MulTo(dst, dg.d, x)
}

// ApplyInv computes dst = D^-1 * x elementwise. Used for lumped-mass
// division; the caller is responsible for a nonzero diagonal.
func (dg *Diag) ApplyInv(dst, x []float64) {
	checkDim(len(dg.d), dst, x)
	for i, di := range dg.d {
		dst[i] = x[i] / di
	}
}

func (dg *Diag) AsDense() *mat.Dense {
	n := len(dg.d)
	out := mat.NewDense(n, n, nil)
	for i, di := range dg.d {
		out.Set(i, i, di)
	}
	return out
}

// Scaled is the lazy composition c*A.
type Scaled struct {
	c  float64
	op Operator
}

// Scale returns the operator c*op without materializing anything.
func Scale(c float64, op Operator) Operator {
	return &Scaled{c: c, op: op}
}

func (s *Scaled) Dim() int { return s.op.Dim() }

func (s *Scaled) Apply(dst, x []float64) {
	s.op.Apply(dst, x)
	floats.Scale(s.c, dst)
}

func (s *Scaled) AsDense() *mat.Dense {
	out := AsDense(s.op)
	out.Scale(s.c, out)
	return out
}

// Sum is the lazy composition A+B.
type Sum struct {
	a, b Operator
}

// Add returns the operator a+b. The dimensions must agree.
func Add(a, b Operator) Operator {
	if a.Dim() != b.Dim() {
		panic(ErrDim)
	}
	return &Sum{a: a, b: b}
}

// Sub returns the operator a-b.
func Sub(a, b Operator) Operator {
	return Add(a, Scale(-1, b))
}

func (s *Sum) Dim() int { return s.a.Dim() }

func (s *Sum) Apply(dst, x []float64) {
	s.a.Apply(dst, x)
	tmp := make([]float64, len(x))
	s.b.Apply(tmp, x)
	floats.Add(dst, tmp)
}

func (s *Sum) AsDense() *mat.Dense {
	out := AsDense(s.a)
	out.Add(out, AsDense(s.b))
	return out
}

// AsDense returns a dense copy of the operator. Operators implementing
// Denser are copied directly; anything else is densified by applying
// the operator to the unit basis, which costs n applications.
func AsDense(op Operator) *mat.Dense {
	if d, ok := op.(Denser); ok {
		return d.AsDense()
	}
	n := op.Dim()
	log.Debugf("densifying %d-dimensional operator column by column", n)
	out := mat.NewDense(n, n, nil)
	e := make([]float64, n)
	col := make([]float64, n)
	for j := 0; j < n; j++ {
		e[j] = 1
		op.Apply(col, e)
		e[j] = 0
		out.SetCol(j, col)
	}
	return out
}
