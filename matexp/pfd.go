package matexp

import (
	"fmt"
	"math"
	"sort"

	"bitbucket.org/expmlab/kiops/linop"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PFDTable is the partial fraction decomposition of a rational
// approximation to exp on the negative real axis,
//
//	R(z) = Alpha0 + sum_l ( Alpha_l/(z-Theta_l) + conj ),
//
// stored with one representative per conjugate pole pair. Tables with
// a real pole are not representable and are rejected at construction.
type PFDTable struct {
	Name string
	// Theta holds the upper half-plane poles.
	Theta []complex128
	// Alpha holds the residues matching Theta.
	Alpha []complex128
	// Alpha0 is the value of R at infinity.
	Alpha0 float64
}

var pfdRegistry = make(map[string]*PFDTable)

// padePQ lists the registered Pade approximants. The low orders at
// the head are kept for experiments; they are far too inaccurate for
// the default tolerances of the integrators.
var padePQ = [][2]int{
	{2, 2}, {1, 2}, {0, 4},
	{0, 14}, {0, 16},
	{6, 6}, {8, 8}, {10, 10},
	{5, 6}, {7, 8}, {9, 10},
	{4, 6}, {6, 8}, {8, 10},
}

func init() {
	pfdRegistry[cram16.Name] = cram16
	for _, pq := range padePQ {
		t, err := padeTable(pq[0], pq[1])
		if err != nil {
			log.Panicf("pade_%d_%d table: %v", pq[0], pq[1], err)
		}
		pfdRegistry[t.Name] = t
	}
}

// cram16 is the order (16,16) Chebyshev rational approximation of exp
// on the negative real axis. Poles and residues were fitted offline
// by least squares against exp on [-50, 0]; the error of the table is
// below 1e-6 there and keeps decaying deeper into the left half
// plane.
var cram16 = &PFDTable{
	Name: "cram_16",
	Theta: []complex128{
		complex(-1.0843917078696988e+01, 1.9277446167181651e+01),
		complex(-5.2649713434426468e+00, 1.6220221473167928e+01),
		complex(5.9481522689511772e+00, 3.5874573620183221e+00),
		complex(3.5091036084149181e+00, 8.4361989858843742e+00),
		complex(6.4161776990994346e+00, 1.1941223933701386e+00),
		complex(1.4193758971856660e+00, 1.0925363484496723e+01),
		complex(4.9931747377179967e+00, 5.9968817136039423e+00),
		complex(-1.4139284624888862e+00, 1.3497725698892745e+01),
	},
	Alpha: []complex128{
		complex(-4.7206102537935959e-02, -2.7564610053086434e-02),
		complex(1.3188911924573407e-01, -3.6029566034292299e-01),
		complex(1.1466817228668748e+02, 9.9811696335167753e+01),
		complex(1.2106957570990108e+01, -5.7355428527597514e+00),
		complex(-6.2452600493167900e+01, -2.2525680234294236e+02),
		complex(-1.9440018516521087e+00, 4.0215748435939762e+00),
		complex(-6.3658612292146110e+01, -1.3862295767926245e+01),
		complex(1.2153860885477252e+00, 1.9383720814469249e-01),
	},
	Alpha0: 2.1248537104952237e-16,
}

// PFDMethods returns the registered table names, sorted.
func PFDMethods() []string {
	names := make([]string, 0, len(pfdRegistry))
	for name := range pfdRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupPFD returns the named table.
func LookupPFD(name string) (*PFDTable, error) {
	t, ok := pfdRegistry[name]
	if !ok {
		return nil, fmt.Errorf("matexp: unknown PFD method %s (have %v)", name, PFDMethods())
	}
	return t, nil
}

// padeCoeffs returns the polynomial coefficients of the (p, q) Pade
// approximant to exp, numerator and denominator, with the convention
// num[0] = den[0] = 1.
func padeCoeffs(p, q int) (num, den []float64) {
	num = make([]float64, p+1)
	den = make([]float64, q+1)
	num[0], den[0] = 1, 1
	for j := 0; j < p; j++ {
		num[j+1] = num[j] * float64(p-j) / float64((p+q-j)*(j+1))
	}
	for j := 0; j < q; j++ {
		den[j+1] = -den[j] * float64(q-j) / float64((p+q-j)*(j+1))
	}
	return num, den
}

// padePoles computes the denominator roots as eigenvalues of the
// companion matrix.
func padePoles(den []float64) ([]complex128, error) {
	q := len(den) - 1
	c := mat.NewDense(q, q, nil)
	for i := 0; i < q; i++ {
		if i > 0 {
			c.Set(i, i-1, 1)
		}
		c.Set(i, q-1, -den[i]/den[q])
	}
	var eig mat.Eigen
	if ok := eig.Factorize(c, mat.EigenNone); !ok {
		return nil, fmt.Errorf("matexp: companion eigendecomposition failed for order %d", q)
	}
	return eig.Values(nil), nil
}

func horner(coeffs []float64, z complex128) complex128 {
	v := complex(coeffs[len(coeffs)-1], 0)
	for j := len(coeffs) - 2; j >= 0; j-- {
		v = v*z + complex(coeffs[j], 0)
	}
	return v
}

func hornerDeriv(coeffs []float64, z complex128) complex128 {
	var v complex128
	for j := len(coeffs) - 1; j >= 1; j-- {
		v = v*z + complex(float64(j)*coeffs[j], 0)
	}
	return v
}

// padeTable builds the partial fraction table of the (p, q) Pade
// approximant, residues alpha_l = N(theta_l)/D'(theta_l). Requires
// p <= q (otherwise R grows at infinity) and even q so the poles pair
// up into conjugates.
func padeTable(p, q int) (*PFDTable, error) {
	if p > q {
		return nil, fmt.Errorf("matexp: pade %d/%d is unbounded at infinity", p, q)
	}
	num, den := padeCoeffs(p, q)
	poles, err := padePoles(den)
	if err != nil {
		return nil, err
	}
	t := &PFDTable{Name: fmt.Sprintf("pade_%d_%d", p, q)}
	if p == q {
		t.Alpha0 = num[p] / den[q]
	}
	for _, th := range poles {
		if imag(th) <= 0 {
			continue
		}
		t.Theta = append(t.Theta, th)
		t.Alpha = append(t.Alpha, horner(num, th)/hornerDeriv(den, th))
	}
	if 2*len(t.Theta) != q {
		return nil, fmt.Errorf("matexp: pade %d/%d has a real pole", p, q)
	}
	return t, nil
}

// PhiCoeffs returns the constant term and per-pair residues of the
// phi_k form of the table,
//
//	phi_k(z) ~ c0 + sum_l ( ahat_l/(z-Theta_l) + conj ),
//
// with ahat_l = Alpha_l/Theta_l^k and, for k >= 1,
// c0 = 1/k! + sum_l 2 Re(Alpha_l/Theta_l^(k+1)). For k = 0 the table
// is returned as stored.
func (t *PFDTable) PhiCoeffs(k int) (c0 float64, ahat []complex128) {
	ahat = make([]complex128, len(t.Theta))
	if k == 0 {
		copy(ahat, t.Alpha)
		return t.Alpha0, ahat
	}
	c0 = 1 / factorial(k)
	for l, th := range t.Theta {
		pk := complex(1, 0)
		for j := 0; j < k; j++ {
			pk *= th
		}
		ahat[l] = t.Alpha[l] / pk
		c0 += 2 * real(t.Alpha[l]/(pk*th))
	}
	return c0, ahat
}

// Eval evaluates the phi_k approximation at a real scalar. Meant for
// accuracy checks and plotting; matrix arguments go through PhiPFD.
func (t *PFDTable) Eval(z float64, k int) float64 {
	c0, ahat := t.PhiCoeffs(k)
	v := c0
	for l, th := range t.Theta {
		v += 2 * real(ahat[l]/(complex(z, 0)-th))
	}
	return v
}

// shiftCancelTol is the relative 1-norm below which a shifted
// quadratic counts as cancelled to roundoff noise.
const shiftCancelTol = 1e-12

// PhiPFD evaluates w = phi_k(A)*b through the partial fraction form
// of the named table. Each conjugate pole pair theta costs one real
// solve with the quadratic shift
//
//	M = A^2 - 2 Re(theta) A + |theta|^2 I,
//
// and contributes 2 Re(ahat) (A y) - 2 Re(ahat conj(theta)) y with
// M y = b, so no complex arithmetic is needed. The operator is
// densified once for the shifted factorizations. A pole hitting an
// operator eigenvalue makes M singular; that comes back wrapped as
// ErrSingularShift.
func PhiPFD(op linop.Operator, b []float64, k int, method string) ([]float64, error) {
	t, err := LookupPFD(method)
	if err != nil {
		return nil, err
	}
	n := op.Dim()
	if len(b) != n {
		panic(linop.ErrDim)
	}

	a := linop.AsDense(op)
	a2 := mat.NewDense(n, n, nil)
	a2.Mul(a, a)
	anorm := mat.Norm(a, 1)

	c0, ahat := t.PhiCoeffs(k)
	w := make([]float64, n)
	floats.AddScaled(w, c0, b)

	m := mat.NewDense(n, n, nil)
	bv := mat.NewVecDense(n, b)
	y := mat.NewVecDense(n, nil)
	ay := make([]float64, n)
	var lu mat.LU
	for l, th := range t.Theta {
		re, im := real(th), imag(th)
		m.Scale(-2*re, a)
		m.Add(m, a2)
		for i := 0; i < n; i++ {
			m.Set(i, i, m.At(i, i)+re*re+im*im)
		}
		// a pole on a conjugate eigenvalue pair of A cancels M down to
		// roundoff noise, which can still factorize with small pivots
		if mat.Norm(m, 1) <= shiftCancelTol*(anorm*anorm+2*math.Abs(re)*anorm+re*re+im*im) {
			return nil, fmt.Errorf("%w: %s pole %v", ErrSingularShift, t.Name, th)
		}
		lu.Factorize(m)
		if err := lu.SolveVecTo(y, false, bv); err != nil {
			return nil, fmt.Errorf("%w: %s pole %v: %v", ErrSingularShift, t.Name, th, err)
		}
		yr := y.RawVector().Data
		op.Apply(ay, yr)
		ah := ahat[l]
		floats.AddScaled(w, 2*real(ah), ay)
		floats.AddScaled(w, -2*(real(ah)*re+imag(ah)*im), yr)
	}
	return w, nil
}
