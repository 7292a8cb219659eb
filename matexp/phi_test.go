package matexp

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"
)

const smallDiff = 1e-10

// reference grid and phi_k values for k = 0..3, computed in extended
// precision
var refZ = []float64{-2, -1.2, -0.4, 0.4, 1.2, 2}

var refPhi = [4][6]float64{
	{0.13533528323661267, 0.3011942119122021, 0.6703200460356393,
		1.4918246976412706, 3.3201169227365477, 7.389056098930651},
	{0.43233235838169365, 0.5823381567398316, 0.8241998849109018,
		1.229561744103176, 1.933430768947123, 3.1945280494653256},
	{0.28383382080915315, 0.34805153605014033, 0.4395002877227457,
		0.5739043602579396, 0.7778589741226025, 1.0972640247326628},
	{0.10808308959542341, 0.1266237199582164, 0.15124928069313592,
		0.18476090064484876, 0.23154914510216867, 0.29863201236633136},
}

func init() {
	logging.SetLevel(logging.ERROR, "matexp")
	logging.SetLevel(logging.ERROR, "linop")
}

func diagRef() *mat.Dense {
	n := len(refZ)
	d := mat.NewDense(n, n, nil)
	for i, z := range refZ {
		d.Set(i, i, z)
	}
	return d
}

func randomScaled(dim int, rnd *rand.Rand) *mat.Dense {
	a := mat.NewDense(dim, dim, nil)
	s := 1 / math.Sqrt(float64(dim))
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			a.Set(i, j, s*rnd.NormFloat64())
		}
	}
	return a
}

func vecClose(got, want []float64, rtol, atol float64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > atol+rtol*math.Abs(want[i]) {
			return false
		}
	}
	return true
}

func matClose(got, want *mat.Dense, rtol, atol float64) bool {
	gr, gc := got.Dims()
	wr, wc := want.Dims()
	if gr != wr || gc != wc {
		return false
	}
	for i := 0; i < gr; i++ {
		for j := 0; j < gc; j++ {
			if math.Abs(got.At(i, j)-want.At(i, j)) > atol+rtol*math.Abs(want.At(i, j)) {
				return false
			}
		}
	}
	return true
}

func hasNaN(a *mat.Dense) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(a.At(i, j)) {
				return true
			}
		}
	}
	return false
}

func diagOf(a *mat.Dense) []float64 {
	n, _ := a.Dims()
	d := make([]float64, n)
	for i := range d {
		d[i] = a.At(i, i)
	}
	return d
}

/*** Diagonal reference values ***/

func TestPhiDiagReference(tst *testing.T) {
	d := diagRef()
	for k := 0; k < len(refPhi); k++ {
		p, err := Phi(d, k)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		kernels := map[string]*mat.Dense{
			"Phi":    p,
			"PhiExt": PhiExt(d, k),
			"PhiSq":  PhiSq(d, k),
		}
		for name, got := range kernels {
			for i, want := range refPhi[k] {
				if diff := math.Abs(got.At(i, i) - want); diff > smallDiff {
					tst.Error(name, " phi_", k, "(", refZ[i], "): expected ", want, ", got", got.At(i, i))
				}
			}
		}
	}
}

func TestPhiScalarReference(tst *testing.T) {
	for k := 0; k < len(refPhi); k++ {
		for i, z := range refZ {
			got := PhiScalar(z, k)
			if diff := math.Abs(got - refPhi[k][i]); diff > smallDiff {
				tst.Error("PhiScalar(", z, ", ", k, "): expected ", refPhi[k][i], ", got", got)
			}
		}
		want := 1 / factorial(k)
		if got := PhiScalar(0, k); math.Abs(got-want) > smallDiff {
			tst.Error("PhiScalar(0, ", k, "): expected ", want, ", got", got)
		}
	}
	// series and recurrence branches must agree at the switch
	for _, z := range []float64{-0.5, 0.5} {
		lo := PhiScalar(z-1e-9, 2)
		hi := PhiScalar(z+1e-9, 2)
		if math.Abs(lo-hi) > 1e-8 {
			tst.Error("PhiScalar discontinuity near ", z, ": ", lo, " vs ", hi)
		}
	}
}

/*** Agreement between the dense kernels ***/

func TestPhi0AgainstExp(tst *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for _, dim := range []int{5, 10, 15} {
		a := randomScaled(dim, rnd)
		var want mat.Dense
		want.Exp(a)

		p, err := Phi(a, 0)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		if !matClose(p, &want, 1e-8, 1e-8) {
			tst.Error("Phi(a, 0) differs from Exp at dim ", dim)
		}
		if got := PhiExt(a, 0); !matClose(got, &want, 1e-8, 1e-8) {
			tst.Error("PhiExt(a, 0) differs from Exp at dim ", dim)
		}
		if got := PhiSq(a, 0); !matClose(got, &want, 1e-8, 1e-8) {
			tst.Error("PhiSq(a, 0) differs from Exp at dim ", dim)
		}
	}
}

func TestPhiCrossMethods(tst *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for _, dim := range []int{5, 10, 15} {
		// shifted into the left half plane: the recurrence in Phi
		// amplifies error by cond(Z) per order
		a := randomScaled(dim, rnd)
		for i := 0; i < dim; i++ {
			a.Set(i, i, a.At(i, i)-3)
		}
		for k := 1; k < len(refPhi); k++ {
			p, err := Phi(a, k)
			if err != nil {
				tst.Fatal("Error: ", err)
			}
			ext := PhiExt(a, k)
			sq := PhiSq(a, k)
			if !matClose(p, ext, 1e-8, 1e-8) {
				tst.Error("Phi and PhiExt disagree at dim ", dim, " k ", k)
			}
			if !matClose(sq, ext, 1e-8, 1e-8) {
				tst.Error("PhiSq and PhiExt disagree at dim ", dim, " k ", k)
			}
		}
	}
}

func TestPhiAllOrders(tst *testing.T) {
	d := diagRef()
	kMax := len(refPhi) - 1
	for name, all := range map[string][]*mat.Dense{
		"PhiExtAll": PhiExtAll(d, kMax),
		"PhiSqAll":  PhiSqAll(d, kMax),
	} {
		if len(all) != kMax+1 {
			tst.Fatal(name, ": expected ", kMax+1, " matrices, got", len(all))
		}
		for k := 0; k <= kMax; k++ {
			if !vecClose(diagOf(all[k]), refPhi[k][:], 1e-8, smallDiff) {
				tst.Error(name, " order ", k, " diagonal off: got ", diagOf(all[k]))
			}
		}
	}
}

/*** phi_k(A)*b through the augmented exponential ***/

func TestPhiApplyDiagReference(tst *testing.T) {
	d := diagRef()
	b := make([]float64, len(refZ))
	for i := range b {
		b[i] = 1
	}
	for k := 0; k < len(refPhi); k++ {
		got := PhiApply(d, b, k)
		if !vecClose(got, refPhi[k][:], 1e-8, smallDiff) {
			tst.Error("PhiApply order ", k, ": expected ", refPhi[k], ", got", got)
		}
	}
}

func TestPhiApplyAgainstDense(tst *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for _, dim := range []int{5, 10, 15} {
		a := randomScaled(dim, rnd)
		b := make([]float64, dim)
		for i := range b {
			b[i] = rnd.NormFloat64()
		}
		all := PhiApplyAll(a, b, 3)
		dense := PhiExtAll(a, 3)
		for k := 0; k <= 3; k++ {
			want := make([]float64, dim)
			bv := mat.NewVecDense(dim, b)
			mat.NewVecDense(dim, want).MulVec(dense[k], bv)
			if !vecClose(all[k], want, 1e-8, 1e-8) {
				tst.Error("PhiApply order ", k, " dim ", dim, ": expected ", want, ", got", all[k])
			}
		}
	}
}

/*** Singular arguments ***/

func TestPhiSingularMatrix(tst *testing.T) {
	a := mat.NewDense(2, 2, []float64{0, 0, 0, 1})
	if _, err := Phi(a, 1); !errors.Is(err, ErrSingular) {
		tst.Error("Expected ErrSingular, got", err)
	}

	// the augmented and squaring kernels handle singular arguments
	want := []float64{1, math.E - 1}
	if got := diagOf(PhiExt(a, 1)); !vecClose(got, want, 1e-12, 1e-12) {
		tst.Error("PhiExt on singular matrix: expected ", want, ", got", got)
	}
	if got := diagOf(PhiSq(a, 1)); !vecClose(got, want, 1e-12, 1e-12) {
		tst.Error("PhiSq on singular matrix: expected ", want, ", got", got)
	}
}

/*** Stiff decay chain ***/

// stiffChain is a decay chain Jacobian with rates spanning fifteen
// orders of magnitude; its plain Taylor exponential overflows.
func stiffChain() *mat.Dense {
	return mat.NewDense(7, 7, []float64{
		-1.09184201e+01, 3.43078591e+02, -1.93289917e+00, -3.43070825e+02, -6.12955001e+01, -3.37517780e+02, 1.00000000e+00,
		6.86152544e+02, -1.41916547e+08, 7.99798095e+05, 1.41913333e+08, 2.53550186e+07, 1.39616326e+08, 0.00000000e+00,
		0.00000000e+00, 9.70378373e+02, -1.41912046e+08, 8.00033415e+05, 1.39927532e+08, -2.11273868e+07, 0.00000000e+00,
		0.00000000e+00, 0.00000000e+00, 7.99305627e+05, -4.51157505e+03, -7.88129051e+05, 1.18992554e+05, 0.00000000e+00,
		0.00000000e+00, 0.00000000e+00, 0.00000000e+00, 9.98359818e-08, -4.53835201e-06, 8.26712619e-07, 0.00000000e+00,
		0.00000000e+00, 0.00000000e+00, 0.00000000e+00, 0.00000000e+00, 8.26605711e-07, -1.41445064e-07, 0.00000000e+00,
		0.00000000e+00, 0.00000000e+00, 0.00000000e+00, 0.00000000e+00, 0.00000000e+00, 0.00000000e+00, 0.00000000e+00,
	})
}

// taylorExp sums the exponential series without scaling. Used as the
// failing contrast for the stiff chain test.
func taylorExp(a *mat.Dense, terms int) *mat.Dense {
	n, _ := a.Dims()
	acc := identity(n)
	term := identity(n)
	tmp := mat.NewDense(n, n, nil)
	for j := 1; j <= terms; j++ {
		tmp.Mul(term, a)
		term.Scale(1/float64(j), tmp)
		acc.Add(acc, term)
	}
	return acc
}

/*** Benchmark the dense kernels ***/

func BenchmarkPhiSq(b *testing.B) {
	rnd := rand.New(rand.NewSource(42))
	a := randomScaled(40, rnd)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		PhiSqAll(a, 2)
	}
}

func BenchmarkPhiExt(b *testing.B) {
	rnd := rand.New(rand.NewSource(42))
	a := randomScaled(40, rnd)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		PhiExt(a, 2)
	}
}

func TestPhiSqStiffChain(tst *testing.T) {
	z := stiffChain()
	all := PhiSqAll(z, 1)
	phi0, phi1 := all[0], all[1]
	if hasNaN(phi0) || hasNaN(phi1) {
		tst.Fatal("PhiSq produced NaN on the stiff chain")
	}

	// phi_1 Z + I = phi_0 must hold even here
	n, _ := z.Dims()
	calc := mat.NewDense(n, n, nil)
	calc.Mul(phi1, z)
	calc.Add(calc, identity(n))
	if !matClose(calc, phi0, 1e-5, 1e-5) {
		tst.Error("phi_1*Z + I deviates from phi_0 on the stiff chain")
	}

	// the unscaled series must overflow into NaN on this matrix
	if !hasNaN(taylorExp(z, 150)) {
		tst.Error("Expected NaN from the unscaled Taylor series")
	}
}
