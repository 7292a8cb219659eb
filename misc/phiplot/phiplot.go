// phiplot draws the first phi functions, or the accuracy of their
// partial fraction approximations, on an interval.
package main

import (
	"flag"
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"bitbucket.org/expmlab/kiops/linop"
	"bitbucket.org/expmlab/kiops/matexp"
)

// pfdScalar evaluates the partial fraction approximation of phi_k at
// a scalar argument.
func pfdScalar(z float64, k int, method string) float64 {
	r, err := matexp.PhiPFD(linop.NewDiag([]float64{z}), []float64{1}, k, method)
	if err != nil {
		panic(err)
	}
	return r[0]
}

// curve returns phi_k or, for a non-empty method name, the log10
// error of its partial fraction approximation.
func curve(k int, method string) func(float64) float64 {
	if method == "" {
		return func(z float64) float64 {
			return matexp.PhiScalar(z, k)
		}
	}
	return func(z float64) float64 {
		diff := math.Abs(pfdScalar(z, k, method) - matexp.PhiScalar(z, k))
		return math.Log10(diff + 1e-18)
	}
}

func main() {
	kmax := flag.Int("kmax", 3, "highest phi order to draw")
	xmin := flag.Float64("xmin", -10, "left end of the interval")
	xmax := flag.Float64("xmax", 2, "right end of the interval")
	pfd := flag.String("pfd", "", "plot the error of this partial fraction method instead of the functions")
	samples := flag.Int("samples", 400, "samples per curve")
	out := flag.String("out", "phi.png", "output file name")
	flag.Parse()

	p := plot.New()
	p.Title.Text = "phi functions"
	p.X.Label.Text = "z"
	p.Y.Label.Text = "phi_k(z)"
	if *pfd != "" {
		if _, err := matexp.LookupPFD(*pfd); err != nil {
			panic(err)
		}
		p.Title.Text = *pfd + " approximation error"
		p.Y.Label.Text = "log10 |error|"
	}

	ymin, ymax := math.Inf(1), math.Inf(-1)
	for k := 0; k <= *kmax; k++ {
		g := curve(k, *pfd)
		f := plotter.NewFunction(g)
		f.Samples = *samples
		f.Color = plotutil.Color(k)
		p.Add(f)
		p.Legend.Add(fmt.Sprintf("phi_%d", k), f)

		// Function plotters do not report a data range.
		for i := 0; i < *samples; i++ {
			y := g(*xmin + (*xmax-*xmin)*float64(i)/float64(*samples-1))
			ymin = math.Min(ymin, y)
			ymax = math.Max(ymax, y)
		}
	}

	pad := 0.05 * (ymax - ymin)
	p.X.Min, p.X.Max = *xmin, *xmax
	p.Y.Min, p.Y.Max = ymin-pad, ymax+pad
	p.Legend.Top = true
	p.Legend.Left = true

	if err := p.Save(6*vg.Inch, 4*vg.Inch, *out); err != nil {
		panic(err)
	}
}
