package integrate

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"bitbucket.org/expmlab/kiops/checkpoint"
)

// failing is a stepper that always errors.
type failing struct{}

func (failing) Step(sys System, t, dt float64, u []float64) ([]float64, error) {
	return nil, errors.New("no step for you")
}
func (failing) Name() string { return "failing" }
func (failing) Order() int   { return 0 }

func TestRunnerReachesTMax(tst *testing.T) {
	r := NewRunner(riccati{}, NewRK4(), 0, []float64{0.5})
	r.Quiet = true
	st, err := r.Run(1, 0.15)
	if err != nil {
		tst.Fatal("Unexpected error:", err)
	}
	if math.Abs(st.T-1) > 1e-9 {
		tst.Error("Expected T=1, got", st.T)
	}
	// six full steps and a short one
	if st.Step != 7 {
		tst.Error("Expected 7 steps, got", st.Step)
	}
	if !st.Final {
		tst.Error("Expected a final state")
	}
	if math.Abs(st.U[0]-1) > 1e-4 {
		tst.Error("Expected u(1)=1, got", st.U[0])
	}
	if r.T() != st.T || r.Step() != st.Step {
		tst.Error("Accessors disagree with the returned state")
	}
}

func TestRunnerNonpositiveDt(tst *testing.T) {
	r := NewRunner(riccati{}, NewRK4(), 0, []float64{0.5})
	r.Quiet = true
	if _, err := r.Run(1, 0); err == nil {
		tst.Error("Expected error for dt=0")
	}
}

func TestRunnerStepperError(tst *testing.T) {
	r := NewRunner(riccati{}, failing{}, 0, []float64{0.5})
	r.Quiet = true
	if _, err := r.Run(1, 0.1); err == nil {
		tst.Error("Expected stepper error to propagate")
	}
}

func TestRunnerCheckpointRoundTrip(tst *testing.T) {
	fn := filepath.Join(tst.TempDir(), "checkpoint.db")
	sys := newLinear(4, 5)
	u0 := randomVec(4, 9)

	saver, err := checkpoint.NewSaver(fn)
	if err != nil {
		tst.Fatal("Unexpected error:", err)
	}
	ra := NewRunner(sys, NewRK4(), 0, u0)
	ra.Quiet = true
	ra.SetSaver(saver)
	if _, err := ra.Run(1, 0.1); err != nil {
		tst.Fatal("Unexpected error:", err)
	}
	if err := saver.Close(); err != nil {
		tst.Fatal("Unexpected error:", err)
	}

	saver, err = checkpoint.NewSaver(fn)
	if err != nil {
		tst.Fatal("Unexpected error:", err)
	}
	defer saver.Close()
	var st State
	found, err := saver.Load("state", &st)
	if err != nil {
		tst.Fatal("Unexpected error:", err)
	}
	if !found {
		tst.Fatal("Expected a saved state")
	}
	if !st.Final {
		tst.Error("Expected a final state")
	}
	if st.Step != 10 {
		tst.Error("Expected 10 steps, got", st.Step)
	}
	if math.Abs(st.T-1) > 1e-9 {
		tst.Error("Expected T=1, got", st.T)
	}

	// resuming and finishing must match an uninterrupted run exactly:
	// JSON round-trips float64 losslessly and the step sequence is
	// identical
	rb := NewRunner(sys, NewRK4(), 0, make([]float64, 4))
	rb.Quiet = true
	rb.Resume(&st)
	stB, err := rb.Run(2, 0.1)
	if err != nil {
		tst.Fatal("Unexpected error:", err)
	}

	rc := NewRunner(sys, NewRK4(), 0, u0)
	rc.Quiet = true
	stC, err := rc.Run(2, 0.1)
	if err != nil {
		tst.Fatal("Unexpected error:", err)
	}

	if stB.Step != stC.Step {
		tst.Error("Expected ", stC.Step, " steps, got", stB.Step)
	}
	if !vecClose(stB.U, stC.U, 1e-12, 1e-14) {
		tst.Error("Expected ", stC.U, ", got", stB.U)
	}
}
