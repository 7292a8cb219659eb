package integrate

import (
	"fmt"
	"math"
	"os"
	"os/signal"

	"bitbucket.org/expmlab/kiops/checkpoint"
	"gonum.org/v1/gonum/floats"
)

// State is the serializable snapshot of a run, stored by the
// checkpoint saver and accepted by Resume.
type State struct {
	T     float64
	Step  int
	U     []float64
	Final bool
}

// Runner drives a stepper from an initial condition to a target time,
// reporting progress, saving throttled checkpoints and reacting to
// signals the way long optimizations do.
type Runner struct {
	sys     System
	stepper Stepper
	saver   *checkpoint.Saver

	repPeriod int
	sig       chan os.Signal
	Quiet     bool

	t    float64
	step int
	u    []float64
}

// NewRunner creates a runner starting from u0 at time t0.
func NewRunner(sys System, stepper Stepper, t0 float64, u0 []float64) *Runner {
	u := make([]float64, len(u0))
	copy(u, u0)
	return &Runner{
		sys:       sys,
		stepper:   stepper,
		repPeriod: 10,
		t:         t0,
		u:         u,
	}
}

// WatchSignals installs a handler: on any of the given signals the
// run stops cleanly after the current step and saves a checkpoint.
func (r *Runner) WatchSignals(sigs ...os.Signal) {
	r.sig = make(chan os.Signal, 1)
	signal.Notify(r.sig, sigs...)
}

// SetReportPeriod sets the number of steps between progress lines.
func (r *Runner) SetReportPeriod(period int) {
	r.repPeriod = period
}

// SetSaver attaches a checkpoint store. A nil saver disables
// checkpointing.
func (r *Runner) SetSaver(saver *checkpoint.Saver) {
	r.saver = saver
}

// Resume installs a previously saved state, replacing the initial
// condition. A final state resumes too, which effectively extends the
// run past its original target time.
func (r *Runner) Resume(state *State) {
	r.t = state.T
	r.step = state.Step
	r.u = make([]float64, len(state.U))
	copy(r.u, state.U)
	log.Noticef("Resuming from checkpoint (step=%v, t=%v)", state.Step, state.T)
}

// T returns the current time.
func (r *Runner) T() float64 { return r.t }

// Step returns the number of completed steps.
func (r *Runner) Step() int { return r.step }

// U returns the current solution. The slice is replaced on every
// step, so callers may keep it.
func (r *Runner) U() []float64 { return r.u }

// PrintHeader prints the column names of the progress report.
func (r *Runner) PrintHeader() {
	if !r.Quiet {
		fmt.Printf("step\ttime\tnorm\n")
	}
}

// PrintLine prints one progress line.
func (r *Runner) PrintLine() {
	if !r.Quiet {
		fmt.Printf("%d\t%g\t%g\n", r.step, r.t, floats.Norm(r.u, 2))
	}
}

// Run advances the system until tMax with steps of size dt, the last
// one shortened to land on tMax exactly. It returns the reached
// state; the run counts as Final only if tMax was reached, i.e. it
// was not interrupted by a signal.
func (r *Runner) Run(tMax, dt float64) (*State, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("nonpositive step size %v", dt)
	}
	eps := 1e-12 * math.Max(1, math.Abs(tMax))
	r.PrintHeader()
	r.PrintLine()
	lastReported := r.step
	final := true
Steps:
	for tMax-r.t > eps {
		h := dt
		if r.t+h > tMax {
			h = tMax - r.t
		}
		next, err := r.stepper.Step(r.sys, r.t, h, r.u)
		if err != nil {
			return nil, fmt.Errorf("step %d (t=%v): %v", r.step, r.t, err)
		}
		r.u = next
		r.t += h
		r.step++

		if r.step%r.repPeriod == 0 {
			r.PrintLine()
			lastReported = r.step
		}
		if r.saver.Old() {
			r.save(false)
		}

		select {
		case s := <-r.sig:
			log.Warningf("Received signal %v, exiting.", s)
			final = false
			break Steps
		default:
		}
	}
	if r.step != lastReported {
		r.PrintLine()
	}

	state := &State{T: r.t, Step: r.step, U: r.u, Final: final}
	r.save(final)
	return state, nil
}

func (r *Runner) save(final bool) {
	err := r.saver.Save("state", &State{T: r.t, Step: r.step, U: r.u, Final: final})
	if err != nil {
		log.Errorf("Error saving checkpoint: %v", err)
	}
}
