/*

Kiops integrates stiff systems of ODEs with Krylov subspace
exponential integrators. It ships a one-dimensional
advection-diffusion demo problem discretized with linear finite
elements.

The basic usage of kiops looks like this:

	kiops

, this will advect a Gaussian bump once around the periodic unit
interval with the third order EPI scheme and report the error against
the exact profile.

You can change the problem and the scheme:

	kiops -ic square -method exprb2 -nx 400

The above will advect a square wave with the exponential
Rosenbrock-Euler scheme on a finer mesh.

To see all the options run:

	kiops -h

*/
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	"bitbucket.org/expmlab/kiops/advdiff"
	"bitbucket.org/expmlab/kiops/checkpoint"
	"bitbucket.org/expmlab/kiops/integrate"
	"bitbucket.org/expmlab/kiops/matexp"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("kiops")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("kiops", "Krylov subspace exponential integrators for stiff ODEs").Version(version)

	// problem parameters
	nx       = app.Flag("nx", "number of mesh elements").Default("200").Int()
	length   = app.Flag("length", "domain length").Default("1").Float64()
	vel      = app.Flag("vel", "advection velocity (default depends on the initial condition)").Default("-1").Float64()
	nu       = app.Flag("nu", "diffusion coefficient (default depends on the initial condition)").Default("-1").Float64()
	ic       = app.Flag("ic", "initial condition (gauss, square or zero)").Default("gauss").String()
	periodic = app.Flag("periodic", "periodic boundary conditions").Default("true").Bool()

	// integration parameters
	method = app.Flag("method", "integration method to use "+
		"(exprb2: second order exponential Rosenbrock-Euler, "+
		"epi3: two-step third order exponential propagation, "+
		"rk4: classical fourth order Runge-Kutta"+
		")").Default("epi3").String()
	phiMethod = app.Flag("phi", "phi evaluation method: kiops for the adaptive Krylov procedure, "+
		"otherwise a partial fraction decomposition table name (see -list-phi)").Default("kiops").String()
	listPhi   = app.Flag("list-phi", "list partial fraction decomposition methods and exit").Bool()
	tmax      = app.Flag("tmax", "integration end time (default depends on the initial condition)").Default("-1").Float64()
	steps     = app.Flag("steps", "number of time steps").Default("10").Int()
	dt        = app.Flag("dt", "time step size (overrides -steps)").Default("-1").Float64()
	maxKrylov = app.Flag("maxkrylov", "maximum Krylov subspace dimension").Default("160").Int()
	iom       = app.Flag("iom", "incomplete orthogonalization window size").Default("10").Int()
	substeps  = app.Flag("substeps", "initial KIOPS substep count").Default("1").Int()
	report    = app.Flag("report", "report every N steps").Default("10").Int()

	// checkpointing
	checkpointF = app.Flag("checkpoint", "checkpoint file name").String()
	cSeconds    = app.Flag("cseconds", "how often to save checkpoints (seconds)").Default("30").Float64()

	// technical
	nThreads   = app.Flag("nt", "number of threads to use").Int()
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()
)

// icDefaults returns the velocity, the diffusion coefficient and the
// end time an initial condition was tuned for.
func icDefaults(ic string) (vel, nu, tmax float64) {
	if ic == "zero" {
		return 0.1, 1.0, 0.1
	}
	return 0.5, 0.0, 1.6
}

func run() (summary *RunSummary) {
	startTime := time.Now()
	summary = &RunSummary{}

	dVel, dNu, dTmax := icDefaults(*ic)
	if *vel < 0 {
		*vel = dVel
	}
	if *nu < 0 {
		*nu = dNu
	}
	if *tmax < 0 {
		*tmax = dTmax
	}
	if *dt <= 0 {
		if *steps < 1 {
			log.Fatal("Need a positive number of steps")
		}
		*dt = *tmax / float64(*steps)
	}

	profile, err := advdiff.NewProfile(*ic)
	if err != nil {
		log.Fatal(err)
	}

	p := advdiff.NewProblem(*nx, *length, *vel, *nu, *periodic)
	log.Infof("Assembled %s problem: %d nodes, h=%g, vel=%g, nu=%g", *ic, p.N(), p.H(), *vel, *nu)

	u0 := p.Sample(profile)
	if !*periodic && *ic == "zero" {
		// hot wall: hold the left value at one and let it diffuse in
		u0[0] = 1
	}

	opts := integrate.Options{
		MaxKrylovDim: *maxKrylov,
		IOM:          *iom,
		NSteps:       *substeps,
		PhiMethod:    *phiMethod,
	}
	stepper, err := integrate.NewStepper(*method, opts)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Using %s integration (order %d), phi method %s", stepper.Name(), stepper.Order(), *phiMethod)

	runner := integrate.NewRunner(p.System(nil), stepper, 0, u0)
	runner.WatchSignals(os.Interrupt, syscall.SIGTERM)
	runner.SetReportPeriod(*report)

	var saver *checkpoint.Saver
	if *checkpointF != "" {
		saver, err = checkpoint.NewSaver(*checkpointF)
		if err != nil {
			log.Fatal("Error opening checkpoint file:", err)
		}
		defer saver.Close()
		saver.SetSavePeriod(*cSeconds)
		runner.SetSaver(saver)

		var state integrate.State
		found, err := saver.Load("state", &state)
		if err != nil {
			log.Fatal("Error reading checkpoint:", err)
		}
		if found && state.Final {
			log.Noticef("Found finished run checkpoint (step=%v, t=%v), starting over", state.Step, state.T)
		}
		if found && !state.Final {
			runner.Resume(&state)
		}
	}

	cfl := *dt * *vel / p.H()
	log.Noticef("mesh spacing: %g, CFL: %.4f, Ndof: %d", p.H(), cfl, p.N())

	state, err := runner.Run(*tmax, *dt)
	if err != nil {
		log.Fatal(err)
	}

	summary.Method = stepper.Name()
	summary.PhiMethod = *phiMethod
	summary.IC = *ic
	summary.Periodic = *periodic
	summary.Nx = *nx
	summary.Nodes = p.N()
	summary.Vel = *vel
	summary.Nu = *nu
	summary.Dt = *dt
	summary.TMax = state.T
	summary.Steps = state.Step
	summary.CFL = cfl

	if *periodic && *nu == 0 {
		ref := p.ExactAdvection(profile, state.T)
		l1, l2, linf := advdiff.Norms(state.U, ref, p.Ml)
		log.Noticef("L1: %.4e, L2: %.4e, Linf: %.4e", l1, l2, linf)
		summary.L1 = l1
		summary.L2 = l2
		summary.Linf = linf
	}

	if saver != nil {
		err = saver.Save("summary", summary)
		if err != nil {
			log.Error("Error saving summary:", err)
		}
	}

	endTime := time.Now()

	deltaT := endTime.Sub(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.Time = deltaT.Seconds()

	return
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	logging.SetLevel(level, "kiops")
	logging.SetLevel(level, "advdiff")
	logging.SetLevel(level, "integrate")
	logging.SetLevel(level, "krylov")
	logging.SetLevel(level, "matexp")
	logging.SetLevel(level, "linop")
	logging.SetLevel(level, "checkpoint")

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *listPhi {
		fmt.Println("kiops")
		for _, name := range matexp.PFDMethods() {
			fmt.Println(name)
		}
		return
	}

	runtime.GOMAXPROCS(*nThreads)

	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.\n", effectiveNThreads)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	summary := run()
	summary.NThreads = effectiveNThreads
	summary.Version = version
	summary.CommandLine = os.Args

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}
