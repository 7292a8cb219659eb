package main

// RunSummary stores the full description of one integration run for
// the JSON output.
type RunSummary struct {
	// Version stores the kiops version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// Method is the time stepping scheme.
	Method string `json:"method"`
	// PhiMethod is the phi evaluation kernel.
	PhiMethod string `json:"phiMethod"`
	// IC is the initial condition name.
	IC string `json:"ic"`
	// Periodic reports the boundary conditions.
	Periodic bool `json:"periodic"`
	// Nx is the number of mesh elements.
	Nx int `json:"nx"`
	// Nodes is the number of degrees of freedom.
	Nodes int `json:"nodes"`
	// Vel is the advection velocity.
	Vel float64 `json:"vel"`
	// Nu is the diffusion coefficient.
	Nu float64 `json:"nu"`
	// Dt is the time step size.
	Dt float64 `json:"dt"`
	// TMax is the reached end time.
	TMax float64 `json:"tMax"`
	// Steps is the number of completed time steps.
	Steps int `json:"steps"`
	// CFL is the advective Courant number dt*vel/h.
	CFL float64 `json:"cfl"`
	// L1, L2 and Linf are the errors against the exact advection
	// reference, only filled for periodic pure advection.
	L1   float64 `json:"l1,omitempty"`
	L2   float64 `json:"l2,omitempty"`
	Linf float64 `json:"linf,omitempty"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
}
