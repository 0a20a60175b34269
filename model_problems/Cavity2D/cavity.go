package Cavity2D

import (
	"fmt"
	"math"

	"github.com/exascience/pargo/parallel"

	"github.com/notargets/gocavity/comms"
	"github.com/notargets/gocavity/utils"
)

// LidDrivenCavity marches the streamfunction-vorticity formulation of the
// lid driven cavity problem on one slice of the distributed grid. Setters
// take global quantities; the local slice is derived from the process grid
// coordinates using the axis partition of utils.PartitionMap.
type LidDrivenCavity struct {
	place            *comms.Place
	rowComm, colComm *comms.Comm

	// global problem description, identical on every process
	GlobalNx, GlobalNy int
	GlobalLx, GlobalLy float64
	Dt, T              float64
	Re, U, Nu          float64
	Dx, Dy             float64

	// local slice
	Nx, Ny, Npts   int
	XStart, YStart int
	Lx, Ly         float64

	v, s, tmp []float64
	cg        *SolverCG

	sHalo, vHalo *halo
}

func NewLidDrivenCavity(pl *comms.Place) (c *LidDrivenCavity) {
	c = &LidDrivenCavity{
		place:   pl,
		rowComm: pl.RowComm,
		colComm: pl.ColComm,
		U:       1.0,
	}
	// default configuration, overridden through the setters
	c.SetReynoldsNumber(10.0)
	c.SetTimeStep(0.01)
	c.SetFinalTime(1.0)
	c.SetDomainSize(1.0, 1.0)
	c.SetGridSize(9, 9)
	return
}

func (c *LidDrivenCavity) root() bool { return c.place.Root() }

func (c *LidDrivenCavity) GetDt() float64 { return c.Dt }
func (c *LidDrivenCavity) GetT() float64  { return c.T }
func (c *LidDrivenCavity) GetDx() float64 { return c.Dx }
func (c *LidDrivenCavity) GetDy() float64 { return c.Dy }
func (c *LidDrivenCavity) GetRe() float64 { return c.Re }
func (c *LidDrivenCavity) GetU() float64  { return c.U }
func (c *LidDrivenCavity) GetNu() float64 { return c.Nu }

func (c *LidDrivenCavity) GetNx() int       { return c.Nx }
func (c *LidDrivenCavity) GetNy() int       { return c.Ny }
func (c *LidDrivenCavity) GetNpts() int     { return c.Npts }
func (c *LidDrivenCavity) GetLx() float64   { return c.Lx }
func (c *LidDrivenCavity) GetLy() float64   { return c.Ly }
func (c *LidDrivenCavity) GetXStart() int   { return c.XStart }
func (c *LidDrivenCavity) GetYStart() int   { return c.YStart }
func (c *LidDrivenCavity) GetGlobalNx() int { return c.GlobalNx }
func (c *LidDrivenCavity) GetGlobalNy() int { return c.GlobalNy }
func (c *LidDrivenCavity) GetGlobalNpts() int {
	return c.GlobalNx * c.GlobalNy
}
func (c *LidDrivenCavity) GetGlobalLx() float64 { return c.GlobalLx }
func (c *LidDrivenCavity) GetGlobalLy() float64 { return c.GlobalLy }

// SetDomainSize sets the global domain lengths.
func (c *LidDrivenCavity) SetDomainSize(xlen, ylen float64) {
	c.GlobalLx = xlen
	c.GlobalLy = ylen
	c.updateDxDy()
}

// SetGridSize sets the global grid counts and derives the local slice:
// the first (N mod p) coordinates along an axis get the larger share.
func (c *LidDrivenCavity) SetGridSize(nx, ny int) {
	c.GlobalNx = nx
	c.GlobalNy = ny
	xPart := utils.NewPartitionMap(c.rowComm.Size(), nx)
	yPart := utils.NewPartitionMap(c.colComm.Size(), ny)
	var xEnd, yEnd int
	c.XStart, xEnd = xPart.GetBucketRange(c.place.RowRank)
	c.YStart, yEnd = yPart.GetBucketRange(c.place.ColRank)
	c.Nx = xEnd - c.XStart
	c.Ny = yEnd - c.YStart
	c.updateDxDy()
}

func (c *LidDrivenCavity) SetTimeStep(deltat float64) {
	c.Dt = deltat
}

func (c *LidDrivenCavity) SetFinalTime(finalt float64) {
	c.T = finalt
}

func (c *LidDrivenCavity) SetReynoldsNumber(re float64) {
	c.Re = re
	c.Nu = 1.0 / re
}

func (c *LidDrivenCavity) updateDxDy() {
	if c.GlobalNx > 1 && c.GlobalNy > 1 {
		c.Dx = c.GlobalLx / float64(c.GlobalNx-1)
		c.Dy = c.GlobalLy / float64(c.GlobalNy-1)
	}
	if c.GlobalNx > 0 && c.GlobalNy > 0 {
		c.Lx = c.GlobalLx * float64(c.Nx) / float64(c.GlobalNx)
		c.Ly = c.GlobalLy * float64(c.Ny) / float64(c.GlobalNy)
	}
	c.Npts = c.Nx * c.Ny
}

// Initialise allocates the zeroed vorticity and streamfunction fields and
// constructs the Poisson solver for the local slice.
func (c *LidDrivenCavity) Initialise() {
	n := c.Nx * c.Ny
	c.v = make([]float64, n)
	c.s = make([]float64, n)
	c.tmp = make([]float64, n)
	c.cg = NewSolverCG(c.Nx, c.Ny, c.Dx, c.Dy, c.place)
	c.sHalo = newHalo(c.Nx, c.Ny, c.place)
	c.vHalo = newHalo(c.Nx, c.Ny, c.place)
}

// NumSteps is the number of explicit Euler steps Integrate will run.
func (c *LidDrivenCavity) NumSteps() int {
	return int(math.Ceil(c.T / c.Dt))
}

// Integrate advances the solution from t=0 to the final time.
func (c *LidDrivenCavity) Integrate() error {
	NSteps := c.NumSteps()
	for t := 0; t < NSteps; t++ {
		if c.root() {
			fmt.Printf("Step: %8d  Time: %8g\n", t, float64(t)*c.Dt)
		}
		if err := c.Advance(); err != nil {
			return err
		}
	}
	return nil
}

// PrintConfiguration emits the run configuration on the root process and
// verifies the explicit-Euler time step restriction, returning an error on
// violation.
func (c *LidDrivenCavity) PrintConfiguration() error {
	if c.root() {
		fmt.Printf("Grid size: %d x %d\n", c.GlobalNx, c.GlobalNy)
		fmt.Printf("Spacing:   %g x %g\n", c.Dx, c.Dy)
		fmt.Printf("Length:    %g x %g\n", c.GlobalLx, c.GlobalLy)
		fmt.Printf("Grid pts:  %d\n", c.GlobalNx*c.GlobalNy)
		fmt.Printf("Timestep:  %g\n", c.Dt)
		fmt.Printf("Steps:     %d\n", c.NumSteps())
		fmt.Printf("Reynolds number: %g\n", c.Re)
		fmt.Printf("Linear solver: preconditioned conjugate gradient\n")
		fmt.Printf("\n")
	}

	if c.Nu*c.Dt/c.Dx/c.Dy > 0.25 {
		if c.root() {
			fmt.Printf("ERROR: Time-step restriction not satisfied!\n")
			fmt.Printf("Maximum time-step is %g\n", 0.25*c.Dx*c.Dy/c.Nu)
		}
		return fmt.Errorf("time-step restriction not satisfied: maximum time-step is %g", 0.25*c.Dx*c.Dy/c.Nu)
	}
	return nil
}

// globallyInterior reports whether local point (i,j) is strictly inside the
// global domain.
func (c *LidDrivenCavity) globallyInterior(i, j int) bool {
	gx := c.XStart + i
	gy := c.YStart + j
	return gx > 0 && gx < c.GlobalNx-1 && gy > 0 && gy < c.GlobalNy-1
}

// Advance runs one explicit Euler step: boundary vorticity from the
// streamfunction, interior vorticity from its Laplacian, advection-diffusion
// transport of vorticity, then the Poisson solve recovering the
// streamfunction. Both halo exchanges overlap their strict-interior sweeps.
func (c *LidDrivenCavity) Advance() error {
	// streamfunction halos travel while the purely local work runs
	c.sHalo.begin(c.s)
	c.boundaryVorticity()
	c.interiorVorticityInterior()
	c.sHalo.end()
	c.interiorVorticityEdges()

	// transport reads pre-step vorticity throughout, so advance from a copy
	copy(c.tmp, c.v)
	c.vHalo.begin(c.tmp)
	c.advanceInterior()
	c.vHalo.end()
	c.advanceEdges()

	return c.cg.Solve(c.v, c.s)
}

// boundaryVorticity overwrites v on the global-boundary rows and columns the
// process owns. The lid drives the top wall; global corners are excluded.
// The streamfunction values needed lie two layers inside the local slab.
func (c *LidDrivenCavity) boundaryVorticity() {
	var (
		Nx, Ny = c.Nx, c.Ny
		dyi    = 1.0 / c.Dy
		dx2i   = 1.0 / c.Dx / c.Dx
		dy2i   = 1.0 / c.Dy / c.Dy
		s, v   = c.s, c.v
		h      = c.sHalo
	)
	xInterior := func(i int) bool {
		gx := c.XStart + i
		return gx > 0 && gx < c.GlobalNx-1
	}
	yInterior := func(j int) bool {
		gy := c.YStart + j
		return gy > 0 && gy < c.GlobalNy-1
	}
	if !h.hasBottom() && Ny > 1 {
		for i := 0; i < Nx; i++ {
			if xInterior(i) {
				v[i] = 2.0 * dy2i * (s[i] - s[i+Nx])
			}
		}
	}
	if !h.hasTop() && Ny > 1 {
		row := (Ny - 1) * Nx
		for i := 0; i < Nx; i++ {
			if xInterior(i) {
				v[row+i] = 2.0*dy2i*(s[row+i]-s[row+i-Nx]) - 2.0*dyi*c.U
			}
		}
	}
	if !h.hasLeft() && Nx > 1 {
		for j := 0; j < Ny; j++ {
			if yInterior(j) {
				v[j*Nx] = 2.0 * dx2i * (s[j*Nx] - s[j*Nx+1])
			}
		}
	}
	if !h.hasRight() && Nx > 1 {
		for j := 0; j < Ny; j++ {
			if yInterior(j) {
				e := j*Nx + Nx - 1
				v[e] = 2.0 * dx2i * (s[e] - s[e-1])
			}
		}
	}
}

// interiorVorticityInterior computes v = -nabla^2 s on the strict local
// interior, which needs no halo data.
func (c *LidDrivenCavity) interiorVorticityInterior() {
	var (
		Nx, Ny = c.Nx, c.Ny
		dx2i   = 1.0 / c.Dx / c.Dx
		dy2i   = 1.0 / c.Dy / c.Dy
		s, v   = c.s, c.v
	)
	if Ny <= 2 {
		return
	}
	parallel.Range(1, Ny-1, 0, func(jLow, jHigh int) {
		for j := jLow; j < jHigh; j++ {
			row := j * Nx
			for i := 1; i < Nx-1; i++ {
				v[row+i] = dx2i*(2.0*s[row+i]-s[row+i+1]-s[row+i-1]) +
					dy2i*(2.0*s[row+i]-s[row+i+Nx]-s[row+i-Nx])
			}
		}
	})
}

// interiorVorticityEdges finishes the vorticity Laplacian on the local
// perimeter points that are globally interior, using the streamfunction
// halos.
func (c *LidDrivenCavity) interiorVorticityEdges() {
	var (
		Nx   = c.Nx
		dx2i = 1.0 / c.Dx / c.Dx
		dy2i = 1.0 / c.Dy / c.Dy
		s, v = c.s, c.v
		h    = c.sHalo
	)
	forEachPerimeter(c.Nx, c.Ny, func(i, j int) {
		if !c.globallyInterior(i, j) {
			return
		}
		sc := s[j*Nx+i]
		v[j*Nx+i] = dx2i*(2.0*sc-h.at(s, i+1, j)-h.at(s, i-1, j)) +
			dy2i*(2.0*sc-h.at(s, i, j+1)-h.at(s, i, j-1))
	})
}

// advanceInterior applies the explicit Euler advection-diffusion update on
// the strict local interior, reading pre-step vorticity from tmp.
func (c *LidDrivenCavity) advanceInterior() {
	var (
		Nx, Ny = c.Nx, c.Ny
		dxi    = 1.0 / c.Dx
		dyi    = 1.0 / c.Dy
		dx2i   = dxi * dxi
		dy2i   = dyi * dyi
		dt, nu = c.Dt, c.Nu
		s, v   = c.s, c.v
		w      = c.tmp
	)
	if Ny <= 2 {
		return
	}
	parallel.Range(1, Ny-1, 0, func(jLow, jHigh int) {
		for j := jLow; j < jHigh; j++ {
			row := j * Nx
			for i := 1; i < Nx-1; i++ {
				k := row + i
				v[k] = w[k] + dt*(((s[k+1]-s[k-1])*0.5*dxi)*((w[k+Nx]-w[k-Nx])*0.5*dyi)-
					((s[k+Nx]-s[k-Nx])*0.5*dyi)*((w[k+1]-w[k-1])*0.5*dxi)+
					nu*(w[k+1]-2.0*w[k]+w[k-1])*dx2i+
					nu*(w[k+Nx]-2.0*w[k]+w[k-Nx])*dy2i)
			}
		}
	})
}

// advanceEdges finishes the transport update on the globally interior
// perimeter points, reading pre-step vorticity through the vorticity halo
// and the streamfunction through the halo filled earlier this step.
func (c *LidDrivenCavity) advanceEdges() {
	var (
		Nx     = c.Nx
		dxi    = 1.0 / c.Dx
		dyi    = 1.0 / c.Dy
		dx2i   = dxi * dxi
		dy2i   = dyi * dyi
		dt, nu = c.Dt, c.Nu
		s, v   = c.s, c.v
		w      = c.tmp
		sh     = c.sHalo
		wh     = c.vHalo
	)
	forEachPerimeter(c.Nx, c.Ny, func(i, j int) {
		if !c.globallyInterior(i, j) {
			return
		}
		var (
			k  = j*Nx + i
			sE = sh.at(s, i+1, j)
			sW = sh.at(s, i-1, j)
			sN = sh.at(s, i, j+1)
			sS = sh.at(s, i, j-1)
			wE = wh.at(w, i+1, j)
			wW = wh.at(w, i-1, j)
			wN = wh.at(w, i, j+1)
			wS = wh.at(w, i, j-1)
		)
		v[k] = w[k] + dt*(((sE-sW)*0.5*dxi)*((wN-wS)*0.5*dyi)-
			((sN-sS)*0.5*dyi)*((wE-wW)*0.5*dxi)+
			nu*(wE-2.0*w[k]+wW)*dx2i+
			nu*(wN-2.0*w[k]+wS)*dy2i)
	})
}
