package Cavity2D

import (
	"fmt"
	"math"

	"github.com/exascience/pargo/parallel"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gocavity/comms"
)

const (
	// Tolerance and iteration cap of the preconditioned CG loop. The early
	// exit compares the global 2-norm of b, and the convergence check the
	// global 2-norm of the residual, against cgTol*cgTol.
	cgTol     = 1.e-3
	cgMaxIter = 5000
)

// SolverCG solves -nabla^2 x = b over the distributed grid with homogeneous
// Dirichlet conditions on the global boundary, using preconditioned
// conjugate gradients with a point-Jacobi preconditioner. All sizes and
// spacings are local; the solver learns about the global domain only through
// its ProcNull neighbours and the global reductions.
type SolverCG struct {
	Nx, Ny           int
	Dx, Dy           float64
	rowComm, colComm *comms.Comm
	rowRank, colRank int
	boundaryDomain   bool

	r, p, z, t []float64
	h          *halo
}

func NewSolverCG(nx, ny int, dx, dy float64, pl *comms.Place) (cg *SolverCG) {
	n := nx * ny
	cg = &SolverCG{
		Nx:      nx,
		Ny:      ny,
		Dx:      dx,
		Dy:      dy,
		rowComm: pl.RowComm,
		colComm: pl.ColComm,
		rowRank: pl.RowRank,
		colRank: pl.ColRank,
		r:       make([]float64, n),
		p:       make([]float64, n),
		z:       make([]float64, n),
		t:       make([]float64, n),
		h:       newHalo(nx, ny, pl),
	}
	cg.boundaryDomain = !(cg.h.hasTop() && cg.h.hasBottom() && cg.h.hasLeft() && cg.h.hasRight())
	return
}

func (cg *SolverCG) GetDx() float64 { return cg.Dx }
func (cg *SolverCG) GetDy() float64 { return cg.Dy }
func (cg *SolverCG) GetNx() int     { return cg.Nx }
func (cg *SolverCG) GetNy() int     { return cg.Ny }

func (cg *SolverCG) root() bool {
	return cg.rowRank == 0 && cg.colRank == 0
}

// allreduce sums v over the full process grid. The row reduction hands every
// process its row sum; reducing those along the column yields the global sum.
func (cg *SolverCG) allreduce(v float64) float64 {
	return cg.colComm.AllreduceSum(cg.rowComm.AllreduceSum(v))
}

// Solve runs preconditioned CG on A x = b, updating x in place. The inner
// product numerators and denominators are reduced globally before division;
// summing locally formed quotients would be wrong.
func (cg *SolverCG) Solve(b, x []float64) error {
	var (
		n = cg.Nx * cg.Ny
		k int
	)

	eps := floats.Norm(b[:n], 2)
	eps *= eps // squared norms sum across processes, norms do not
	globalEps := math.Sqrt(cg.allreduce(eps))

	if globalEps < cgTol*cgTol { // b is practically zero, so is the solution
		for i := range x[:n] {
			x[i] = 0
		}
		if cg.root() {
			fmt.Printf("Norm is %g\n", globalEps)
		}
		return nil
	}

	cg.ApplyOperator(x, cg.t)
	copy(cg.r, b[:n])
	cg.ImposeBC(cg.r)                // zero the global boundary of r before subtracting Ax
	floats.AddScaled(cg.r, -1, cg.t) // r = b - Ax
	cg.Precondition(cg.r, cg.z)
	copy(cg.p, cg.z)

	for {
		k++

		cg.ApplyOperator(cg.p, cg.t)

		alphaDen := floats.Dot(cg.t, cg.p)
		alphaNum := floats.Dot(cg.r, cg.z)
		betaDen := floats.Dot(cg.r, cg.z) // z_k . r_k, captured before z is updated

		globalAlpha := cg.allreduce(alphaNum) / cg.allreduce(alphaDen)

		floats.AddScaled(x[:n], globalAlpha, cg.p) // x_{k+1} = x_k + alpha p_k
		floats.AddScaled(cg.r, -globalAlpha, cg.t) // r_{k+1} = r_k - alpha A p_k

		eps = floats.Norm(cg.r, 2)
		eps *= eps
		globalEps = math.Sqrt(cg.allreduce(eps))
		if globalEps < cgTol*cgTol {
			break
		}

		cg.Precondition(cg.r, cg.z)

		betaNum := floats.Dot(cg.r, cg.z)
		globalBeta := cg.allreduce(betaNum) / cg.allreduce(betaDen)

		copy(cg.t, cg.z)
		floats.AddScaled(cg.t, globalBeta, cg.p) // p_{k+1} = z_{k+1} + beta p_k
		copy(cg.p, cg.t)

		if k >= cgMaxIter {
			break
		}
	}

	if k == cgMaxIter {
		if cg.root() {
			fmt.Println("FAILED TO CONVERGE")
		}
		return fmt.Errorf("conjugate gradient failed to converge within %d iterations, eps = %g", cgMaxIter, globalEps)
	}

	if cg.root() {
		fmt.Printf("Converged in %d iterations. eps = %g\n", k, globalEps)
	}
	return nil
}

// ApplyOperator computes out = -nabla^2 in with the five point stencil.
// The four edge sends are posted first; the strict interior is swept while
// transport is in flight, then the local edges and corners are filled from
// the halos. Entries on the global boundary are never written.
func (cg *SolverCG) ApplyOperator(in, out []float64) {
	var (
		Nx, Ny = cg.Nx, cg.Ny
		dx2i   = 1.0 / cg.Dx / cg.Dx
		dy2i   = 1.0 / cg.Dy / cg.Dy
		h      = cg.h
	)

	h.begin(in)

	if Ny > 2 {
		parallel.Range(1, Ny-1, 0, func(jLow, jHigh int) {
			for j := jLow; j < jHigh; j++ {
				row := j * Nx
				for i := 1; i < Nx-1; i++ {
					out[row+i] = (2.0*in[row+i]-in[row+i-1]-in[row+i+1])*dx2i +
						(2.0*in[row+i]-in[row+i-Nx]-in[row+i+Nx])*dy2i
				}
			}
		})
	}

	h.end()

	switch {
	case Nx == 1 && Ny == 1:
		// single local point, depends on all four halos
		if !cg.boundaryDomain {
			out[0] = (2.0*in[0]-h.leftData[0]-h.rightData[0])*dx2i +
				(2.0*in[0]-h.bottomData[0]-h.topData[0])*dy2i
		}
	case Nx == 1:
		// column vector; skip entirely at the left or right global boundary,
		// where the whole column is handled by the boundary conditions
		if h.hasLeft() && h.hasRight() {
			for j := 1; j < Ny-1; j++ {
				out[j] = (2.0*in[j]-h.leftData[j]-h.rightData[j])*dx2i +
					(2.0*in[j]-in[j-1]-in[j+1])*dy2i
			}
			if h.hasTop() {
				out[Ny-1] = (2.0*in[Ny-1]-h.leftData[Ny-1]-h.rightData[Ny-1])*dx2i +
					(2.0*in[Ny-1]-in[Ny-2]-h.topData[0])*dy2i
			}
			if h.hasBottom() {
				out[0] = (2.0*in[0]-h.leftData[0]-h.rightData[0])*dx2i +
					(2.0*in[0]-h.bottomData[0]-in[1])*dy2i
			}
		}
	case Ny == 1:
		// row vector; skip entirely at the top or bottom global boundary
		if h.hasTop() && h.hasBottom() {
			for i := 1; i < Nx-1; i++ {
				out[i] = (2.0*in[i]-in[i-1]-in[i+1])*dx2i +
					(2.0*in[i]-h.bottomData[i]-h.topData[i])*dy2i
			}
			if h.hasLeft() {
				out[0] = (2.0*in[0]-h.leftData[0]-in[1])*dx2i +
					(2.0*in[0]-h.bottomData[0]-h.topData[0])*dy2i
			}
			if h.hasRight() {
				out[Nx-1] = (2.0*in[Nx-1]-in[Nx-2]-h.rightData[0])*dx2i +
					(2.0*in[Nx-1]-h.bottomData[Nx-1]-h.topData[Nx-1])*dy2i
			}
		}
	default:
		// local edges, skipped where they coincide with the global boundary
		if h.hasBottom() {
			for i := 1; i < Nx-1; i++ {
				out[i] = (2.0*in[i]-in[i-1]-in[i+1])*dx2i +
					(2.0*in[i]-h.bottomData[i]-in[i+Nx])*dy2i
			}
		}
		if h.hasTop() {
			row := (Ny - 1) * Nx
			for i := 1; i < Nx-1; i++ {
				out[row+i] = (2.0*in[row+i]-in[row+i-1]-in[row+i+1])*dx2i +
					(2.0*in[row+i]-in[row+i-Nx]-h.topData[i])*dy2i
			}
		}
		if h.hasLeft() {
			for j := 1; j < Ny-1; j++ {
				out[j*Nx] = (2.0*in[j*Nx]-h.leftData[j]-in[j*Nx+1])*dx2i +
					(2.0*in[j*Nx]-in[(j-1)*Nx]-in[(j+1)*Nx])*dy2i
			}
		}
		if h.hasRight() {
			for j := 1; j < Ny-1; j++ {
				e := j*Nx + Nx - 1
				out[e] = (2.0*in[e]-in[e-1]-h.rightData[j])*dx2i +
					(2.0*in[e]-in[e-Nx]-in[e+Nx])*dy2i
			}
		}

		// local corners, each needing two halo values
		if h.hasBottom() && h.hasLeft() {
			out[0] = (2.0*in[0]-h.leftData[0]-in[1])*dx2i +
				(2.0*in[0]-h.bottomData[0]-in[Nx])*dy2i
		}
		if h.hasBottom() && h.hasRight() {
			c := Nx - 1
			out[c] = (2.0*in[c]-in[c-1]-h.rightData[0])*dx2i +
				(2.0*in[c]-h.bottomData[Nx-1]-in[c+Nx])*dy2i
		}
		if h.hasTop() && h.hasLeft() {
			c := (Ny - 1) * Nx
			out[c] = (2.0*in[c]-h.leftData[Ny-1]-in[c+1])*dx2i +
				(2.0*in[c]-in[c-Nx]-h.topData[0])*dy2i
		}
		if h.hasTop() && h.hasRight() {
			c := Ny*Nx - 1
			out[c] = (2.0*in[c]-in[c-1]-h.rightData[Ny-1])*dx2i +
				(2.0*in[c]-in[c-Nx]-h.topData[Nx-1])*dy2i
		}
	}
}

// Precondition applies the point-Jacobi preconditioner: divide by
// 2(1/dx^2 + 1/dy^2) everywhere strictly inside the global domain, copy on
// the global boundary.
func (cg *SolverCG) Precondition(in, out []float64) {
	var (
		Nx, Ny = cg.Nx, cg.Ny
		dx2i   = 1.0 / cg.Dx / cg.Dx
		dy2i   = 1.0 / cg.Dy / cg.Dy
		factor = 2.0 * (dx2i + dy2i)
	)

	if Ny > 2 {
		parallel.Range(1, Ny-1, 0, func(jLow, jHigh int) {
			for j := jLow; j < jHigh; j++ {
				row := j * Nx
				for i := 1; i < Nx-1; i++ {
					out[row+i] = in[row+i] / factor
				}
			}
		})
	}

	forEachPerimeter(Nx, Ny, func(i, j int) {
		c := j*Nx + i
		if cg.onGlobalBoundary(i, j) {
			out[c] = in[c]
		} else {
			out[c] = in[c] / factor
		}
	})
}

// onGlobalBoundary reports whether local point (i,j) lies on the global
// domain boundary, i.e. on a local edge whose neighbour is the sentinel.
func (cg *SolverCG) onGlobalBoundary(i, j int) bool {
	h := cg.h
	return (i == 0 && !h.hasLeft()) || (i == cg.Nx-1 && !h.hasRight()) ||
		(j == 0 && !h.hasBottom()) || (j == cg.Ny-1 && !h.hasTop())
}

// ImposeBC zeroes every entry of inout lying on the global domain boundary.
func (cg *SolverCG) ImposeBC(inout []float64) {
	var (
		Nx, Ny = cg.Nx, cg.Ny
		h      = cg.h
	)
	if !h.hasBottom() {
		for i := 0; i < Nx; i++ {
			inout[i] = 0.0
		}
	}
	if !h.hasTop() {
		row := (Ny - 1) * Nx
		for i := 0; i < Nx; i++ {
			inout[row+i] = 0.0
		}
	}
	if !h.hasLeft() {
		for j := 0; j < Ny; j++ {
			inout[j*Nx] = 0.0
		}
	}
	if !h.hasRight() {
		for j := 0; j < Ny; j++ {
			inout[j*Nx+Nx-1] = 0.0
		}
	}
}
