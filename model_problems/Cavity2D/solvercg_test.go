package Cavity2D

import (
	"math"
	"sync"
	"testing"

	"github.com/james-bowman/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocavity/comms"
	"github.com/notargets/gocavity/utils"
)

// localSlice returns the local extent and global origin of one seat for a
// global grid, using the same axis split as the advancer.
func localSlice(pl *comms.Place, Nx, Ny int) (nx, ny, xStart, yStart int) {
	var xEnd, yEnd int
	xStart, xEnd = utils.NewPartitionMap(pl.RowComm.Size(), Nx).GetBucketRange(pl.RowRank)
	yStart, yEnd = utils.NewPartitionMap(pl.ColComm.Size(), Ny).GetBucketRange(pl.ColRank)
	nx, ny = xEnd-xStart, yEnd-yStart
	return
}

func TestSolverCGConstructor(t *testing.T) {
	const (
		Nx = 100
		Ny = 50
		dx = 0.05
		dy = 0.02
	)
	runGrid(t, 4, func(pl *comms.Place) {
		nx, ny, _, _ := localSlice(pl, Nx, Ny)
		cg := NewSolverCG(nx, ny, dx, dy, pl)
		assert.Equal(t, nx, cg.GetNx())
		assert.Equal(t, ny, cg.GetNy())
		assert.Equal(t, dx, cg.GetDx())
		assert.Equal(t, dy, cg.GetDy())
		// the slices tile the global grid
		assert.Equal(t, Nx, pl.RowComm.AllreduceIntSum(cg.GetNx()))
		assert.Equal(t, Ny, pl.ColComm.AllreduceIntSum(cg.GetNy()))
		assert.Equal(t, 50, nx)
		assert.Equal(t, 25, ny)
	})
}

func TestSolverCGNearZeroInput(t *testing.T) {
	const (
		Nx = 10
		Ny = 10
		dx = 0.1
		dy = 0.1
	)
	runGrid(t, 4, func(pl *comms.Place) {
		nx, ny, _, _ := localSlice(pl, Nx, Ny)
		cg := NewSolverCG(nx, ny, dx, dy, pl)
		n := nx * ny
		b := make([]float64, n)
		x := make([]float64, n)
		for i := range b {
			b[i] = 1e-8 // well below the early-exit threshold
		}
		require.NoError(t, cg.Solve(b, x))
		for i := range x {
			assert.Less(t, math.Abs(x[i]), 1e-20)
		}
	})
}

// discreteEigenProblem builds b so that sin(k pi x) sin(l pi y) is an exact
// eigenvector of the discrete operator; the CG answer must match it to the
// solver tolerance at any grid size.
func discreteEigenProblem(nx, ny, xStart, yStart int, dx, dy float64, k, l int) (b, want []float64) {
	lambda := (2.0-2.0*math.Cos(float64(k)*math.Pi*dx))/(dx*dx) +
		(2.0-2.0*math.Cos(float64(l)*math.Pi*dy))/(dy*dy)
	b = make([]float64, nx*ny)
	want = make([]float64, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			f := math.Sin(math.Pi*float64(k)*float64(xStart+i)*dx) *
				math.Sin(math.Pi*float64(l)*float64(yStart+j)*dy)
			want[j*nx+i] = f
			b[j*nx+i] = lambda * f
		}
	}
	return
}

func TestSolverCGDiscreteEigenfunction(t *testing.T) {
	const (
		k, l   = 3, 3
		Nx, Ny = 129, 129
	)
	var (
		Lx = 2.0 / k
		Ly = 2.0 / l
		dx = Lx / (Nx - 1)
		dy = Ly / (Ny - 1)
	)
	for _, np := range []int{1, 4} {
		runGrid(t, np, func(pl *comms.Place) {
			nx, ny, xStart, yStart := localSlice(pl, Nx, Ny)
			cg := NewSolverCG(nx, ny, dx, dy, pl)
			b, want := discreteEigenProblem(nx, ny, xStart, yStart, dx, dy, k, l)
			x := make([]float64, nx*ny)
			require.NoError(t, cg.Solve(b, x))
			for i := range x {
				assert.InDelta(t, want[i], x[i], 1e-5)
			}
		})
	}
}

func TestSolverCGSinusoidalInput(t *testing.T) {
	if testing.Short() {
		t.Skip("full 2000x2000 sinusoidal recovery")
	}
	const (
		k, l   = 3, 3
		Nx, Ny = 2000, 2000
		tol    = 1e-3
	)
	var (
		Lx = 2.0 / k
		Ly = 2.0 / l
		dx = Lx / (Nx - 1)
		dy = Ly / (Ny - 1)

		mu        sync.Mutex
		globalErr float64
	)
	runGrid(t, 4, func(pl *comms.Place) {
		nx, ny, xStart, yStart := localSlice(pl, Nx, Ny)
		cg := NewSolverCG(nx, ny, dx, dy, pl)
		b := make([]float64, nx*ny)
		x := make([]float64, nx*ny)
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				b[j*nx+i] = -math.Pi * math.Pi * float64(k*k+l*l) *
					math.Sin(math.Pi*float64(k)*float64(xStart+i)*dx) *
					math.Sin(math.Pi*float64(l)*float64(yStart+j)*dy)
			}
		}
		require.NoError(t, cg.Solve(b, x))
		var e float64
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				want := -math.Sin(math.Pi*float64(k)*float64(xStart+i)*dx) *
					math.Sin(math.Pi*float64(l)*float64(yStart+j)*dy)
				d := x[j*nx+i] - want
				e += d * d
			}
		}
		mu.Lock()
		globalErr += e
		mu.Unlock()
	})
	assert.Less(t, math.Sqrt(globalErr), tol)
}

func TestSolverCGPreservesDirichletBoundary(t *testing.T) {
	const (
		Nx, Ny = 30, 30
	)
	var (
		dx = 1.0 / (Nx - 1)
		dy = 1.0 / (Ny - 1)
	)
	runGrid(t, 4, func(pl *comms.Place) {
		nx, ny, xStart, yStart := localSlice(pl, Nx, Ny)
		cg := NewSolverCG(nx, ny, dx, dy, pl)
		b := make([]float64, nx*ny)
		x := make([]float64, nx*ny)
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				b[j*nx+i] = 1.0 + float64(xStart+i) + 2.0*float64(yStart+j)
			}
		}
		require.NoError(t, cg.Solve(b, x))
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				gx, gy := xStart+i, yStart+j
				if gx == 0 || gx == Nx-1 || gy == 0 || gy == Ny-1 {
					assert.Equal(t, 0.0, x[j*nx+i])
				}
			}
		}
	})
}

// assembleOperator builds the single-process negative Laplacian as a sparse
// matrix over the interior points, with all-zero boundary rows, so
// ApplyOperator can be checked against an independent matrix-vector product.
func assembleOperator(Nx, Ny int, dx, dy float64) *sparse.CSR {
	var (
		n    = Nx * Ny
		dx2i = 1.0 / dx / dx
		dy2i = 1.0 / dy / dy
		dok  = sparse.NewDOK(n, n)
	)
	for j := 1; j < Ny-1; j++ {
		for i := 1; i < Nx-1; i++ {
			r := j*Nx + i
			dok.Set(r, r, 2.0*(dx2i+dy2i))
			dok.Set(r, r-1, -dx2i)
			dok.Set(r, r+1, -dx2i)
			dok.Set(r, r-Nx, -dy2i)
			dok.Set(r, r+Nx, -dy2i)
		}
	}
	return dok.ToCSR()
}

func TestApplyOperatorMatchesSparseAssembly(t *testing.T) {
	const (
		Nx, Ny = 12, 9
		dx, dy = 0.3, 0.5
	)
	runGrid(t, 1, func(pl *comms.Place) {
		cg := NewSolverCG(Nx, Ny, dx, dy, pl)
		n := Nx * Ny
		in := make([]float64, n)
		for j := 0; j < Ny; j++ {
			for i := 0; i < Nx; i++ {
				in[j*Nx+i] = math.Sin(float64(1+i)) * math.Cos(float64(j))
			}
		}
		out := make([]float64, n)
		cg.ApplyOperator(in, out)

		A := assembleOperator(Nx, Ny, dx, dy)
		var want mat.VecDense
		want.MulVec(A, mat.NewVecDense(n, in))
		for j := 1; j < Ny-1; j++ {
			for i := 1; i < Nx-1; i++ {
				r := j*Nx + i
				assert.InDelta(t, want.AtVec(r), out[r], 1e-12)
			}
		}
	})
}

func TestPreconditionIdentityOnBoundary(t *testing.T) {
	const (
		Nx, Ny = 8, 6
		dx, dy = 0.1, 0.2
	)
	factor := 2.0 * (1.0/(dx*dx) + 1.0/(dy*dy))
	runGrid(t, 4, func(pl *comms.Place) {
		nx, ny, xStart, yStart := localSlice(pl, Nx, Ny)
		cg := NewSolverCG(nx, ny, dx, dy, pl)
		in := make([]float64, nx*ny)
		out := make([]float64, nx*ny)
		for i := range in {
			in[i] = float64(i + 1)
		}
		cg.Precondition(in, out)
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				k := j*nx + i
				gx, gy := xStart+i, yStart+j
				if gx == 0 || gx == Nx-1 || gy == 0 || gy == Ny-1 {
					assert.Equal(t, in[k], out[k])
				} else {
					assert.InDelta(t, in[k]/factor, out[k], 1e-14)
				}
			}
		}
	})
}

func TestImposeBCZeroesGlobalBoundary(t *testing.T) {
	const (
		Nx, Ny = 9, 7
	)
	runGrid(t, 4, func(pl *comms.Place) {
		nx, ny, xStart, yStart := localSlice(pl, Nx, Ny)
		cg := NewSolverCG(nx, ny, 0.1, 0.1, pl)
		f := make([]float64, nx*ny)
		for i := range f {
			f[i] = 3.5
		}
		cg.ImposeBC(f)
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				gx, gy := xStart+i, yStart+j
				if gx == 0 || gx == Nx-1 || gy == 0 || gy == Ny-1 {
					assert.Equal(t, 0.0, f[j*nx+i])
				} else {
					assert.Equal(t, 3.5, f[j*nx+i])
				}
			}
		}
	})
}

// The distributed operator must agree with the single-process one on the
// assembled global field.
func TestApplyOperatorDistributedAgreesWithSerial(t *testing.T) {
	const (
		Nx, Ny = 17, 13
		dx, dy = 0.07, 0.11
	)
	field := func(gx, gy int) float64 {
		return math.Sin(0.3*float64(gx)) + math.Cos(0.2*float64(gy)) + 0.01*float64(gx*gy)
	}

	serial := make([]float64, Nx*Ny)
	runGrid(t, 1, func(pl *comms.Place) {
		cg := NewSolverCG(Nx, Ny, dx, dy, pl)
		in := make([]float64, Nx*Ny)
		for j := 0; j < Ny; j++ {
			for i := 0; i < Nx; i++ {
				in[j*Nx+i] = field(i, j)
			}
		}
		cg.ApplyOperator(in, serial)
	})

	var mu sync.Mutex
	parallel := make([]float64, Nx*Ny)
	runGrid(t, 4, func(pl *comms.Place) {
		nx, ny, xStart, yStart := localSlice(pl, Nx, Ny)
		cg := NewSolverCG(nx, ny, dx, dy, pl)
		in := make([]float64, nx*ny)
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				in[j*nx+i] = field(xStart+i, yStart+j)
			}
		}
		out := make([]float64, nx*ny)
		cg.ApplyOperator(in, out)
		mu.Lock()
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				parallel[(yStart+j)*Nx+xStart+i] = out[j*nx+i]
			}
		}
		mu.Unlock()
	})

	for j := 1; j < Ny-1; j++ {
		for i := 1; i < Nx-1; i++ {
			assert.InDelta(t, serial[j*Nx+i], parallel[j*Nx+i], 1e-12, "point (%d,%d)", i, j)
		}
	}
}
