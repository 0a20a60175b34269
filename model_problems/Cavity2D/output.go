package Cavity2D

import (
	"bufio"
	"fmt"
	"os"
)

// velocities derives the velocity components from the streamfunction by the
// one-sided differences used throughout: u = ds/dy, w = -ds/dx. Local edge
// points keep zero velocity; the lid speed is imposed on the global top row.
func (c *LidDrivenCavity) velocities(u0, u1 []float64) {
	var (
		Nx, Ny = c.Nx, c.Ny
	)
	for i := range u0 {
		u0[i] = 0
		u1[i] = 0
	}
	for i := 1; i < Nx-1; i++ {
		for j := 1; j < Ny-1; j++ {
			u0[j*Nx+i] = (c.s[(j+1)*Nx+i] - c.s[j*Nx+i]) / c.Dy
			u1[j*Nx+i] = -(c.s[j*Nx+i+1] - c.s[j*Nx+i]) / c.Dx
		}
	}
	if !c.sHalo.hasTop() {
		row := (Ny - 1) * Nx
		for i := 0; i < Nx; i++ {
			u0[row+i] = c.U // no-slip lid
		}
	}
}

// GetData copies the local vorticity and streamfunction into the caller's
// buffers; when two more buffers are supplied, the derived velocity field is
// written into them as well.
func (c *LidDrivenCavity) GetData(vOut, sOut []float64, uOut ...[]float64) {
	copy(vOut, c.v)
	copy(sOut, c.s)
	if len(uOut) >= 2 {
		c.velocities(uOut[0], uOut[1])
	}
}

// WriteSolution writes the local slice as plain text, one line per grid
// point with columns x y v s u w. Columns of constant x are contiguous and
// separated by a blank line.
func (c *LidDrivenCavity) WriteSolution(file string) error {
	var (
		Nx, Ny = c.Nx, c.Ny
		u0     = make([]float64, Nx*Ny)
		u1     = make([]float64, Nx*Ny)
	)
	c.velocities(u0, u1)

	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("unable to write solution: %w", err)
	}
	defer f.Close()
	if c.root() {
		fmt.Printf("Writing file %s\n", file)
	}

	w := bufio.NewWriter(f)
	for i := 0; i < Nx; i++ {
		for j := 0; j < Ny; j++ {
			k := j*Nx + i
			fmt.Fprintf(w, "%g %g %g %g %g %g\n",
				float64(c.XStart+i)*c.Dx, float64(c.YStart+j)*c.Dy,
				c.v[k], c.s[k], u0[k], u1[k])
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
