package Cavity2D

import (
	"github.com/notargets/gocavity/comms"
)

// Message tags per direction, named for where the payload lands: a process
// receives its bottom halo on tagFromBelow from the process below, which
// sent its top row upward under the same tag. Crossed wires between
// directions are impossible because each direction owns a tag.
const (
	tagFromBelow = 0 // top row sent up
	tagFromAbove = 1 // bottom row sent down
	tagFromRight = 2 // left column sent left
	tagFromLeft  = 3 // right column sent right
)

// halo owns the receive buffers for the four-neighbour exchange of one
// local field. begin posts all four sends and receives; end completes them.
// Neighbours at the global boundary are comms.ProcNull and exchange nothing.
type halo struct {
	nx, ny           int
	rowComm, colComm *comms.Comm
	top, bottom      int // neighbour ranks within colComm
	left, right      int // neighbour ranks within rowComm

	topData, bottomData []float64 // received rows, length nx
	leftData, rightData []float64 // received columns, length ny

	sendLeft, sendRight []float64 // strided column gathers, length ny

	reqs [8]*comms.Request
}

func newHalo(nx, ny int, pl *comms.Place) (h *halo) {
	h = &halo{
		nx:         nx,
		ny:         ny,
		rowComm:    pl.RowComm,
		colComm:    pl.ColComm,
		top:        pl.Top,
		bottom:     pl.Bottom,
		left:       pl.Left,
		right:      pl.Right,
		topData:    make([]float64, nx),
		bottomData: make([]float64, nx),
		leftData:   make([]float64, ny),
		rightData:  make([]float64, ny),
		sendLeft:   make([]float64, ny),
		sendRight:  make([]float64, ny),
	}
	return
}

func (h *halo) hasTop() bool    { return h.top != comms.ProcNull }
func (h *halo) hasBottom() bool { return h.bottom != comms.ProcNull }
func (h *halo) hasLeft() bool   { return h.left != comms.ProcNull }
func (h *halo) hasRight() bool  { return h.right != comms.ProcNull }

// begin posts the four edge sends of in and the four halo receives. The row
// sends go out first; the strided column gathers run while they are in
// flight.
func (h *halo) begin(in []float64) {
	var (
		nx, ny = h.nx, h.ny
	)
	h.reqs[0] = h.colComm.Isend(h.top, tagFromBelow, in[nx*(ny-1):nx*ny])
	h.reqs[1] = h.colComm.Isend(h.bottom, tagFromAbove, in[:nx])
	for j := 0; j < ny; j++ {
		h.sendLeft[j] = in[j*nx]
		h.sendRight[j] = in[j*nx+nx-1]
	}
	h.reqs[2] = h.rowComm.Isend(h.left, tagFromRight, h.sendLeft)
	h.reqs[3] = h.rowComm.Isend(h.right, tagFromLeft, h.sendRight)

	h.reqs[4] = h.colComm.Irecv(h.bottom, tagFromBelow, h.bottomData)
	h.reqs[5] = h.colComm.Irecv(h.top, tagFromAbove, h.topData)
	h.reqs[6] = h.rowComm.Irecv(h.right, tagFromRight, h.rightData)
	h.reqs[7] = h.rowComm.Irecv(h.left, tagFromLeft, h.leftData)
}

// end blocks until all four sends and all four receives have completed.
func (h *halo) end() {
	comms.WaitAll(h.reqs[:]...)
}

// at resolves the 5-point stencil neighbour (i,j) of field f, reaching into
// the halo buffers one cell beyond the local slice. Callers must not reach
// past a ProcNull edge.
func (h *halo) at(f []float64, i, j int) float64 {
	switch {
	case i < 0:
		return h.leftData[j]
	case i >= h.nx:
		return h.rightData[j]
	case j < 0:
		return h.bottomData[i]
	case j >= h.ny:
		return h.topData[i]
	}
	return f[j*h.nx+i]
}

// forEachPerimeter visits every point on the local domain edge exactly once.
func forEachPerimeter(nx, ny int, fn func(i, j int)) {
	for i := 0; i < nx; i++ {
		fn(i, 0)
		if ny > 1 {
			fn(i, ny-1)
		}
	}
	for j := 1; j < ny-1; j++ {
		fn(0, j)
		if nx > 1 {
			fn(nx-1, j)
		}
	}
}
