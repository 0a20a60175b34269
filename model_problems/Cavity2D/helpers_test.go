package Cavity2D

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notargets/gocavity/comms"
)

// runGrid executes fn once per seat of a np-process Cartesian grid, each in
// its own goroutine, and waits for all of them.
func runGrid(t *testing.T, np int, fn func(pl *comms.Place)) {
	t.Helper()
	grid, err := comms.NewCartGrid(np)
	require.NoError(t, err)
	var wg sync.WaitGroup
	for _, pl := range grid.Places {
		wg.Add(1)
		go func(pl *comms.Place) {
			defer wg.Done()
			fn(pl)
		}(pl)
	}
	wg.Wait()
}

// newCavity builds a configured advancer on one grid seat.
func newCavity(pl *comms.Place, Lx, Ly float64, Nx, Ny int, dt, T, Re float64) *LidDrivenCavity {
	c := NewLidDrivenCavity(pl)
	c.SetDomainSize(Lx, Ly)
	c.SetGridSize(Nx, Ny)
	c.SetTimeStep(dt)
	c.SetFinalTime(T)
	c.SetReynoldsNumber(Re)
	return c
}
