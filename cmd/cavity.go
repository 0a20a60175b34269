/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io/ioutil"
	"os"
	"sync"
	"time"

	"github.com/notargets/avs/chart2d"
	utils2 "github.com/notargets/avs/utils"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/notargets/gocavity/InputParameters"
	"github.com/notargets/gocavity/comms"
	"github.com/notargets/gocavity/model_problems/Cavity2D"
)

type ModelCavity struct {
	Np        int // number of processes, must be a perfect square
	Nx, Ny    int
	Lx, Ly    float64
	Dt        float64
	FinalTime float64
	Re        float64
	OutFile   string
	Graph     bool
}

// CavityCmd represents the cavity command
var CavityCmd = &cobra.Command{
	Use:   "cavity",
	Short: "Lid driven cavity solution on a distributed Cartesian grid",
	Long: `
Marches the streamfunction-vorticity formulation of the lid driven cavity
with explicit Euler time stepping and a distributed preconditioned
conjugate gradient Poisson solver,

gocavity cavity --np 4 --nx 201 --ny 201 --re 1000 --dt 0.005 --finalTime 0.1`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cavity called")
		m := &ModelCavity{}
		m.Np, _ = cmd.Flags().GetInt("np")
		m.Nx, _ = cmd.Flags().GetInt("nx")
		m.Ny, _ = cmd.Flags().GetInt("ny")
		m.Lx, _ = cmd.Flags().GetFloat64("lx")
		m.Ly, _ = cmd.Flags().GetFloat64("ly")
		m.Dt, _ = cmd.Flags().GetFloat64("dt")
		m.FinalTime, _ = cmd.Flags().GetFloat64("finalTime")
		m.Re, _ = cmd.Flags().GetFloat64("re")
		m.OutFile, _ = cmd.Flags().GetString("out")
		m.Graph, _ = cmd.Flags().GetBool("graph")
		if ipFile, _ := cmd.Flags().GetString("inputFile"); len(ipFile) != 0 {
			processInput(m, ipFile)
		}
		if prof, _ := cmd.Flags().GetBool("profile"); prof {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		}
		if err := RunCavity(m); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(CavityCmd)
	CavityCmd.Flags().IntP("np", "p", 1, "number of processes, must be a perfect square")
	CavityCmd.Flags().Int("nx", 21, "number of grid points in x")
	CavityCmd.Flags().Int("ny", 21, "number of grid points in y")
	CavityCmd.Flags().Float64("lx", 1.0, "domain length in x")
	CavityCmd.Flags().Float64("ly", 1.0, "domain length in y")
	CavityCmd.Flags().Float64("dt", 0.01, "time step")
	CavityCmd.Flags().Float64("finalTime", 1.0, "final integration time")
	CavityCmd.Flags().Float64("re", 100.0, "Reynolds number")
	CavityCmd.Flags().StringP("out", "o", "cavity.txt", "solution output file")
	CavityCmd.Flags().StringP("inputFile", "I", "", "YAML file overriding the run parameters")
	CavityCmd.Flags().BoolP("graph", "g", false, "display the centreline velocity profile after solving (single process runs)")
	CavityCmd.Flags().Bool("profile", false, "write a CPU profile of the run")
}

func processInput(m *ModelCavity, ipFile string) {
	data, err := ioutil.ReadFile(ipFile)
	if err != nil {
		panic(err)
	}
	cp := &InputParameters.CavityParameters{}
	if err = cp.Parse(data); err != nil {
		panic(err)
	}
	cp.Print()
	m.Lx, m.Ly = cp.Lx, cp.Ly
	m.Nx, m.Ny = cp.Nx, cp.Ny
	m.Dt = cp.Dt
	m.FinalTime = cp.FinalTime
	m.Re = cp.Re
	if cp.Processes != 0 {
		m.Np = cp.Processes
	}
	if len(cp.OutputFile) != 0 {
		m.OutFile = cp.OutputFile
	}
}

// RunCavity spawns one goroutine per seat on the process grid, runs the
// solver to completion on each, and surfaces the first failure.
func RunCavity(m *ModelCavity) error {
	grid, err := comms.NewCartGrid(m.Np)
	if err != nil {
		return err
	}
	var (
		wg       sync.WaitGroup
		cavities = make([]*Cavity2D.LidDrivenCavity, m.Np)
		errs     = make([]error, m.Np)
	)
	for n, pl := range grid.Places {
		wg.Add(1)
		go func(n int, pl *comms.Place) {
			defer wg.Done()
			cavities[n], errs[n] = runPlace(m, pl)
		}(n, pl)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	if m.Graph && m.Np == 1 {
		plotCentreline(cavities[0])
	}
	return nil
}

func runPlace(m *ModelCavity, pl *comms.Place) (c *Cavity2D.LidDrivenCavity, err error) {
	c = Cavity2D.NewLidDrivenCavity(pl)
	c.SetDomainSize(m.Lx, m.Ly)
	c.SetGridSize(m.Nx, m.Ny)
	c.SetTimeStep(m.Dt)
	c.SetFinalTime(m.FinalTime)
	c.SetReynoldsNumber(m.Re)
	if err = c.PrintConfiguration(); err != nil {
		return
	}
	c.Initialise()
	if err = c.Integrate(); err != nil {
		return
	}
	err = c.WriteSolution(outName(m, pl))
	return
}

func outName(m *ModelCavity, pl *comms.Place) string {
	if m.Np == 1 {
		return m.OutFile
	}
	return fmt.Sprintf("%s.%d_%d", m.OutFile, pl.RowRank, pl.ColRank)
}

// plotCentreline charts the horizontal velocity along the vertical
// centreline of the cavity.
func plotCentreline(c *Cavity2D.LidDrivenCavity) {
	var (
		n      = c.GetNpts()
		v      = make([]float64, n)
		s      = make([]float64, n)
		u0     = make([]float64, n)
		u1     = make([]float64, n)
		nx, ny = c.GetNx(), c.GetNy()
	)
	c.GetData(v, s, u0, u1)
	mid := nx / 2
	y := make([]float64, ny)
	u := make([]float64, ny)
	for j := 0; j < ny; j++ {
		y[j] = float64(j) * c.GetDy()
		u[j] = u0[j*nx+mid]
	}
	chart := chart2d.NewChart2D(1024, 768, 0, float32(c.GetGlobalLy()), -1, 1)
	colorMap := utils2.NewColorMap(-1, 1, 1)
	go chart.Plot()
	if err := chart.AddSeries("U centreline", y, u, chart2d.CrossGlyph, chart2d.Dashed, colorMap.GetRGB(0)); err != nil {
		panic("unable to add graph series")
	}
	time.Sleep(10 * time.Second)
}
