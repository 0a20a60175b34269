package InputParameters

import (
	"fmt"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type CavityParameters struct {
	Title      string  `yaml:"Title"`
	Lx         float64 `yaml:"Lx"`
	Ly         float64 `yaml:"Ly"`
	Nx         int     `yaml:"Nx"`
	Ny         int     `yaml:"Ny"`
	Dt         float64 `yaml:"Dt"`
	FinalTime  float64 `yaml:"FinalTime"`
	Re         float64 `yaml:"Re"`
	Processes  int     `yaml:"Processes"`
	OutputFile string  `yaml:"OutputFile"`
}

func (cp *CavityParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, cp)
}

func (cp *CavityParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", cp.Title)
	fmt.Printf("%8.5f x %8.5f\t= Domain\n", cp.Lx, cp.Ly)
	fmt.Printf("%8d x %8d\t= Grid\n", cp.Nx, cp.Ny)
	fmt.Printf("%8.5f\t\t= Dt\n", cp.Dt)
	fmt.Printf("%8.5f\t\t= FinalTime\n", cp.FinalTime)
	fmt.Printf("%8.5f\t\t= Re\n", cp.Re)
	fmt.Printf("[%d]\t\t\t= Processes\n", cp.Processes)
}
