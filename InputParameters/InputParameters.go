package InputParameters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/halo/mesh"
	"github.com/notargets/halo/types"
)

// Face names used as keys of the BCs map, in mesh.Config order
var FaceNames = [6]string{"x1inner", "x1outer", "x2inner", "x2outer", "x3inner", "x3outer"}

// Parameters obtained from the YAML input file
type InputParameters struct {
	Title     string            `json:"Title"`
	MeshNx    []int             `json:"MeshNx"`  // Mesh cells along x1, x2, x3
	BlockNx   []int             `json:"BlockNx"` // Block interior cells along x1, x2, x3
	NGhost    int               `json:"NGhost"`
	NVar      int               `json:"NVar"`
	NRanks    int               `json:"NRanks"`
	Cycles    int               `json:"Cycles"`
	ProcLimit int               `json:"ProcLimit"`
	Transport string            `json:"Transport"`
	Timeout   float64           `json:"Timeout"` // Seconds, 0 waits forever
	BCs       map[string]string `json:"BCs"`     // Face name to BC name, unlisted faces are periodic
}

const ExampleFile = `
########################################
Title: "Periodic cube"
MeshNx: [32, 32, 32]
BlockNx: [8, 8, 8]
NGhost: 2
NVar: 5
NRanks: 4
Cycles: 10
Transport: local # or tcp
BCs:
  x3inner: outflow
  x3outer: outflow
########################################
`

func (ip *InputParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

// Validate fills in defaults and rejects values no mesh can be built from
func (ip *InputParameters) Validate() (err error) {
	if len(ip.MeshNx) == 0 || len(ip.MeshNx) > 3 {
		return fmt.Errorf("MeshNx needs 1 to 3 extents, have %v", ip.MeshNx)
	}
	if len(ip.BlockNx) == 0 {
		ip.BlockNx = append([]int(nil), ip.MeshNx...)
	}
	if len(ip.BlockNx) != len(ip.MeshNx) {
		return fmt.Errorf("BlockNx %v and MeshNx %v have different lengths", ip.BlockNx, ip.MeshNx)
	}
	for len(ip.MeshNx) < 3 {
		ip.MeshNx = append(ip.MeshNx, 1)
		ip.BlockNx = append(ip.BlockNx, 1)
	}
	if ip.NGhost == 0 {
		ip.NGhost = 2
	}
	if ip.NVar == 0 {
		ip.NVar = 1
	}
	if ip.NRanks == 0 {
		ip.NRanks = 1
	}
	if ip.Cycles == 0 {
		ip.Cycles = 1
	}
	if ip.Transport == "" {
		ip.Transport = "local"
	}
	ip.Transport = strings.ToLower(strings.TrimSpace(ip.Transport))
	switch {
	case ip.NGhost < 1:
		return fmt.Errorf("NGhost must be at least 1, have %d", ip.NGhost)
	case ip.NVar < 1:
		return fmt.Errorf("NVar must be at least 1, have %d", ip.NVar)
	case ip.NRanks < 1:
		return fmt.Errorf("NRanks must be at least 1, have %d", ip.NRanks)
	case ip.Cycles < 1:
		return fmt.Errorf("Cycles must be at least 1, have %d", ip.Cycles)
	case ip.ProcLimit < 0:
		return fmt.Errorf("ProcLimit must not be negative, have %d", ip.ProcLimit)
	case ip.Timeout < 0:
		return fmt.Errorf("Timeout must not be negative, have %v", ip.Timeout)
	}
	for face, bc := range ip.BCs {
		if faceIndex(face) < 0 {
			return fmt.Errorf("unknown face %q in BCs, use one of %v", face, FaceNames)
		}
		if types.NewBCFLAG(bc) == types.BC_None {
			return fmt.Errorf("face %s has unknown BC %q", face, bc)
		}
	}
	return
}

func faceIndex(face string) int {
	face = strings.ToLower(strings.TrimSpace(face))
	for i, name := range FaceNames {
		if name == face {
			return i
		}
	}
	return -1
}

// MeshConfig converts validated parameters into a mesh description
func (ip *InputParameters) MeshConfig() (cfg mesh.Config, err error) {
	if err = ip.Validate(); err != nil {
		return
	}
	cfg = mesh.Config{
		NGhost: ip.NGhost,
		NRanks: ip.NRanks,
	}
	copy(cfg.Nx[:], ip.MeshNx)
	copy(cfg.BlockNx[:], ip.BlockNx)
	for i := range cfg.BCs {
		cfg.BCs[i] = types.BC_Periodic
	}
	for face, bc := range ip.BCs {
		cfg.BCs[faceIndex(face)] = types.NewBCFLAG(bc)
	}
	// Opposite faces must agree on periodicity or the neighbor graph is one sided
	for axis := 0; axis < 3; axis++ {
		lo, hi := cfg.BCs[2*axis], cfg.BCs[2*axis+1]
		if (lo == types.BC_Periodic) != (hi == types.BC_Periodic) {
			return cfg, fmt.Errorf("faces %s and %s must both be periodic or both not, have %s and %s",
				FaceNames[2*axis], FaceNames[2*axis+1], lo, hi)
		}
	}
	return
}

func (ip *InputParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("%v\t\t= MeshNx\n", ip.MeshNx)
	fmt.Printf("%v\t\t= BlockNx\n", ip.BlockNx)
	fmt.Printf("[%d]\t\t\t\t= NGhost\n", ip.NGhost)
	fmt.Printf("[%d]\t\t\t\t= NVar\n", ip.NVar)
	fmt.Printf("[%d]\t\t\t\t= NRanks\n", ip.NRanks)
	fmt.Printf("[%d]\t\t\t\t= Cycles\n", ip.Cycles)
	fmt.Printf("[%s]\t\t\t= Transport\n", ip.Transport)
	keys := make([]string, len(ip.BCs))
	i := 0
	for k := range ip.BCs {
		keys[i] = k
		i++
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("BCs[%s] = %v\n", key, ip.BCs[key])
	}
}
