package scenario

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"pvmodel/internal/consts"
	"pvmodel/pkg/cell"
	"pvmodel/pkg/curve"
	"pvmodel/pkg/module"
	"pvmodel/pkg/topology"
)

// Layout describes the wiring pattern to generate.
type Layout struct {
	Type string `yaml:"type"` // "series", "crosstied" or a preset name

	// series layout
	Rows                int   `yaml:"rows"`
	ColumnsPerSubstring []int `yaml:"columns_per_substring"`

	// crosstied layout
	RowsPerSubstring []int `yaml:"rows_per_substring"`
	Columns          int   `yaml:"columns"`
	Partial          bool  `yaml:"partial"`
}

// CellParams carries optional overrides of the default cell model; zero
// fields keep the default value.
type CellParams struct {
	Rs       float64 `yaml:"rs"`
	Rsh      float64 `yaml:"rsh"`
	Isat1T0  float64 `yaml:"isat1_t0"`
	Isat2T0  float64 `yaml:"isat2_t0"`
	Isc0T0   float64 `yaml:"isc0_t0"`
	ARBD     float64 `yaml:"arbd"`
	VRBD     float64 `yaml:"vrbd"`
	NRBD     float64 `yaml:"nrbd"`
	Eg       float64 `yaml:"eg"`
	AlphaIsc float64 `yaml:"alpha_isc"`
}

// Shading dims a group of cells to one irradiance value.
type Shading struct {
	Cells      []int   `yaml:"cells"`
	Irradiance float64 `yaml:"irradiance"`
}

// Scenario is the parsed study description.
type Scenario struct {
	Title         string     `yaml:"title"`
	Layout        Layout     `yaml:"layout"`
	Cell          CellParams `yaml:"cell"`
	Temperature   float64    `yaml:"temperature"`    // cell temperature (K); 0 means reference
	BypassVoltage *float64   `yaml:"bypass_voltage"` // nil means default
	CellArea      float64    `yaml:"cell_area"`      // cm^2; 0 means default
	Points        int        `yaml:"points"`         // samples per grid segment; 0 means default
	Shading       []Shading  `yaml:"shading"`
}

// Parse decodes a YAML scenario description.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if s.Layout.Type == "" {
		return nil, fmt.Errorf("scenario: layout.type is required")
	}
	return &s, nil
}

func (s *Scenario) buildTopology() (topology.Topology, error) {
	switch s.Layout.Type {
	case "series":
		if s.Layout.Rows <= 0 || len(s.Layout.ColumnsPerSubstring) == 0 {
			return nil, fmt.Errorf("scenario: series layout needs rows and columns_per_substring")
		}
		return topology.Series(s.Layout.Rows, s.Layout.ColumnsPerSubstring), nil
	case "crosstied":
		if len(s.Layout.RowsPerSubstring) == 0 || s.Layout.Columns <= 0 {
			return nil, fmt.Errorf("scenario: crosstied layout needs rows_per_substring and columns")
		}
		return topology.Crosstied(s.Layout.RowsPerSubstring, s.Layout.Columns, s.Layout.Partial), nil
	case "std24":
		return topology.STD24(), nil
	case "std72":
		return topology.STD72(), nil
	case "std96":
		return topology.STD96(), nil
	case "std128":
		return topology.STD128(), nil
	case "tct492":
		return topology.TCT492(), nil
	case "pct492":
		return topology.PCT492(), nil
	default:
		return nil, fmt.Errorf("scenario: unknown layout type %q", s.Layout.Type)
	}
}

func (s *Scenario) cellParams() cell.Params {
	p := cell.DefaultParams()
	o := s.Cell
	if o.Rs != 0 {
		p.Rs = o.Rs
	}
	if o.Rsh != 0 {
		p.Rsh = o.Rsh
	}
	if o.Isat1T0 != 0 {
		p.Isat1T0 = o.Isat1T0
	}
	if o.Isat2T0 != 0 {
		p.Isat2T0 = o.Isat2T0
	}
	if o.Isc0T0 != 0 {
		p.Isc0T0 = o.Isc0T0
	}
	if o.ARBD != 0 {
		p.ARBD = o.ARBD
	}
	if o.VRBD != 0 {
		p.VRBD = o.VRBD
	}
	if o.NRBD != 0 {
		p.NRBD = o.NRBD
	}
	if o.Eg != 0 {
		p.Eg = o.Eg
	}
	if o.AlphaIsc != 0 {
		p.AlphaIsc = o.AlphaIsc
	}
	return p
}

// Build constructs the module: generate the topology, compute the template
// cell at full sun, assemble, then apply the shading groups.
func (s *Scenario) Build() (*module.Module, error) {
	topo, err := s.buildTopology()
	if err != nil {
		return nil, err
	}

	tcell := s.Temperature
	if tcell == 0 {
		tcell = consts.T0
	}
	smp := curve.NewSampler(s.Points)

	template, err := cell.New(s.cellParams(), consts.E0, tcell, smp)
	if err != nil {
		return nil, fmt.Errorf("scenario: building template cell: %w", err)
	}

	vbypass := module.VBypass
	if s.BypassVoltage != nil {
		vbypass = *s.BypassVoltage
	}
	area := s.CellArea
	if area == 0 {
		area = module.CellArea
	}

	mod, err := module.NewUniform(topo, template, vbypass, area)
	if err != nil {
		return nil, err
	}

	for k, sh := range s.Shading {
		if len(sh.Cells) == 0 {
			return nil, fmt.Errorf("scenario: shading group %d has no cells", k)
		}
		if err := mod.SetIrradianceOn(sh.Cells, sh.Irradiance); err != nil {
			return nil, fmt.Errorf("scenario: shading group %d: %w", k, err)
		}
	}
	return mod, nil
}
