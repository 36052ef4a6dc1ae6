package module

import (
	"fmt"

	"pvmodel/pkg/cell"
	"pvmodel/pkg/curve"
	"pvmodel/pkg/topology"
)

const (
	VBypass  = -0.5   // Bypass diode trigger voltage (V)
	CellArea = 153.33 // Cell area (cm^2)
)

// State holds everything derived from the cells and the topology. It is
// recomputed as a whole on every mutation; a Module never exposes a
// partially updated state.
type State struct {
	Imod []float64 // Module current (A)
	Vmod []float64 // Module voltage (V)
	Pmod []float64 // Module power (W)

	Isubstr [][]float64 // Per-substring current, bypass-clamped (A)
	Vsubstr [][]float64 // Per-substring voltage, bypass-clamped (V)
}

// Module combines the I-V characteristics of its cells according to its
// wiring topology. Cells are held by reference and may be shared between
// positions; mutation is copy-on-write through the SetIrradiance calls.
type Module struct {
	topo     topology.Topology
	cells    []*cell.Cell
	smp      *curve.Sampler
	vbypass  float64
	cellArea float64
	state    State
}

// New builds a module from a topology and one cell per flat index. The
// derived curves are computed before New returns.
func New(topo topology.Topology, cells []*cell.Cell, vbypass, cellArea float64) (*Module, error) {
	if len(topo) == 0 {
		return nil, fmt.Errorf("%w: topology has no substrings", ErrConfiguration)
	}
	if err := topo.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if topo.CellCount() != len(cells) {
		return nil, fmt.Errorf("%w: number of cells doesn't match cell position pattern (%d != %d)",
			ErrConfiguration, len(cells), topo.CellCount())
	}

	// Empty substrings or columns have no curve to contribute; rejecting
	// them here keeps every downstream combine working on non-empty input.
	for k, sub := range topo {
		if len(sub) == 0 {
			return nil, fmt.Errorf("%w: substring %d has no columns", ErrConfiguration, k)
		}
		for _, col := range sub {
			if len(col) == 0 {
				return nil, fmt.Errorf("%w: substring %d has an empty column", ErrConfiguration, k)
			}
		}
	}
	for k, c := range cells {
		if c == nil {
			return nil, fmt.Errorf("%w: cell %d is nil", ErrConfiguration, k)
		}
	}

	smp := cells[0].Sampler()
	npts := len(cells[0].Curve().I)
	for k, c := range cells {
		if len(c.Curve().I) != npts {
			return nil, fmt.Errorf("%w: cell %d curve length differs (%d != %d)",
				ErrConfiguration, k, len(c.Curve().I), npts)
		}
	}

	m := &Module{
		topo:     topo,
		cells:    cells,
		smp:      smp,
		vbypass:  vbypass,
		cellArea: cellArea,
	}
	state, err := m.computeState(cells)
	if err != nil {
		return nil, err
	}
	m.state = state
	return m, nil
}

// NewUniform builds a module where every position references the same cell.
func NewUniform(topo topology.Topology, template *cell.Cell, vbypass, cellArea float64) (*Module, error) {
	cells := make([]*cell.Cell, topo.CellCount())
	for k := range cells {
		cells[k] = template
	}
	return New(topo, cells, vbypass, cellArea)
}

func (m *Module) CellCount() int              { return len(m.cells) }
func (m *Module) Topology() topology.Topology { return m.topo }
func (m *Module) VBypass() float64            { return m.vbypass }
func (m *Module) CellArea() float64           { return m.cellArea }

// Current, Voltage and Power return the module-level curve arrays.
func (m *Module) Current() []float64 { return m.state.Imod }
func (m *Module) Voltage() []float64 { return m.state.Vmod }
func (m *Module) Power() []float64   { return m.state.Pmod }

// SubstringCurves returns the bypass-clamped per-substring curves.
func (m *Module) SubstringCurves() (i, v [][]float64) {
	return m.state.Isubstr, m.state.Vsubstr
}

// MaxPower returns the maximum power point of the module curve.
func (m *Module) MaxPower() (p, v, i float64) {
	for k, pk := range m.state.Pmod {
		if pk > p {
			p, v, i = pk, m.state.Vmod[k], m.state.Imod[k]
		}
	}
	return p, v, i
}

// Isc returns the module short-circuit current by interpolation.
func (m *Module) Isc() float64 {
	return curve.Curve{I: m.state.Imod, V: m.state.Vmod}.Isc()
}

// Voc returns the module open-circuit voltage by interpolation.
func (m *Module) Voc() float64 {
	return curve.Curve{I: m.state.Imod, V: m.state.Vmod}.Voc()
}

// Per-cell views, ordered by flat cell index.

func (m *Module) Irradiances() []float64 {
	return m.collect(func(c *cell.Cell) float64 { return c.Ee() })
}

func (m *Module) Temperatures() []float64 {
	return m.collect(func(c *cell.Cell) float64 { return c.Tcell() })
}

func (m *Module) ShortCircuitCurrents() []float64 {
	return m.collect(func(c *cell.Cell) float64 { return c.Isc() })
}

func (m *Module) OpenCircuitVoltages() []float64 {
	return m.collect(func(c *cell.Cell) float64 { return c.Voc() })
}

func (m *Module) BreakdownVoltages() []float64 {
	return m.collect(func(c *cell.Cell) float64 { return c.VRBD() })
}

func (m *Module) CellCurrents() [][]float64 {
	out := make([][]float64, len(m.cells))
	for k, c := range m.cells {
		i, _ := c.IV()
		out[k] = i
	}
	return out
}

func (m *Module) CellVoltages() [][]float64 {
	out := make([][]float64, len(m.cells))
	for k, c := range m.cells {
		_, v := c.IV()
		out[k] = v
	}
	return out
}

func (m *Module) CellPowers() [][]float64 {
	out := make([][]float64, len(m.cells))
	for k, c := range m.cells {
		out[k] = c.Curve().Power()
	}
	return out
}

// Cells returns the cell references by flat index. Shared; callers must not
// modify the slice.
func (m *Module) Cells() []*cell.Cell { return m.cells }

func (m *Module) collect(f func(*cell.Cell) float64) []float64 {
	out := make([]float64, len(m.cells))
	for k, c := range m.cells {
		out[k] = f(c)
	}
	return out
}

// SetIrradiance applies one irradiance value to every cell.
func (m *Module) SetIrradiance(ee float64) error {
	idxs := make([]int, len(m.cells))
	for k := range idxs {
		idxs[k] = k
	}
	return m.SetIrradianceOn(idxs, ee)
}

// SetIrradianceOn applies one irradiance value to the given cells.
func (m *Module) SetIrradianceOn(cells []int, ee float64) error {
	values := make([]float64, len(cells))
	for k := range values {
		values[k] = ee
	}
	return m.SetIrradianceEach(cells, values)
}

// SetIrradianceEach applies one irradiance value per targeted cell. Cells
// that are not targeted keep their references; targeted cells are recomputed
// once per distinct (previous state, requested irradiance) pair, so groups
// of positions sharing one cell keep sharing after the update. The module
// curves are recomputed before the call returns; on error nothing changes.
func (m *Module) SetIrradianceEach(cells []int, ee []float64) error {
	if cells == nil {
		cells = make([]int, len(m.cells))
		for k := range cells {
			cells[k] = k
		}
	}
	if len(ee) != len(cells) {
		return fmt.Errorf("%w: must supply one irradiance value per cell (%d values for %d cells)",
			ErrInvalidInput, len(ee), len(cells))
	}
	for _, idx := range cells {
		if idx < 0 || idx >= len(m.cells) {
			return fmt.Errorf("%w: cell index %d out of range [0,%d)", ErrInvalidInput, idx, len(m.cells))
		}
	}

	// Copy-on-write: rebind references in a fresh slice, recomputing once
	// per distinct prior operating point and requested value.
	type key struct {
		prevEe, prevTcell, ee float64
	}
	rebuilt := make(map[key]*cell.Cell)
	next := make([]*cell.Cell, len(m.cells))
	copy(next, m.cells)

	for k, idx := range cells {
		old := m.cells[idx]
		ck := key{old.Ee(), old.Tcell(), ee[k]}
		nc, ok := rebuilt[ck]
		if !ok {
			var err error
			nc, err = old.WithIrradiance(ee[k])
			if err != nil {
				return fmt.Errorf("%w: cell %d: %v", ErrInvalidInput, idx, err)
			}
			rebuilt[ck] = nc
		}
		next[idx] = nc
	}

	state, err := m.computeState(next)
	if err != nil {
		return err
	}
	m.cells = next
	m.state = state
	return nil
}
