package module

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvmodel/internal/consts"
	"pvmodel/pkg/cell"
	"pvmodel/pkg/curve"
	"pvmodel/pkg/topology"
)

func stdCell(t *testing.T) *cell.Cell {
	t.Helper()
	c, err := cell.New(cell.DefaultParams(), consts.E0, consts.T0, curve.NewSampler(curve.NPTS))
	require.NoError(t, err)
	return c
}

func TestSingleCellRoundTrip(t *testing.T) {
	c := stdCell(t)
	mod, err := NewUniform(topology.Series(1, []int{1}), c, VBypass, CellArea)
	require.NoError(t, err)

	// A one-cell module's curve is the cell curve resampled on the module
	// grid; the characteristic points must survive.
	assert.InDelta(t, c.Isc(), mod.Isc(), c.Isc()*0.01)
	assert.InDelta(t, c.Curve().Voc(), mod.Voc(), 0.01)

	// Power is the elementwise I*V product.
	i, v, p := mod.Current(), mod.Voltage(), mod.Power()
	require.Len(t, p, len(i))
	for k := range p {
		assert.InDelta(t, i[k]*v[k], p[k], 1e-9)
	}
}

func TestSeriesSubstringModule(t *testing.T) {
	// 24 cells in one series substring: one column of 24 rows, no
	// crossties.
	c := stdCell(t)
	mod, err := NewUniform(topology.Series(24, []int{1}), c, VBypass, CellArea)
	require.NoError(t, err)

	assert.Equal(t, 24, mod.CellCount())
	assert.InDelta(t, 24*c.Curve().Voc(), mod.Voc(), 24*c.Curve().Voc()*0.02)
	assert.InDelta(t, c.Isc(), mod.Isc(), c.Isc()*0.02)

	isub, vsub := mod.SubstringCurves()
	require.Len(t, isub, 1)
	require.Len(t, vsub, 1)
	assert.True(t, sort.Float64sAreSorted(vsub[0]))
}

func TestCrosstied2x2Substring(t *testing.T) {
	// 2x2 fully crosstied: two rows in series, each of two cells in
	// parallel, so the substring doubles both Isc and Voc.
	c := stdCell(t)
	mod, err := NewUniform(topology.Crosstied([]int{2}, 2, false), c, VBypass, CellArea)
	require.NoError(t, err)

	assert.InDelta(t, 2*c.Isc(), mod.Isc(), 2*c.Isc()*0.02)
	assert.InDelta(t, 2*c.Curve().Voc(), mod.Voc(), 2*c.Curve().Voc()*0.02)
}

func TestPartialCrosstiedSubstring(t *testing.T) {
	// 2 rows x 2 columns, crosstied only at the top: two 2-cell series
	// strings in parallel. Doubles Isc and Voc like the crosstied case
	// but exercises the mixed-topology walk.
	c := stdCell(t)
	mod, err := NewUniform(topology.Crosstied([]int{2}, 2, true), c, VBypass, CellArea)
	require.NoError(t, err)

	assert.InDelta(t, 2*c.Isc(), mod.Isc(), 2*c.Isc()*0.02)
	assert.InDelta(t, 2*c.Curve().Voc(), mod.Voc(), 2*c.Curve().Voc()*0.02)
}

func TestMixedBlockBoundary(t *testing.T) {
	// Column patterns differ between columns 2 and 3, so the walk closes
	// one block mid-substring and the trailing column becomes its own
	// block. Every strand contributes its short-circuit current.
	sub := topology.Substring{
		topology.Column{{Crosstie: true, Index: 0}, {Crosstie: false, Index: 1}},
		topology.Column{{Crosstie: true, Index: 2}, {Crosstie: false, Index: 3}},
		topology.Column{{Crosstie: true, Index: 4}, {Crosstie: true, Index: 5}},
		topology.Column{{Crosstie: true, Index: 6}, {Crosstie: true, Index: 7}},
	}
	c := stdCell(t)
	mod, err := NewUniform(topology.Topology{sub}, c, VBypass, CellArea)
	require.NoError(t, err)

	assert.InDelta(t, 4*c.Isc(), mod.Isc(), 4*c.Isc()*0.05)

	// The parallel blocks have mismatched strand lengths, so the module
	// Voc falls strictly between one and two cell Voc.
	voc := c.Curve().Voc()
	assert.Greater(t, mod.Voc(), voc)
	assert.Less(t, mod.Voc(), 2*voc)
}

func TestTopologyErrorOnUntiedFirstRow(t *testing.T) {
	// Mixed substring whose first column starts with a series run not
	// anchored by a crosstie.
	sub := topology.Substring{
		topology.Column{{Crosstie: false, Index: 0}, {Crosstie: true, Index: 1}},
		topology.Column{{Crosstie: true, Index: 2}, {Crosstie: true, Index: 3}},
	}
	mod, err := NewUniform(topology.Topology{sub}, stdCell(t), VBypass, CellArea)

	require.ErrorIs(t, err, ErrTopology)
	assert.Nil(t, mod, "no partial output on topology error")
}

func TestConfigurationErrors(t *testing.T) {
	c := stdCell(t)

	// Cell count mismatch.
	_, err := New(topology.Series(2, []int{1}), []*cell.Cell{c}, VBypass, CellArea)
	require.ErrorIs(t, err, ErrConfiguration)

	// Duplicate flat index.
	bad := topology.Topology{
		{topology.Column{{Index: 0}, {Index: 0}}},
	}
	_, err = New(bad, []*cell.Cell{c, c}, VBypass, CellArea)
	require.ErrorIs(t, err, ErrConfiguration)

	// Empty topology.
	_, err = New(topology.Topology{}, nil, VBypass, CellArea)
	require.ErrorIs(t, err, ErrConfiguration)

	// Cells sampled on grids of different lengths.
	coarse, err := cell.New(cell.DefaultParams(), consts.E0, consts.T0, curve.NewSampler(51))
	require.NoError(t, err)
	_, err = New(topology.Series(2, []int{1}), []*cell.Cell{c, coarse}, VBypass, CellArea)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestConstructionRejectsDegenerateInputs(t *testing.T) {
	// Nil cells, including position 0.
	mod, err := New(topology.Series(2, []int{1}), []*cell.Cell{nil, nil}, VBypass, CellArea)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Nil(t, mod)

	c := stdCell(t)
	_, err = New(topology.Series(2, []int{1}), []*cell.Cell{c, nil}, VBypass, CellArea)
	require.ErrorIs(t, err, ErrConfiguration)

	// Substring without columns: zero cells, so an empty cell slice matches
	// the count check and the shape check has to catch it.
	mod, err = New(topology.Topology{topology.Substring{}}, nil, VBypass, CellArea)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Nil(t, mod)

	// Column without rows inside an otherwise valid substring.
	bad := topology.Topology{
		{topology.Column{}, topology.Column{{Index: 0}}},
	}
	_, err = New(bad, []*cell.Cell{c}, VBypass, CellArea)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestBypassClampExactness(t *testing.T) {
	v := []float64{-2, -0.5, -0.1, 0.3, 1.2}
	ClampVoltage(v, -0.5)
	assert.Equal(t, []float64{-0.5, -0.5, -0.1, 0.3, 1.2}, v)

	// Idempotent: clamping a clamped curve changes nothing.
	clamped := append([]float64(nil), v...)
	ClampVoltage(clamped, -0.5)
	assert.Equal(t, v, clamped)
}

func TestBypassClampAppliedToSubstrings(t *testing.T) {
	c := stdCell(t)
	mod, err := NewUniform(topology.Series(24, []int{1}), c, VBypass, CellArea)
	require.NoError(t, err)

	_, vsub := mod.SubstringCurves()
	for _, vs := range vsub {
		for _, v := range vs {
			assert.GreaterOrEqual(t, v, VBypass)
		}
	}
}

func TestIrradianceSharing(t *testing.T) {
	c := stdCell(t)
	mod, err := NewUniform(topology.STD24(), c, VBypass, CellArea)
	require.NoError(t, err)

	// All positions start out aliasing the template.
	for _, cc := range mod.Cells() {
		require.Same(t, c, cc)
	}

	require.NoError(t, mod.SetIrradiance(0.5))

	// One recomputation shared by every position.
	cells := mod.Cells()
	first := cells[0]
	assert.NotSame(t, c, first)
	for _, cc := range cells {
		assert.Same(t, first, cc)
	}
	assert.InDelta(t, c.Isc()/2, first.Isc(), 1e-9)
}

func TestSetIrradianceOnSubset(t *testing.T) {
	c := stdCell(t)
	mod, err := NewUniform(topology.STD24(), c, VBypass, CellArea)
	require.NoError(t, err)

	require.NoError(t, mod.SetIrradianceOn([]int{3, 7}, 0.2))

	cells := mod.Cells()
	assert.Same(t, cells[3], cells[7], "equally shaded cells share one state")
	assert.NotSame(t, c, cells[3])
	for k, cc := range cells {
		if k == 3 || k == 7 {
			continue
		}
		assert.Same(t, c, cc, "untargeted cells keep their reference")
	}

	ee := mod.Irradiances()
	assert.Equal(t, 0.2, ee[3])
	assert.Equal(t, 0.2, ee[7])
	assert.Equal(t, 1.0, ee[0])
}

func TestSetIrradianceEachValidation(t *testing.T) {
	c := stdCell(t)
	mod, err := NewUniform(topology.STD24(), c, VBypass, CellArea)
	require.NoError(t, err)

	before := mod.Voc()

	err = mod.SetIrradianceEach([]int{0, 1, 2}, []float64{0.5, 0.5})
	require.ErrorIs(t, err, ErrInvalidInput)

	err = mod.SetIrradianceEach([]int{99}, []float64{0.5})
	require.ErrorIs(t, err, ErrInvalidInput)

	err = mod.SetIrradianceEach([]int{0}, []float64{-1})
	require.ErrorIs(t, err, ErrInvalidInput)

	// Failed mutations leave the previous consistent state in place.
	assert.Equal(t, 1.0, mod.Irradiances()[0])
	assert.Equal(t, before, mod.Voc())
}

func TestShadingReducesPower(t *testing.T) {
	c := stdCell(t)
	mod, err := NewUniform(topology.STD96(), c, VBypass, CellArea)
	require.NoError(t, err)

	full, _, _ := mod.MaxPower()
	require.Greater(t, full, 0.0)

	require.NoError(t, mod.SetIrradianceOn([]int{0, 1, 2, 3}, 0.1))
	shaded, _, _ := mod.MaxPower()

	assert.Less(t, shaded, full)
	assert.Greater(t, shaded, 0.0)

	// Facade stays consistent synchronously.
	assert.Equal(t, 0.1, mod.Irradiances()[2])
	assert.InDelta(t, c.Isc()*0.1, mod.ShortCircuitCurrents()[2], 1e-9)
}

func TestPerCellViews(t *testing.T) {
	c := stdCell(t)
	mod, err := NewUniform(topology.STD24(), c, VBypass, CellArea)
	require.NoError(t, err)

	assert.Len(t, mod.Irradiances(), 24)
	assert.Len(t, mod.Temperatures(), 24)
	assert.Len(t, mod.ShortCircuitCurrents(), 24)
	assert.Len(t, mod.OpenCircuitVoltages(), 24)
	assert.Len(t, mod.BreakdownVoltages(), 24)
	assert.Len(t, mod.CellCurrents(), 24)
	assert.Len(t, mod.CellVoltages(), 24)
	assert.Len(t, mod.CellPowers(), 24)

	assert.Equal(t, c.VRBD(), mod.BreakdownVoltages()[5])
	assert.Equal(t, consts.T0, mod.Temperatures()[0])

	p := mod.CellPowers()[0]
	i := mod.CellCurrents()[0]
	v := mod.CellVoltages()[0]
	for k := range p {
		assert.InDelta(t, i[k]*v[k], p[k], 1e-9)
	}
}

func TestMismatchLimitsSeriesCurrent(t *testing.T) {
	// In a series substring without crossties the dimmest cell limits the
	// current at the maximum power point.
	c := stdCell(t)
	mod, err := NewUniform(topology.Series(6, []int{1}), c, -10, CellArea)
	require.NoError(t, err)

	require.NoError(t, mod.SetIrradianceOn([]int{2}, 0.5))

	_, _, imp := mod.MaxPower()
	assert.Less(t, imp, c.Isc()*0.75)
}
