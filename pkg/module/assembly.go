package module

import (
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"pvmodel/pkg/cell"
	"pvmodel/pkg/curve"
	"pvmodel/pkg/topology"
)

// computeState assembles every substring curve and the module curve for the
// given cell assignment. Substrings are electrically independent, so they
// are assembled concurrently into disjoint, pre-sized slots.
func (m *Module) computeState(cells []*cell.Cell) (State, error) {
	nsub := len(m.topo)
	st := State{
		Isubstr: make([][]float64, nsub),
		Vsubstr: make([][]float64, nsub),
	}
	iscSub := make([]float64, nsub)
	imaxSub := make([]float64, nsub)

	var g errgroup.Group
	for k, sub := range m.topo {
		k, sub := k, sub
		g.Go(func() error {
			c, err := m.substringCurve(sub, cells)
			if err != nil {
				return err
			}
			ClampVoltage(c.V, m.vbypass)
			st.Isubstr[k] = c.I
			st.Vsubstr[k] = c.V
			iscSub[k] = c.Isc()
			imaxSub[k] = floats.Max(c.I)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return State{}, err
	}

	subCurves := make([]curve.Curve, nsub)
	for k := range subCurves {
		subCurves[k] = curve.Curve{I: st.Isubstr[k], V: st.Vsubstr[k]}
	}
	mod, err := m.smp.CombineSeries(subCurves, mean(iscSub), floats.Max(imaxSub))
	if err != nil {
		return State{}, fmt.Errorf("%w: combining substrings: %v", ErrInvalidInput, err)
	}

	st.Imod = mod.I
	st.Vmod = mod.V
	st.Pmod = mod.Power()
	return st, nil
}

// ClampVoltage floors every sample of v at the bypass trigger voltage: the
// diode conducts wherever the substring would be driven below it. The floor
// is applied in place; samples already at or above it are untouched.
func ClampVoltage(v []float64, vbypass float64) {
	for k, vv := range v {
		if vv < vbypass {
			v[k] = vbypass
		}
	}
}

// substringCurve classifies the substring and combines its cell curves.
func (m *Module) substringCurve(sub topology.Substring, cells []*cell.Cell) (curve.Curve, error) {
	switch {
	case sub.AllSeries():
		return m.seriesOf(sub.Indexes(), cells)
	case sub.AllCrosstied():
		return m.crosstiedSubstring(sub, cells)
	default:
		return m.mixedSubstring(sub, cells)
	}
}

// seriesOf combines the given cells in series. The current grid is anchored
// at the mean short-circuit current and bounded by the largest current any
// of the cells reaches at its own breakdown voltage, which is where the
// weakest reverse-biased cell caps the composite.
func (m *Module) seriesOf(idxs []int, cells []*cell.Cell) (curve.Curve, error) {
	curves := make([]curve.Curve, len(idxs))
	iscs := make([]float64, len(idxs))
	iAtVrbd := make([]float64, len(idxs))
	for k, idx := range idxs {
		c := cells[idx]
		curves[k] = c.Curve()
		iscs[k] = c.Isc()
		iAtVrbd[k] = curve.Interp(c.VRBD(), curves[k].V, curves[k].I)
	}
	out, err := m.smp.CombineSeries(curves, mean(iscs), floats.Max(iAtVrbd))
	if err != nil {
		return curve.Curve{}, fmt.Errorf("%w: series combine: %v", ErrInvalidInput, err)
	}
	return out, nil
}

// crosstiedSubstring combines a fully crosstied substring: each row in
// parallel, then the rows in series. Every row's grid extends down to the
// minimum breakdown voltage of the whole substring.
func (m *Module) crosstiedSubstring(sub topology.Substring, cells []*cell.Cell) (curve.Curve, error) {
	minVrbd := 0.0
	for _, idx := range sub.Indexes() {
		if v := cells[idx].VRBD(); v < minVrbd {
			minVrbd = v
		}
	}

	nrows := len(sub[0])
	rows := make([]curve.Curve, 0, nrows)
	iscRows := make([]float64, 0, nrows)
	imaxRows := make([]float64, 0, nrows)
	for r := 0; r < nrows; r++ {
		rowCurves := make([]curve.Curve, len(sub))
		vocMax := 0.0
		for c, col := range sub {
			cc := cells[col[r].Index]
			rowCurves[c] = cc.Curve()
			if cc.Voc() > vocMax {
				vocMax = cc.Voc()
			}
		}
		row, err := m.smp.CombineParallel(rowCurves, vocMax, minVrbd)
		if err != nil {
			return curve.Curve{}, fmt.Errorf("%w: parallel combine row %d: %v", ErrInvalidInput, r, err)
		}
		rows = append(rows, row)
		iscRows = append(iscRows, row.Isc())
		imaxRows = append(imaxRows, floats.Max(row.I))
	}

	out, err := m.smp.CombineSeries(rows, mean(iscRows), floats.Max(imaxRows))
	if err != nil {
		return curve.Curve{}, fmt.Errorf("%w: series combine rows: %v", ErrInvalidInput, err)
	}
	return out, nil
}

// mixedSubstring stitches a partially crosstied substring. Columns are
// walked left to right while accumulating a group of columns with identical
// crosstie patterns; when the pattern changes the group (including the
// column that broke it) is closed into one crosstied block, and accumulation
// resumes at the next column. The block curves are finally combined in
// parallel.
func (m *Module) mixedSubstring(sub topology.Substring, cells []*cell.Cell) (curve.Curve, error) {
	var blocks []curve.Curve
	var group [][]curve.Curve
	var prev topology.Column

	for _, col := range sub {
		pieces, err := m.columnPieces(col, cells)
		if err != nil {
			return curve.Curve{}, err
		}
		group = append(group, pieces)

		if prev != nil && !prev.SamePattern(col) {
			blk, err := m.combineBlock(group)
			if err != nil {
				return curve.Curve{}, err
			}
			blocks = append(blocks, blk)
			group, prev = nil, nil
			continue
		}
		prev = col
	}

	if len(blocks) == 0 {
		return m.combineBlock(group)
	}
	if len(group) > 0 {
		blk, err := m.combineBlock(group)
		if err != nil {
			return curve.Curve{}, err
		}
		blocks = append(blocks, blk)
	}

	vmax, vmin := blocks[0].V[len(blocks[0].V)-1], blocks[0].V[0]
	for _, b := range blocks {
		vmax = max(vmax, floats.Max(b.V))
		vmin = min(vmin, floats.Min(b.V))
	}
	out, err := m.smp.CombineParallel(blocks, vmax, vmin)
	if err != nil {
		return curve.Curve{}, fmt.Errorf("%w: parallel combine blocks: %v", ErrInvalidInput, err)
	}
	return out, nil
}

// columnPieces collapses the column into its crosstie-delimited pieces: each
// crosstied row starts a piece that absorbs the series run below it. A
// series run reaching row 0 means the run has no crosstie boundary above it,
// which the wiring convention forbids.
func (m *Module) columnPieces(col topology.Column, cells []*cell.Cell) ([]curve.Curve, error) {
	var runs [][]int
	var run []int
	for _, slot := range col {
		if slot.Crosstie {
			runs = append(runs, run)
			run = nil
		}
		run = append(run, slot.Index)
	}
	runs = append(runs, run)

	var pieces []curve.Curve
	first := true
	for _, idxs := range runs {
		if len(idxs) == 0 {
			// Row 0 is crosstied; the leading run is empty by construction.
			first = false
			continue
		}
		if first {
			return nil, fmt.Errorf("%w: first and last rows must be crosstied", ErrTopology)
		}
		if len(idxs) > 1 {
			piece, err := m.seriesOf(idxs, cells)
			if err != nil {
				return nil, err
			}
			pieces = append(pieces, piece)
			continue
		}
		pieces = append(pieces, cells[idxs[0]].Curve())
	}
	return pieces, nil
}

// combineBlock combines a group of pattern-identical columns as a crosstied
// block: piece r of every column in parallel, then the row results in
// series. Voltage bounds come from the participating pieces themselves.
func (m *Module) combineBlock(group [][]curve.Curve) (curve.Curve, error) {
	if len(group) == 0 || len(group[0]) == 0 {
		return curve.Curve{}, fmt.Errorf("%w: empty crosstied block", ErrTopology)
	}
	npieces := len(group[0])
	for _, pieces := range group {
		if len(pieces) < npieces {
			npieces = len(pieces)
		}
	}

	rows := make([]curve.Curve, 0, npieces)
	iscRows := make([]float64, 0, npieces)
	imaxRows := make([]float64, 0, npieces)
	for r := 0; r < npieces; r++ {
		rowCurves := make([]curve.Curve, len(group))
		vmax, vmin := group[0][r].V[len(group[0][r].V)-1], group[0][r].V[0]
		for c := range group {
			rowCurves[c] = group[c][r]
			vmax = max(vmax, floats.Max(rowCurves[c].V))
			vmin = min(vmin, floats.Min(rowCurves[c].V))
		}
		row, err := m.smp.CombineParallel(rowCurves, vmax, vmin)
		if err != nil {
			return curve.Curve{}, fmt.Errorf("%w: parallel combine block row %d: %v", ErrInvalidInput, r, err)
		}
		rows = append(rows, row)
		iscRows = append(iscRows, row.Isc())
		imaxRows = append(imaxRows, floats.Max(row.I))
	}

	out, err := m.smp.CombineSeries(rows, mean(iscRows), floats.Max(imaxRows))
	if err != nil {
		return curve.Curve{}, fmt.Errorf("%w: series combine block rows: %v", ErrInvalidInput, err)
	}
	return out, nil
}

// mean requires a non-empty slice; New rejects topologies with empty
// substrings or columns, so every caller passes at least one value.
func mean(a []float64) float64 {
	return floats.Sum(a) / float64(len(a))
}
