package topology

import "fmt"

// CellSlot places one cell in the wiring pattern. Index is the cell's flat
// identifier into the module's cell list; Crosstie marks whether this row is
// electrically joined to the same row of the neighboring columns.
type CellSlot struct {
	Crosstie bool
	Index    int
}

// Column is an ordered list of slots, one per row, top to bottom.
type Column []CellSlot

// Substring is a group of columns protected by one bypass diode.
type Substring []Column

// Topology is the full wiring pattern of a module: substrings in series,
// each substring a list of columns, each column a list of rows.
type Topology []Substring

// CellCount returns the number of slots in the topology.
func (t Topology) CellCount() int {
	n := 0
	for _, sub := range t {
		for _, col := range sub {
			n += len(col)
		}
	}
	return n
}

// Validate checks that every flat index 0..N-1 appears exactly once.
func (t Topology) Validate() error {
	n := t.CellCount()
	seen := make([]bool, n)
	for _, sub := range t {
		for _, col := range sub {
			for _, slot := range col {
				if slot.Index < 0 || slot.Index >= n {
					return fmt.Errorf("cell index %d out of range [0,%d)", slot.Index, n)
				}
				if seen[slot.Index] {
					return fmt.Errorf("cell index %d appears more than once", slot.Index)
				}
				seen[slot.Index] = true
			}
		}
	}
	return nil
}

// Indexes flattens the substring into cell indices, column by column.
func (s Substring) Indexes() []int {
	var idxs []int
	for _, col := range s {
		for _, slot := range col {
			idxs = append(idxs, slot.Index)
		}
	}
	return idxs
}

// AllSeries reports whether no slot in the substring is crosstied.
func (s Substring) AllSeries() bool {
	for _, col := range s {
		for _, slot := range col {
			if slot.Crosstie {
				return false
			}
		}
	}
	return true
}

// AllCrosstied reports whether every slot in the substring is crosstied.
func (s Substring) AllCrosstied() bool {
	for _, col := range s {
		for _, slot := range col {
			if !slot.Crosstie {
				return false
			}
		}
	}
	return true
}

// SamePattern reports whether two columns carry identical crosstie flags
// row for row.
func (c Column) SamePattern(other Column) bool {
	if len(c) != len(other) {
		return false
	}
	for k := range c {
		if c[k].Crosstie != other[k].Crosstie {
			return false
		}
	}
	return true
}

// Series builds the standard series-wired layout: rows cells per column and
// one entry in colsPerSubstring per bypass diode. Cells snake through the
// columns: even columns run top to bottom, odd columns bottom to top.
func Series(rows int, colsPerSubstring []int) Topology {
	topo := make(Topology, 0, len(colsPerSubstring))
	colEnd := 0
	for _, ncols := range colsPerSubstring {
		colStart := colEnd
		colEnd += ncols
		sub := make(Substring, 0, ncols)
		for col := colStart; col < colEnd; col++ {
			column := make(Column, rows)
			for row := 0; row < rows; row++ {
				idx := col * rows
				if col%2 == 0 {
					idx += row
				} else {
					idx += rows - row - 1
				}
				column[row] = CellSlot{Index: idx}
			}
			sub = append(sub, column)
		}
		topo = append(topo, sub)
	}
	return topo
}

// Crosstied builds a crosstied layout with cols columns and one entry in
// rowsPerSubstring per bypass diode. With partial false every row is
// crosstied (TCT); with partial true only the first row of each substring
// column is, leaving the rest in series.
func Crosstied(rowsPerSubstring []int, cols int, partial bool) Topology {
	totalRows := 0
	for _, r := range rowsPerSubstring {
		totalRows += r
	}

	topo := make(Topology, 0, len(rowsPerSubstring))
	rowEnd := 0
	for _, nrows := range rowsPerSubstring {
		rowStart := rowEnd
		rowEnd += nrows
		sub := make(Substring, 0, cols)
		for col := 0; col < cols; col++ {
			column := make(Column, 0, nrows)
			for row := rowStart; row < rowEnd; row++ {
				crosstie := true
				if partial && len(column) > 0 {
					crosstie = false
				}
				column = append(column, CellSlot{Crosstie: crosstie, Index: col*totalRows + row})
			}
			sub = append(sub, column)
		}
		topo = append(topo, sub)
	}
	return topo
}

// Standard layout presets.
func STD24() Topology {
	cols := make([]int, 24)
	for k := range cols {
		cols[k] = 1
	}
	return Series(1, cols)
}

func STD72() Topology  { return Series(12, []int{2, 2, 2}) }
func STD96() Topology  { return Series(12, []int{2, 4, 2}) }
func STD128() Topology { return Series(16, []int{2, 4, 2}) }

// Tiled layout presets: 82x6 cells, substrings of 27/28/27 rows per diode.
func TCT492() Topology { return Crosstied([]int{27, 28, 27}, 6, false) }
func PCT492() Topology { return Crosstied([]int{27, 28, 27}, 6, true) }
