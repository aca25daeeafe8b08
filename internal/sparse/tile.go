package sparse

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// Interval is a half-open range [Begin, End).
type Interval struct {
	Begin int
	End   int
}

// NewInterval creates the interval [begin, end).
func NewInterval(begin, end int) Interval {
	return Interval{Begin: begin, End: end}
}

// Size returns the number of elements in the interval.
func (i Interval) Size() int {
	return i.End - i.Begin
}

// Contains reports whether v lies in the interval.
func (i Interval) Contains(v int) bool {
	return v >= i.Begin && v < i.End
}

func (i Interval) String() string {
	return fmt.Sprintf("[%d, %d)", i.Begin, i.End)
}

// Tile is an axis-aligned rectangular region of a matrix.
type Tile struct {
	Rows    Interval
	Columns Interval
}

// NewTile creates a tile from its row and column intervals.
func NewTile(rows, columns Interval) Tile {
	return Tile{Rows: rows, Columns: columns}
}

// Transpose swaps the row and column intervals.
func (t Tile) Transpose() Tile {
	return Tile{Rows: t.Columns, Columns: t.Rows}
}

func (t Tile) String() string {
	return fmt.Sprintf("rows %v x cols %v", t.Rows, t.Columns)
}

// TileIndex locates a tile in the partition grid. Z indexes the sub-split
// along the batch dimension, including the buckets-per-Z multiplicity.
type TileIndex struct {
	Row    int
	Column int
	Z      int
}

// Transpose swaps the row and column group.
func (ti TileIndex) Transpose() TileIndex {
	return TileIndex{Row: ti.Column, Column: ti.Row, Z: ti.Z}
}

// Position is a tile-local column and its value.
type Position[V any] struct {
	Column int
	Value  V
}

// Row is the tile-local row number and the positions of its non-zeros.
type Row[V any] struct {
	Number    int
	Positions []Position[V]
}

// TilePartition holds the non-zeros of one tile, or of a part of it, in
// tile-local coordinates.
type TilePartition[V any] struct {
	Index TileIndex
	Tile  Tile
	Rows  []Row[V]
}

// NumNonZeros returns the number of non-zeros across all rows.
func (tp *TilePartition[V]) NumNonZeros() int {
	return lo.SumBy(tp.Rows, func(r Row[V]) int { return len(r.Positions) })
}

// Empty reports whether the partition holds no rows.
func (tp *TilePartition[V]) Empty() bool {
	return len(tp.Rows) == 0
}

// RowWeights returns the number of non-zeros in each row.
func (tp *TilePartition[V]) RowWeights() []int {
	return lo.Map(tp.Rows, func(r Row[V], _ int) int { return len(r.Positions) })
}

// ToCSR converts the partition to a tile-sized canonical CSR matrix.
func (tp *TilePartition[V]) ToCSR() *CSR[V] {
	numRows := tp.Tile.Rows.Size()
	perRow := make([][]Position[V], numRows)
	for _, r := range tp.Rows {
		perRow[r.Number] = append(perRow[r.Number], r.Positions...)
	}
	out := &CSR[V]{
		NumRows:       numRows,
		NumColumns:    tp.Tile.Columns.Size(),
		NzValues:      make([]V, 0, tp.NumNonZeros()),
		ColumnIndices: make([]int, 0, tp.NumNonZeros()),
		RowIndices:    make([]int, numRows+1),
	}
	for r, positions := range perRow {
		sort.SliceStable(positions, func(a, b int) bool { return positions[a].Column < positions[b].Column })
		for _, p := range positions {
			out.ColumnIndices = append(out.ColumnIndices, p.Column)
			out.NzValues = append(out.NzValues, p.Value)
		}
		out.RowIndices[r+1] = len(out.NzValues)
	}
	return out
}

// Transpose returns the partition with rows and columns swapped.
func (tp *TilePartition[V]) Transpose() TilePartition[V] {
	return TilePartitionFromCSR(tp.ToCSR().Transpose(), tp.Tile.Transpose(), tp.Index.Transpose())
}

// TilePartitionFromCSR builds a partition from a tile-sized CSR matrix,
// skipping empty rows.
func TilePartitionFromCSR[V any](m *CSR[V], tile Tile, index TileIndex) TilePartition[V] {
	tp := TilePartition[V]{Index: index, Tile: tile}
	for r := 0; r < m.NumRows; r++ {
		begin, end := m.RowIndices[r], m.RowIndices[r+1]
		if begin == end {
			continue
		}
		positions := make([]Position[V], 0, end-begin)
		for i := begin; i < end; i++ {
			positions = append(positions, Position[V]{Column: m.ColumnIndices[i], Value: m.NzValues[i]})
		}
		tp.Rows = append(tp.Rows, Row[V]{Number: r, Positions: positions})
	}
	return tp
}

// RowsInTile returns the non-empty rows of a canonical CSR matrix restricted
// to the tile, in tile-local coordinates.
func RowsInTile[V any](m *CSR[V], tile Tile) []Row[V] {
	var rows []Row[V]
	for r := tile.Rows.Begin; r < tile.Rows.End; r++ {
		cols := m.ColumnIndices[m.RowIndices[r]:m.RowIndices[r+1]]
		begin := sort.SearchInts(cols, tile.Columns.Begin)
		end := sort.SearchInts(cols, tile.Columns.End)
		if begin == end {
			continue
		}
		positions := make([]Position[V], 0, end-begin)
		for i := begin; i < end; i++ {
			positions = append(positions, Position[V]{
				Column: cols[i] - tile.Columns.Begin,
				Value:  m.NzValues[m.RowIndices[r]+i],
			})
		}
		rows = append(rows, Row[V]{Number: r - tile.Rows.Begin, Positions: positions})
	}
	return rows
}
