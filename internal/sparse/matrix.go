package sparse

import "fmt"

// Format identifies a sparse storage format.
type Format int

// Supported storage formats.
const (
	FormatCOO Format = iota
	FormatCSR
	FormatCSC
)

// String returns a human-readable name for the format.
func (f Format) String() string {
	switch f {
	case FormatCOO:
		return "coo"
	case FormatCSR:
		return "csr"
	case FormatCSC:
		return "csc"
	default:
		return "unknown"
	}
}

// Matrix is the sum type over the supported storage formats. Every variant
// converts to the canonical CSR form the partitioner works on.
type Matrix[T any] interface {
	Format() Format
	Dims() (rows, cols int)
	NumNonZeros() int
	Validate() error
	ToCSR() (*CSR[T], error)
}

// Entry is a single non-zero of a matrix.
type Entry[T any] struct {
	Row    int
	Column int
	Value  T
}

// COO is a coordinate-list matrix. Entries are unordered.
type COO[T any] struct {
	NumRows       int
	NumColumns    int
	NzValues      []T
	RowIndices    []int
	ColumnIndices []int
}

// CSR is a compressed-row matrix. RowIndices has NumRows+1 entries and
// RowIndices[r] is the start of row r in NzValues and ColumnIndices.
type CSR[T any] struct {
	NumRows       int
	NumColumns    int
	NzValues      []T
	ColumnIndices []int
	RowIndices    []int
}

// CSC is a compressed-column matrix. ColumnIndices has NumColumns+1 entries
// and ColumnIndices[c] is the start of column c in NzValues and RowIndices.
type CSC[T any] struct {
	NumRows       int
	NumColumns    int
	NzValues      []T
	ColumnIndices []int
	RowIndices    []int
}

// NewCOO creates a coordinate-list matrix.
func NewCOO[T any](numRows, numColumns int, nzValues []T, rowIndices, columnIndices []int) *COO[T] {
	return &COO[T]{
		NumRows:       numRows,
		NumColumns:    numColumns,
		NzValues:      nzValues,
		RowIndices:    rowIndices,
		ColumnIndices: columnIndices,
	}
}

// NewCOOFromEntries creates a coordinate-list matrix from a list of entries.
func NewCOOFromEntries[T any](numRows, numColumns int, entries []Entry[T]) *COO[T] {
	m := &COO[T]{
		NumRows:       numRows,
		NumColumns:    numColumns,
		NzValues:      make([]T, len(entries)),
		RowIndices:    make([]int, len(entries)),
		ColumnIndices: make([]int, len(entries)),
	}
	for i, e := range entries {
		m.NzValues[i] = e.Value
		m.RowIndices[i] = e.Row
		m.ColumnIndices[i] = e.Column
	}
	return m
}

// NewCSR creates a compressed-row matrix.
func NewCSR[T any](numRows, numColumns int, nzValues []T, columnIndices, rowIndices []int) *CSR[T] {
	return &CSR[T]{
		NumRows:       numRows,
		NumColumns:    numColumns,
		NzValues:      nzValues,
		ColumnIndices: columnIndices,
		RowIndices:    rowIndices,
	}
}

// NewCSC creates a compressed-column matrix.
func NewCSC[T any](numRows, numColumns int, nzValues []T, columnIndices, rowIndices []int) *CSC[T] {
	return &CSC[T]{
		NumRows:       numRows,
		NumColumns:    numColumns,
		NzValues:      nzValues,
		ColumnIndices: columnIndices,
		RowIndices:    rowIndices,
	}
}

// Format implements Matrix.
func (m *COO[T]) Format() Format { return FormatCOO }

// Format implements Matrix.
func (m *CSR[T]) Format() Format { return FormatCSR }

// Format implements Matrix.
func (m *CSC[T]) Format() Format { return FormatCSC }

// Dims implements Matrix.
func (m *COO[T]) Dims() (rows, cols int) { return m.NumRows, m.NumColumns }

// Dims implements Matrix.
func (m *CSR[T]) Dims() (rows, cols int) { return m.NumRows, m.NumColumns }

// Dims implements Matrix.
func (m *CSC[T]) Dims() (rows, cols int) { return m.NumRows, m.NumColumns }

// NumNonZeros implements Matrix.
func (m *COO[T]) NumNonZeros() int { return len(m.NzValues) }

// NumNonZeros implements Matrix.
func (m *CSR[T]) NumNonZeros() int { return len(m.NzValues) }

// NumNonZeros implements Matrix.
func (m *CSC[T]) NumNonZeros() int { return len(m.NzValues) }

// Entries returns the non-zeros in storage order.
func (m *COO[T]) Entries() []Entry[T] {
	entries := make([]Entry[T], len(m.NzValues))
	for i := range m.NzValues {
		entries[i] = Entry[T]{Row: m.RowIndices[i], Column: m.ColumnIndices[i], Value: m.NzValues[i]}
	}
	return entries
}

func validateDims(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return invalidf("dimensions %dx%d must be > 0", rows, cols)
	}
	return nil
}

// Validate checks index array lengths and bounds.
func (m *COO[T]) Validate() error {
	if err := validateDims(m.NumRows, m.NumColumns); err != nil {
		return err
	}
	if len(m.RowIndices) != len(m.NzValues) || len(m.ColumnIndices) != len(m.NzValues) {
		return invalidf("coo index lengths (rows %d, columns %d) must match number of non-zeros %d",
			len(m.RowIndices), len(m.ColumnIndices), len(m.NzValues))
	}
	for i := range m.NzValues {
		if r := m.RowIndices[i]; r < 0 || r >= m.NumRows {
			return invalidf("coo entry %d: row %d out of range [0, %d)", i, r, m.NumRows)
		}
		if c := m.ColumnIndices[i]; c < 0 || c >= m.NumColumns {
			return invalidf("coo entry %d: column %d out of range [0, %d)", i, c, m.NumColumns)
		}
	}
	return nil
}

// Validate checks index array lengths, offsets and bounds.
func (m *CSR[T]) Validate() error {
	if err := validateDims(m.NumRows, m.NumColumns); err != nil {
		return err
	}
	if len(m.RowIndices) != m.NumRows+1 {
		return invalidf("csr row indices length %d must be number of rows + 1 (%d)", len(m.RowIndices), m.NumRows+1)
	}
	if len(m.ColumnIndices) != len(m.NzValues) {
		return invalidf("csr column indices length %d must match number of non-zeros %d",
			len(m.ColumnIndices), len(m.NzValues))
	}
	if err := validateOffsets(m.RowIndices, len(m.NzValues), "row"); err != nil {
		return err
	}
	for i, c := range m.ColumnIndices {
		if c < 0 || c >= m.NumColumns {
			return invalidf("csr entry %d: column %d out of range [0, %d)", i, c, m.NumColumns)
		}
	}
	return nil
}

// Validate checks index array lengths, offsets and bounds.
func (m *CSC[T]) Validate() error {
	if err := validateDims(m.NumRows, m.NumColumns); err != nil {
		return err
	}
	if len(m.ColumnIndices) != m.NumColumns+1 {
		return invalidf("csc column indices length %d must be number of columns + 1 (%d)",
			len(m.ColumnIndices), m.NumColumns+1)
	}
	if len(m.RowIndices) != len(m.NzValues) {
		return invalidf("csc row indices length %d must match number of non-zeros %d",
			len(m.RowIndices), len(m.NzValues))
	}
	if err := validateOffsets(m.ColumnIndices, len(m.NzValues), "column"); err != nil {
		return err
	}
	for i, r := range m.RowIndices {
		if r < 0 || r >= m.NumRows {
			return invalidf("csc entry %d: row %d out of range [0, %d)", i, r, m.NumRows)
		}
	}
	return nil
}

// validateOffsets checks a compressed offset array starts at 0, never
// decreases and ends at the number of non-zeros.
func validateOffsets(offsets []int, numNz int, what string) error {
	if offsets[0] != 0 {
		return invalidf("first %s offset is %d, must be 0", what, offsets[0])
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return invalidf("%s offsets decrease at %d (%d < %d)", what, i, offsets[i], offsets[i-1])
		}
	}
	if last := offsets[len(offsets)-1]; last != numNz {
		return invalidf("last %s offset %d must equal number of non-zeros %d", what, last, numNz)
	}
	return nil
}

// String returns a short description of the matrix.
func (m *CSR[T]) String() string {
	return fmt.Sprintf("CSR(%dx%d, nnz=%d)", m.NumRows, m.NumColumns, len(m.NzValues))
}
