package sparse

import (
	"sort"

	"github.com/pkg/errors"
)

// ToCSR sorts the entries by (row, column) and compresses them.
// Duplicate coordinates are rejected.
func (m *COO[T]) ToCSR() (*CSR[T], error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	order := make([]int, len(m.NzValues))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if m.RowIndices[ia] != m.RowIndices[ib] {
			return m.RowIndices[ia] < m.RowIndices[ib]
		}
		return m.ColumnIndices[ia] < m.ColumnIndices[ib]
	})

	out := &CSR[T]{
		NumRows:       m.NumRows,
		NumColumns:    m.NumColumns,
		NzValues:      make([]T, len(order)),
		ColumnIndices: make([]int, len(order)),
		RowIndices:    make([]int, m.NumRows+1),
	}
	for i, src := range order {
		out.NzValues[i] = m.NzValues[src]
		out.ColumnIndices[i] = m.ColumnIndices[src]
		out.RowIndices[m.RowIndices[src]+1]++
		if i > 0 && m.RowIndices[src] == m.RowIndices[order[i-1]] &&
			m.ColumnIndices[src] == m.ColumnIndices[order[i-1]] {
			return nil, invalidf("duplicate entry at (%d, %d)", m.RowIndices[src], m.ColumnIndices[src])
		}
	}
	for r := 0; r < m.NumRows; r++ {
		out.RowIndices[r+1] += out.RowIndices[r]
	}
	return out, nil
}

// ToCSR returns a canonical copy of the matrix.
func (m *CSR[T]) ToCSR() (*CSR[T], error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	out := m.Clone()
	if err := Canonicalize(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToCSR converts the compressed-column matrix to canonical CSR.
func (m *CSC[T]) ToCSR() (*CSR[T], error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	// A CSC matrix is the CSR form of its transpose.
	asTranspose := &CSR[T]{
		NumRows:       m.NumColumns,
		NumColumns:    m.NumRows,
		NzValues:      m.NzValues,
		ColumnIndices: m.RowIndices,
		RowIndices:    m.ColumnIndices,
	}
	out := asTranspose.Transpose()
	if err := Canonicalize(out); err != nil {
		return nil, errors.WithMessage(err, "csc to csr")
	}
	return out, nil
}

// Clone returns a deep copy of the matrix.
func (m *CSR[T]) Clone() *CSR[T] {
	return &CSR[T]{
		NumRows:       m.NumRows,
		NumColumns:    m.NumColumns,
		NzValues:      append([]T(nil), m.NzValues...),
		ColumnIndices: append([]int(nil), m.ColumnIndices...),
		RowIndices:    append([]int(nil), m.RowIndices...),
	}
}

// Canonicalize sorts the entries of every row by column in place and
// rejects duplicate columns within a row.
func Canonicalize[T any](m *CSR[T]) error {
	for r := 0; r < m.NumRows; r++ {
		begin, end := m.RowIndices[r], m.RowIndices[r+1]
		cols := m.ColumnIndices[begin:end]
		vals := m.NzValues[begin:end]
		if !sort.IntsAreSorted(cols) {
			sort.Sort(rowSorter[T]{cols: cols, vals: vals})
		}
		for i := 1; i < len(cols); i++ {
			if cols[i] == cols[i-1] {
				return invalidf("duplicate entry at (%d, %d)", r, cols[i])
			}
		}
	}
	return nil
}

type rowSorter[T any] struct {
	cols []int
	vals []T
}

func (s rowSorter[T]) Len() int           { return len(s.cols) }
func (s rowSorter[T]) Less(i, j int) bool { return s.cols[i] < s.cols[j] }
func (s rowSorter[T]) Swap(i, j int) {
	s.cols[i], s.cols[j] = s.cols[j], s.cols[i]
	s.vals[i], s.vals[j] = s.vals[j], s.vals[i]
}

// Transpose returns the CSR form of the transposed matrix. Rows of the
// result are sorted by column whenever the input rows are visited in order,
// so a canonical input yields a canonical output.
func (m *CSR[T]) Transpose() *CSR[T] {
	out := &CSR[T]{
		NumRows:       m.NumColumns,
		NumColumns:    m.NumRows,
		NzValues:      make([]T, len(m.NzValues)),
		ColumnIndices: make([]int, len(m.NzValues)),
		RowIndices:    make([]int, m.NumColumns+1),
	}
	for _, c := range m.ColumnIndices {
		out.RowIndices[c+1]++
	}
	for c := 0; c < m.NumColumns; c++ {
		out.RowIndices[c+1] += out.RowIndices[c]
	}
	next := append([]int(nil), out.RowIndices[:m.NumColumns]...)
	for r := 0; r < m.NumRows; r++ {
		for i := m.RowIndices[r]; i < m.RowIndices[r+1]; i++ {
			c := m.ColumnIndices[i]
			out.ColumnIndices[next[c]] = r
			out.NzValues[next[c]] = m.NzValues[i]
			next[c]++
		}
	}
	return out
}

// ToCSC converts the matrix to compressed-column form.
func (m *CSR[T]) ToCSC() *CSC[T] {
	t := m.Transpose()
	return &CSC[T]{
		NumRows:       m.NumRows,
		NumColumns:    m.NumColumns,
		NzValues:      t.NzValues,
		ColumnIndices: t.RowIndices,
		RowIndices:    t.ColumnIndices,
	}
}
