package sparse

import "gonum.org/v1/gonum/mat"

// Dense expands a sparse matrix into a gonum dense matrix, widening values
// to float64. It is meant for verification of small problems.
func Dense[T Scalar](m Matrix[T]) (*mat.Dense, error) {
	csr, err := m.ToCSR()
	if err != nil {
		return nil, err
	}
	d := mat.NewDense(csr.NumRows, csr.NumColumns, nil)
	for r := 0; r < csr.NumRows; r++ {
		for i := csr.RowIndices[r]; i < csr.RowIndices[r+1]; i++ {
			d.Set(r, csr.ColumnIndices[i], ToFloat64(csr.NzValues[i]))
		}
	}
	return d, nil
}
