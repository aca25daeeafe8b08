// Copyright 2025 The popsparse Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package popsparse

import (
	"gonum.org/v1/gonum/mat"

	"github.com/alexshuang/poplibs-sub002/internal/sparse"
)

// Scalar is a constraint for non-zero value types.
// Supported types: float16.Float16, float32, float64.
type Scalar = sparse.Scalar

// DataType represents the type of the non-zero values.
type DataType = sparse.DataType

// Data type constants.
const (
	Half   DataType = sparse.Half
	Float  DataType = sparse.Float
	Double DataType = sparse.Double
)

// Format identifies a sparse storage format.
type Format = sparse.Format

// Format constants.
const (
	FormatCOO Format = sparse.FormatCOO
	FormatCSR Format = sparse.FormatCSR
	FormatCSC Format = sparse.FormatCSC
)

// Matrix is any of the supported storage formats.
type Matrix[T any] = sparse.Matrix[T]

// Entry is a single non-zero of a matrix.
type Entry[T any] = sparse.Entry[T]

// COO is a coordinate-list matrix.
type COO[T any] = sparse.COO[T]

// CSR is a compressed-row matrix.
type CSR[T any] = sparse.CSR[T]

// CSC is a compressed-column matrix.
type CSC[T any] = sparse.CSC[T]

// Tile types describe how the matrix is divided between nodes.
type (
	Interval             = sparse.Interval
	Tile                 = sparse.Tile
	TileIndex            = sparse.TileIndex
	Position[V any]      = sparse.Position[V]
	Row[V any]           = sparse.Row[V]
	TilePartition[V any] = sparse.TilePartition[V]
)

// ErrInvalidMatrix is returned for matrices that fail validation.
var ErrInvalidMatrix = sparse.ErrInvalidMatrix

// NewCOO creates a coordinate-list matrix.
//
// Example:
//
//	m := popsparse.NewCOO(2, 2, []float32{1, 2}, []int{0, 1}, []int{1, 0})
func NewCOO[T any](numRows, numColumns int, nzValues []T, rowIndices, columnIndices []int) *COO[T] {
	return sparse.NewCOO(numRows, numColumns, nzValues, rowIndices, columnIndices)
}

// NewCOOFromEntries creates a coordinate-list matrix from a list of entries.
func NewCOOFromEntries[T any](numRows, numColumns int, entries []Entry[T]) *COO[T] {
	return sparse.NewCOOFromEntries(numRows, numColumns, entries)
}

// NewCSR creates a compressed-row matrix. rowIndices has numRows+1 entries.
func NewCSR[T any](numRows, numColumns int, nzValues []T, columnIndices, rowIndices []int) *CSR[T] {
	return sparse.NewCSR(numRows, numColumns, nzValues, columnIndices, rowIndices)
}

// NewCSC creates a compressed-column matrix. columnIndices has numColumns+1
// entries.
func NewCSC[T any](numRows, numColumns int, nzValues []T, columnIndices, rowIndices []int) *CSC[T] {
	return sparse.NewCSC(numRows, numColumns, nzValues, columnIndices, rowIndices)
}

// Dense expands a matrix into a gonum dense matrix for verification.
func Dense[T Scalar](m Matrix[T]) (*mat.Dense, error) {
	return sparse.Dense(m)
}

// DataTypeOf returns the DataType of T.
func DataTypeOf[T Scalar]() DataType {
	return sparse.DataTypeOf[T]()
}

// FromFloat64 converts a float64 to T, rounding to the nearest value.
func FromFloat64[T Scalar](f float64) T {
	return sparse.FromFloat64[T](f)
}

// ToFloat64 widens a value to float64.
func ToFloat64[T Scalar](v T) float64 {
	return sparse.ToFloat64(v)
}
