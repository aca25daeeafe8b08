// Package partition plans the distribution of a sparse matrix over the
// processing nodes of a sparse matrix multiplication.
//
// The matrix is tiled by the X and Y splits and each tile is divided over
// the Z node groups. Every node then owns one bucket: a fixed amount of
// meta-info and non-zero storage. Rows that do not fit their node's bucket
// are moved to nodes with spare capacity, first within the same Z group,
// then within the same column group and finally across all nodes. Balanced
// buckets are encoded into the flat meta-info and non-zero arrays that the
// device consumes, and can be decoded back into the matrix.
//
//	p, err := partition.New[float32](cfg)
//	buckets, err := p.CreateBuckets(matrix)
//	metaInfo, nz, err := p.EncodeAll(buckets)
//	coo, err := p.Decode(metaInfo, nz)
package partition
