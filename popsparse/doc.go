// Copyright 2025 The popsparse Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package popsparse provides the public API for partitioning sparse matrices
// over the processing nodes of a sparse-dense matrix multiplication.
//
// The package re-exports the storage formats and the partitioner:
//   - COO, CSR, CSC: Sparse storage formats accepted as input
//   - Config: Problem shape, splits, grains and bucket capacities
//   - Partitioner[T]: Bucket creation, encoding and decoding
//   - PNBucket[T]: The share of the matrix owned by one node
//
// Example:
//
//	cfg := popsparse.DefaultConfig()
//	cfg.Shape = popsparse.Dims{X: 1024, Y: 1024, Z: 16}
//	cfg.Splits = popsparse.Splits{
//		X: popsparse.UniformSplits(1024, 8, 1),
//		Y: popsparse.UniformSplits(1024, 8, 1),
//		Z: []int{0},
//	}
//	cfg.MetaInfoBucketElements = 4096
//	cfg.NzBucketElements = 2048
//
//	p, err := popsparse.New[float32](cfg)
//	buckets, err := p.CreateBuckets(matrix)
//	metaInfo, nz, err := p.EncodeAll(buckets)
package popsparse
