// Copyright 2025 The popsparse Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package popsparse

import (
	"github.com/alexshuang/poplibs-sub002/internal/parallel"
	"github.com/alexshuang/poplibs-sub002/internal/partition"
)

// Config configures a Partitioner.
type Config = partition.Config

// Dims holds a size per dimension of Q[X,Z] = R[X,Y] * S[Y,Z].
type Dims = partition.Dims

// Splits holds the starting offset of every partition per dimension.
type Splits = partition.Splits

// ParallelConfig controls concurrent encoding of node buckets.
type ParallelConfig = parallel.Config

// Partitioner creates, encodes and decodes node buckets.
type Partitioner[T Scalar] = partition.Partitioner[T]

// PNBucket is the share of the matrix owned by one node.
type PNBucket[V any] = partition.PNBucket[V]

// BucketStats summarizes the occupancy of one bucket.
type BucketStats = partition.BucketStats

// MetaInfoType is the element type of encoded meta-info.
type MetaInfoType = partition.MetaInfoType

// OverflowError reports rows that could not be placed in any bucket.
type OverflowError = partition.OverflowError

// Logging types.
type (
	Level      = partition.Level
	Logger     = partition.Logger
	NopLogger  = partition.NopLogger
	KlogLogger = partition.KlogLogger
)

// Logging levels.
const (
	LevelTrace Level = partition.LevelTrace
	LevelDebug Level = partition.LevelDebug
	LevelInfo  Level = partition.LevelInfo
	LevelWarn  Level = partition.LevelWarn
)

// Errors returned by the partitioner. Match them with errors.Is.
var (
	ErrInvalidConfig   = partition.ErrInvalidConfig
	ErrBucketOverflow  = partition.ErrBucketOverflow
	ErrCorruptMetaInfo = partition.ErrCorruptMetaInfo
	ErrEncoding        = partition.ErrEncoding
	ErrBucketMismatch  = partition.ErrBucketMismatch
)

// DefaultConfig returns defaults for everything but the problem shape,
// splits and bucket capacities.
func DefaultConfig() Config {
	return partition.DefaultConfig()
}

// DefaultParallelConfig returns a parallel configuration sized to the CPU count.
func DefaultParallelConfig() ParallelConfig {
	return parallel.DefaultConfig()
}

// UniformSplits returns the offsets of at most partitions equal partitions of
// a dimension, each a whole number of grains.
//
// Example:
//
//	popsparse.UniformSplits(10, 3, 1) // [0 4 8]
func UniformSplits(size, partitions, grain int) []int {
	return partition.UniformSplits(size, partitions, grain)
}

// New validates the configuration and creates a partitioner for non-zero
// values of type T.
func New[T Scalar](cfg Config) (*Partitioner[T], error) {
	return partition.New[T](cfg)
}

// NewKlogLogger returns a Logger backed by klog verbosity levels.
func NewKlogLogger() KlogLogger {
	return partition.NewKlogLogger()
}
