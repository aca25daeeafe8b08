package partition

import (
	"fmt"

	"github.com/pkg/errors"
)

// Common errors.
var (
	ErrInvalidConfig   = errors.New("partition: invalid configuration")
	ErrBucketOverflow  = errors.New("partition: overflow in buckets")
	ErrCorruptMetaInfo = errors.New("partition: possibly corrupt or invalid meta-info")
	ErrEncoding        = errors.New("partition: encoded bucket violates its bounds")
	ErrBucketMismatch  = errors.New("partition: buckets do not match the partitioner")
)

// OverflowError reports the largest residual overflow after every
// rebalancing pass was exhausted.
type OverflowError struct {
	NumOverflowing         int // Buckets whose overflow could not be placed
	MaxMetaInfoElements    int // Largest residual meta-info overflow in elements
	MetaInfoBucketElements int // Meta-info bucket capacity
	MaxNzElements          int // Largest residual non-zero overflow in elements
	NzBucketElements       int // Non-zero bucket capacity
}

// Error implements the error interface.
func (e *OverflowError) Error() string {
	return fmt.Sprintf("%s: %d buckets not placed, meta-info %d/%d, nz values %d/%d",
		ErrBucketOverflow, e.NumOverflowing, e.MaxMetaInfoElements, e.MetaInfoBucketElements,
		e.MaxNzElements, e.NzBucketElements)
}

// Unwrap allows errors.Is(err, ErrBucketOverflow).
func (e *OverflowError) Unwrap() error {
	return ErrBucketOverflow
}

func configErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}

func corruptf(format string, args ...any) error {
	return errors.Wrapf(ErrCorruptMetaInfo, format, args...)
}

func encodingErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrEncoding, format, args...)
}
