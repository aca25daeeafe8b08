// Package bucketfile stores encoded node buckets in SafeTensors format.
//
// A bucket file holds two tensors and the configuration that produced them:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[meta_info: U16 elements]
//	[nz_values: F16, F32 or F64 elements]
//
// The header's __metadata__ carries the format name and version, the
// partitioner configuration as YAML and a SHA-256 checksum of the data
// section. Any SafeTensors reader can load the tensors; Read additionally
// validates offsets and the checksum.
package bucketfile

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/alexshuang/poplibs-sub002/internal/partition"
	"github.com/alexshuang/poplibs-sub002/internal/sparse"
)

// Format constants.
const (
	FormatName    = "popsparse-buckets"
	FormatVersion = "1"

	MetaInfoTensor = "meta_info"
	NzTensor       = "nz_values"

	maxHeaderSize = 100 * 1024 * 1024
)

// Metadata keys.
const (
	keyFormat   = "format"
	keyVersion  = "version"
	keyDataType = "data_type"
	keyConfig   = "config"
	keyChecksum = "sha256"
)

// Common errors.
var (
	ErrInvalidFormat    = errors.New("bucketfile: invalid bucket file")
	ErrChecksumMismatch = errors.New("bucketfile: checksum mismatch, file may be corrupted")
	ErrDataTypeMismatch = errors.New("bucketfile: non-zero values have a different type")
)

// Buckets is the content of a bucket file. Non-zero values are kept as raw
// little-endian bytes until NzValues converts them to the requested type.
type Buckets struct {
	Config   partition.Config
	DataType sparse.DataType
	MetaInfo []partition.MetaInfoType

	nz []byte
}

// New packs encoded buckets for writing.
func New[T sparse.Scalar](cfg partition.Config, metaInfo []partition.MetaInfoType, nzValues []T) *Buckets {
	return &Buckets{
		Config:   cfg,
		DataType: sparse.DataTypeOf[T](),
		MetaInfo: metaInfo,
		nz:       appendValues(nil, nzValues),
	}
}

// NumNzValues returns the number of stored non-zero elements.
func (b *Buckets) NumNzValues() int {
	return len(b.nz) / b.DataType.Size()
}

// NzValues returns the non-zero values as T.
func NzValues[T sparse.Scalar](b *Buckets) ([]T, error) {
	if dt := sparse.DataTypeOf[T](); dt != b.DataType {
		return nil, errors.Wrapf(ErrDataTypeMismatch, "file holds %s, requested %s", b.DataType, dt)
	}
	out := make([]T, b.NumNzValues())
	switch vs := any(out).(type) {
	case []float16.Float16:
		for i := range vs {
			vs[i] = float16.Frombits(binary.LittleEndian.Uint16(b.nz[2*i:]))
		}
	case []float32:
		for i := range vs {
			vs[i] = math.Float32frombits(binary.LittleEndian.Uint32(b.nz[4*i:]))
		}
	case []float64:
		for i := range vs {
			vs[i] = math.Float64frombits(binary.LittleEndian.Uint64(b.nz[8*i:]))
		}
	}
	return out, nil
}

func appendValues[T sparse.Scalar](dst []byte, values []T) []byte {
	switch vs := any(values).(type) {
	case []float16.Float16:
		for _, v := range vs {
			dst = binary.LittleEndian.AppendUint16(dst, v.Bits())
		}
	case []float32:
		for _, v := range vs {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
		}
	case []float64:
		for _, v := range vs {
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
		}
	}
	return dst
}

func appendMetaInfo(dst []byte, metaInfo []partition.MetaInfoType) []byte {
	for _, v := range metaInfo {
		dst = binary.LittleEndian.AppendUint16(dst, v)
	}
	return dst
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// dtypeToSafeTensors converts a non-zero type to its SafeTensors dtype.
func dtypeToSafeTensors(dt sparse.DataType) string {
	switch dt {
	case sparse.Half:
		return "F16"
	case sparse.Float:
		return "F32"
	default:
		return "F64"
	}
}

func dtypeFromSafeTensors(s string) (sparse.DataType, bool) {
	switch s {
	case "F16":
		return sparse.Half, true
	case "F32":
		return sparse.Float, true
	case "F64":
		return sparse.Double, true
	default:
		return 0, false
	}
}
