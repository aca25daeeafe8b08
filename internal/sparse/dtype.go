// Package sparse provides the sparse matrix storage formats (COO, CSR, CSC)
// and the tile structures the partitioner distributes across processing nodes.
package sparse

import "github.com/x448/float16"

// Scalar is a constraint for non-zero value types the partitioner accepts.
// It uses Go generics so half, single and double precision values share one
// implementation.
type Scalar interface {
	float16.Float16 | float32 | float64
}

// DataType represents runtime type information for non-zero values.
type DataType int

// Supported data types for non-zero values.
const (
	Half DataType = iota
	Float
	Double
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Half:
		return 2
	case Float:
		return 4
	case Double:
		return 8
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Half:
		return "half"
	case Float:
		return "float"
	case Double:
		return "double"
	default:
		return "unknown"
	}
}

// DataTypeOf infers the DataType of a Scalar type parameter.
func DataTypeOf[T Scalar]() DataType {
	var zero T
	switch any(zero).(type) {
	case float16.Float16:
		return Half
	case float32:
		return Float
	default:
		return Double
	}
}

// ToFloat64 widens a scalar value to float64.
func ToFloat64[T Scalar](v T) float64 {
	switch x := any(v).(type) {
	case float16.Float16:
		return float64(x.Float32())
	case float32:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

// FromFloat64 narrows a float64 to the scalar type, rounding to nearest for half.
func FromFloat64[T Scalar](f float64) T {
	var out T
	switch p := any(&out).(type) {
	case *float16.Float16:
		*p = float16.Fromfloat32(float32(f))
	case *float32:
		*p = float32(f)
	case *float64:
		*p = f
	}
	return out
}
