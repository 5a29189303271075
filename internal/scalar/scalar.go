// Package scalar defines the numeric precision the reconstruction pipeline
// is generic over, per the "generic numeric precision" design note: the
// core is written once against the Float constraint and instantiated at
// either single or double precision at the call site.
package scalar

import (
	"math"

	"github.com/chewxy/math32"
)

// Float is satisfied by the two concrete scalar types the pipeline
// supports.
type Float interface {
	float32 | float64
}

// Sqrt is a precision-dispatching sqrt usable from generic code, since
// math.Sqrt and math32.Sqrt aren't unified by the standard library.
func Sqrt[F Float](x F) F {
	switch v := any(x).(type) {
	case float32:
		return F(math32.Sqrt(v))
	default:
		return F(math.Sqrt(float64(x)))
	}
}

// Abs is a precision-dispatching absolute value for generic code.
func Abs[F Float](x F) F {
	if x < 0 {
		return -x
	}
	return x
}

// Max returns the larger of a, b.
func Max[F Float](a, b F) F {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a, b.
func Min[F Float](a, b F) F {
	if a < b {
		return a
	}
	return b
}
