// Package quantization implements the two compressed vector codecs from
// spec.md §4.2: SQ8 (per-vector affine scalar quantization to u8) and
// Binary (sign quantization to a packed bit vector). Both expose an
// asymmetric distance so an unquantized query never loses precision.
//
// Grounded on the teacher's pkg/quantization/scalar_quantization.go
// (ScalarQuantizer/BinaryQuantizer, now removed from the tree, see
// DESIGN.md), generalized from a trained per-dimension quantizer to the
// spec's per-vector min/max codec and rewritten to the asymmetric-distance
// contract the HNSW index needs.
package quantization

import (
	"fmt"
	"math"

	"github.com/surgedb/surgedb/pkg/distance"
)

// SQ8Vector is the per-vector payload produced by Sq8Encode: the quantized
// bytes plus the affine parameters needed to decode or compute asymmetric
// distance without materializing the decoded vector up front.
type SQ8Vector struct {
	Codes []uint8
	Min   float32
	Max   float32
}

// Sq8Encode computes min/max over vec's components and encodes each
// component as round(255*(x-min)/(max-min)) clamped to [0,255], per
// spec.md §4.2.
func Sq8Encode(vec []float32) SQ8Vector {
	min, max := vec[0], vec[0]
	for _, x := range vec[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	span := max - min
	codes := make([]uint8, len(vec))
	if span == 0 {
		// Every component identical: encode as zero, decode is exact
		// because Decode special-cases span==0 below.
		for i := range vec {
			codes[i] = 0
		}
		return SQ8Vector{Codes: codes, Min: min, Max: max}
	}
	for i, x := range vec {
		norm := (x - min) / span
		v := int32(math.Round(float64(norm) * 255))
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		codes[i] = uint8(v)
	}
	return SQ8Vector{Codes: codes, Min: min, Max: max}
}

// Decode inverts the affine transform componentwise.
func (q SQ8Vector) Decode() []float32 {
	out := make([]float32, len(q.Codes))
	span := q.Max - q.Min
	if span == 0 {
		for i := range out {
			out[i] = q.Min
		}
		return out
	}
	for i, c := range q.Codes {
		out[i] = q.Min + (float32(c)/255)*span
	}
	return out
}

// Dim returns the vector dimension this payload encodes.
func (q SQ8Vector) Dim() int { return len(q.Codes) }

// ByteSize returns the storage footprint of the quantized payload plus its
// per-vector metadata (two float32s).
func (q SQ8Vector) ByteSize() int { return len(q.Codes) + 8 }

// AsymmetricDistance computes distance(query, decode(stored)) under m,
// per spec.md §4.2: the query stays f32 and is never quantized, while the
// stored vector is decoded into a freshly allocated slice on every call
// and passed to distance.Compute.
func (q SQ8Vector) AsymmetricDistance(m distance.Metric, query []float32) float32 {
	return distance.Compute(m, query, q.Decode())
}

// MaxComponentError bounds the quantization error for a single component:
// (max-min)/255, the tolerance named by spec.md §8's "Quantization
// bounds" property.
func (q SQ8Vector) MaxComponentError() float32 {
	return (q.Max - q.Min) / 255
}

// ValidateDim returns an error if vec's length doesn't match dim.
func ValidateDim(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("quantization: expected dimension %d, got %d", dim, len(vec))
	}
	return nil
}
