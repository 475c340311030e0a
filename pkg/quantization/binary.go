package quantization

import (
	"github.com/bits-and-blooms/bitset"
)

// BinaryVector is a packed sign-bit encoding of a float32 vector: bit i is
// 1 when component i is >= 0, per spec.md §4.2. Backed by
// github.com/bits-and-blooms/bitset (pulled into the pack's dependency
// graph by the bleve-based repos) instead of hand-rolled byte/bit
// arithmetic.
type BinaryVector struct {
	bits *bitset.BitSet
	dim  int
}

// BinaryEncode quantizes vec's sign bits into a BinaryVector.
func BinaryEncode(vec []float32) BinaryVector {
	bs := bitset.New(uint(len(vec)))
	for i, x := range vec {
		if x >= 0 {
			bs.Set(uint(i))
		}
	}
	return BinaryVector{bits: bs, dim: len(vec)}
}

// Dim returns the vector dimension this payload encodes.
func (b BinaryVector) Dim() int { return b.dim }

// Decode reconstructs an approximate vector: +1 where the bit is set, -1
// otherwise. QuantizedStore.Get returns this when originals are not kept;
// distance computations use HammingSimilarity and never decode.
func (b BinaryVector) Decode() []float32 {
	out := make([]float32, b.dim)
	for i := 0; i < b.dim; i++ {
		if b.bits.Test(uint(i)) {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return out
}

// Bytes packs the bitset into ⌈D/8⌉ bytes, little-endian within each byte,
// matching spec.md §4.2's "packed bit vector of ⌈D/8⌉ bytes."
func (b BinaryVector) Bytes() []byte {
	out := make([]byte, (b.dim+7)/8)
	for i := 0; i < b.dim; i++ {
		if b.bits.Test(uint(i)) {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// BinaryFromBytes reconstructs a BinaryVector of the given dimension from
// its packed byte form, the inverse of Bytes.
func BinaryFromBytes(data []byte, dim int) BinaryVector {
	bs := bitset.New(uint(dim))
	for i := 0; i < dim; i++ {
		if data[i/8]&(1<<uint(i%8)) != 0 {
			bs.Set(uint(i))
		}
	}
	return BinaryVector{bits: bs, dim: dim}
}

// ByteSize returns the packed storage footprint.
func (b BinaryVector) ByteSize() int { return (b.dim + 7) / 8 }

// HammingDistance counts differing bits between b and other.
func (b BinaryVector) HammingDistance(other BinaryVector) int {
	xor := b.bits.SymmetricDifference(other.bits)
	return int(xor.Count())
}

// HammingSimilarity maps Hamming distance to a pseudo-cosine in [0,1] per
// spec.md §4.2: hamming/D. This is documented as "Hamming similarity," not
// a reconstruction of true cosine similarity — see SPEC_FULL.md §8 item 3.
func (b BinaryVector) HammingSimilarity(other BinaryVector) float32 {
	if b.dim == 0 {
		return 0
	}
	return float32(b.HammingDistance(other)) / float32(b.dim)
}

// DistanceBinaryHamming computes the Hamming-similarity distance between a
// raw query and a stored BinaryVector: the query is quantized into the
// same packed layout before comparison, per spec.md §4.2.
func DistanceBinaryHamming(query []float32, stored BinaryVector) float32 {
	q := BinaryEncode(query)
	return q.HammingSimilarity(stored)
}
