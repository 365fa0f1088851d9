// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stamp

import (
	"math"
	"math/bits"
)

// MinValue returns the smallest signed value representable in the given number of bits
func MinValue(bits int) int64 {
	if bits == 64 {
		return math.MinInt64
	}
	return -(int64(1) << (bits - 1))
}

// MaxValue returns the largest signed value representable in the given number of bits
func MaxValue(bits int) int64 {
	if bits == 64 {
		return math.MaxInt64
	}
	return int64(1)<<(bits-1) - 1
}

// Wrap truncates v to the given width and sign-extends the result, i.e. two's complement wraparound.
func Wrap(v int64, bits int) int64 {
	if bits == 64 || bits == 0 {
		return v
	}
	shift := 64 - bits
	return (v << shift) >> shift
}

// AddOverflows returns true if x + y does not fit in the given width. x and y must fit in that width.
func AddOverflows(x, y int64, bits int) bool {
	if bits == 64 {
		r := x + y
		return (^x&^y&r) < 0 || (x&y&^r) < 0
	}
	r := x + y
	return r > MaxValue(bits) || r < MinValue(bits)
}

// SubtractOverflows returns true if x - y does not fit in the given width.
func SubtractOverflows(x, y int64, bits int) bool {
	if bits == 64 {
		r := x - y
		return ((x^y)&(x^r)) < 0
	}
	r := x - y
	return r > MaxValue(bits) || r < MinValue(bits)
}

// MultiplyOverflows returns true if x * y does not fit in the given width.
func MultiplyOverflows(x, y int64, bits int) bool {
	if bits == 64 {
		hi := MultiplyHigh(x, y, 64)
		lo := x * y
		return hi != lo>>63
	}
	// both operands fit in 32 bits, the product fits in 64
	r := x * y
	return r > MaxValue(bits) || r < MinValue(bits)
}

// MultiplyHigh returns the high half of the signed double-width product of x and y.
func MultiplyHigh(x, y int64, width int) int64 {
	if width == 32 {
		return (x * y) >> 32
	}
	hi, _ := bits.Mul64(uint64(x), uint64(y))
	if x < 0 {
		hi -= uint64(y)
	}
	if y < 0 {
		hi -= uint64(x)
	}
	return int64(hi)
}

// MultiplyHighUnsigned returns the high half of the unsigned double-width product of x and y, sign-extended to the
// int64 representation of the given width.
func MultiplyHighUnsigned(x, y int64, width int) int64 {
	if width == 32 {
		r := uint64(uint32(x)) * uint64(uint32(y))
		return int64(int32(uint32(r >> 32)))
	}
	hi, _ := bits.Mul64(uint64(x), uint64(y))
	return int64(hi)
}

// FoldAdd returns the stamp of the sum of values in a and b.
func FoldAdd(a, b Stamp) Stamp {
	if a.empty || b.empty {
		return Empty(a.kind)
	}
	w := a.Bits()
	if AddOverflows(a.lower, b.lower, w) || AddOverflows(a.upper, b.upper, w) {
		return a.Unrestricted()
	}
	return ForInteger(a.kind, a.lower+b.lower, a.upper+b.upper)
}

// FoldSub returns the stamp of the difference of values in a and b.
func FoldSub(a, b Stamp) Stamp {
	if a.empty || b.empty {
		return Empty(a.kind)
	}
	w := a.Bits()
	if SubtractOverflows(a.lower, b.upper, w) || SubtractOverflows(a.upper, b.lower, w) {
		return a.Unrestricted()
	}
	return ForInteger(a.kind, a.lower-b.upper, a.upper-b.lower)
}

// FoldMul returns the stamp of the product of values in a and b.
func FoldMul(a, b Stamp) Stamp {
	if a.empty || b.empty {
		return Empty(a.kind)
	}
	w := a.Bits()
	lo, hi := int64(math.MaxInt64), int64(math.MinInt64)
	for _, x := range [2]int64{a.lower, a.upper} {
		for _, y := range [2]int64{b.lower, b.upper} {
			if MultiplyOverflows(x, y, w) {
				return a.Unrestricted()
			}
			lo = min64(lo, x*y)
			hi = max64(hi, x*y)
		}
	}
	return ForInteger(a.kind, lo, hi)
}

// FoldNeg returns the stamp of the negated values of a.
func FoldNeg(a Stamp) Stamp {
	if a.empty {
		return a
	}
	if a.lower == MinValue(a.Bits()) {
		return a.Unrestricted()
	}
	return ForInteger(a.kind, -a.upper, -a.lower)
}

// FoldAnd returns the stamp of the bitwise and of values in a and b.
func FoldAnd(a, b Stamp) Stamp {
	if a.empty || b.empty {
		return Empty(a.kind)
	}
	if x, ok := a.AsConstant(); ok {
		if y, ok := b.AsConstant(); ok {
			return ForConstant(a.kind, x&y)
		}
	}
	if a.lower >= 0 || b.lower >= 0 {
		hi := MaxValue(a.Bits())
		if a.lower >= 0 {
			hi = a.upper
		}
		if b.lower >= 0 {
			hi = min64(hi, b.upper)
		}
		return ForInteger(a.kind, 0, hi)
	}
	return a.Unrestricted()
}

// FoldOr returns the stamp of the bitwise or of values in a and b.
func FoldOr(a, b Stamp) Stamp {
	return foldBitwise(a, b, func(x, y int64) int64 { return x | y })
}

// FoldXor returns the stamp of the bitwise xor of values in a and b.
func FoldXor(a, b Stamp) Stamp {
	return foldBitwise(a, b, func(x, y int64) int64 { return x ^ y })
}

func foldBitwise(a, b Stamp, op func(x, y int64) int64) Stamp {
	if a.empty || b.empty {
		return Empty(a.kind)
	}
	if x, ok := a.AsConstant(); ok {
		if y, ok := b.AsConstant(); ok {
			return ForConstant(a.kind, op(x, y))
		}
	}
	return a.Unrestricted()
}

// FoldMulHigh evaluates the signed high product at the four combinations of the operand bounds.
func FoldMulHigh(a, b Stamp) Stamp {
	if a.empty || b.empty {
		return Empty(a.kind)
	}
	w := a.Bits()
	lo, hi := int64(math.MaxInt64), int64(math.MinInt64)
	for _, x := range [2]int64{a.lower, a.upper} {
		for _, y := range [2]int64{b.lower, b.upper} {
			r := MultiplyHigh(x, y, w)
			lo = min64(lo, r)
			hi = max64(hi, r)
		}
	}
	return ForInteger(a.kind, lo, hi)
}

// FoldUMulHigh evaluates the unsigned high product at the four combinations of the unsigned operand bounds.
func FoldUMulHigh(a, b Stamp) Stamp {
	if a.empty || b.empty {
		return Empty(a.kind)
	}
	w := a.Bits()
	lo, hi := int64(math.MaxInt64), int64(math.MinInt64)
	for _, x := range unsignedExtremes(a) {
		for _, y := range unsignedExtremes(b) {
			r := MultiplyHighUnsigned(x, y, w)
			lo = min64(lo, r)
			hi = max64(hi, r)
		}
	}
	// a negative minimum means the result reaches into the upper half of the unsigned range
	if lo == hi || lo >= 0 {
		return ForInteger(a.kind, lo, hi)
	}
	return a.Unrestricted()
}

func unsignedExtremes(s Stamp) [2]int64 {
	if s.lower < 0 && s.upper >= 0 {
		// -1 and 0 are both in range: nothing is known about the unsigned range
		return [2]int64{0, -1}
	}
	return [2]int64{s.lower, s.upper}
}
