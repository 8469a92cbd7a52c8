// Package bitvector implements a resizable vector of bits backed by 64-bit
// blocks.
//
// The file-analysis pipeline uses bit vectors for two jobs: tracking which
// byte offsets of a reconstructed file have been delivered (gap detection),
// and keeping compact presence flags per analyzer slot.
//
// Unused trailing bits in the last block are always zero; every structural
// mutation re-establishes this invariant so that equality, population count,
// and serialization are well-defined regardless of how the current length was
// reached.
//
// Index-based operations panic when the index is out of range. Out-of-range
// access indicates a broken invariant in the caller, so it fails loudly
// rather than returning an error that would be ignored on the hot path.
// FindFirst and FindNext are the exception: they return Npos when no set bit
// exists.
package bitvector

import (
	"fmt"
	"math/bits"
)

// Npos is the sentinel returned by FindFirst and FindNext when no set bit
// exists.
const Npos = ^uint64(0)

const bitsPerBlock = 64

// BitVector is an ordered sequence of bits with a logical length independent
// of its block storage. The zero value is an empty vector ready for use.
type BitVector struct {
	blocks []uint64
	n      uint64
}

// New constructs a bit vector of the given length with every bit set to
// value.
func New(n uint64, value bool) *BitVector {
	v := &BitVector{}
	v.Resize(n, value)
	return v
}

// FromBlocks constructs a bit vector from whole 64-bit blocks. The resulting
// length is a multiple of 64.
func FromBlocks(blocks ...uint64) *BitVector {
	v := &BitVector{
		blocks: make([]uint64, len(blocks)),
		n:      uint64(len(blocks)) * bitsPerBlock,
	}
	copy(v.blocks, blocks)
	return v
}

// Len returns the number of bits in the vector.
func (v *BitVector) Len() uint64 { return v.n }

// Empty reports whether the vector has zero length.
func (v *BitVector) Empty() bool { return v.n == 0 }

// Blocks returns the number of storage blocks backing the vector.
func (v *BitVector) Blocks() int { return len(v.blocks) }

// Clone returns an independent copy of the vector.
func (v *BitVector) Clone() *BitVector {
	c := &BitVector{
		blocks: make([]uint64, len(v.blocks)),
		n:      v.n,
	}
	copy(c.blocks, v.blocks)
	return c
}

// Test returns the bit at position i. Panics if i >= Len.
func (v *BitVector) Test(i uint64) bool {
	v.checkIndex(i)
	return v.blocks[blockIndex(i)]&bitMask(i) != 0
}

// Set sets the bit at position i to one. Panics if i >= Len.
func (v *BitVector) Set(i uint64) *BitVector {
	v.checkIndex(i)
	v.blocks[blockIndex(i)] |= bitMask(i)
	return v
}

// SetValue sets the bit at position i to the given value. Panics if i >= Len.
func (v *BitVector) SetValue(i uint64, value bool) *BitVector {
	if value {
		return v.Set(i)
	}
	return v.Reset(i)
}

// Reset sets the bit at position i to zero. Panics if i >= Len.
func (v *BitVector) Reset(i uint64) *BitVector {
	v.checkIndex(i)
	v.blocks[blockIndex(i)] &^= bitMask(i)
	return v
}

// Flip toggles the bit at position i. Panics if i >= Len.
func (v *BitVector) Flip(i uint64) *BitVector {
	v.checkIndex(i)
	v.blocks[blockIndex(i)] ^= bitMask(i)
	return v
}

// SetAll sets every bit to one.
func (v *BitVector) SetAll() *BitVector {
	for i := range v.blocks {
		v.blocks[i] = ^uint64(0)
	}
	v.zeroUnusedBits()
	return v
}

// ResetAll sets every bit to zero.
func (v *BitVector) ResetAll() *BitVector {
	for i := range v.blocks {
		v.blocks[i] = 0
	}
	return v
}

// FlipAll computes the complement in place.
func (v *BitVector) FlipAll() *BitVector {
	for i := range v.blocks {
		v.blocks[i] = ^v.blocks[i]
	}
	v.zeroUnusedBits()
	return v
}

// SetRange sets every bit in [from, to) and returns the number of bits that
// were previously zero. Panics if from > to or to > Len.
//
// The return value lets the caller account for newly covered positions
// without a second pass; the file record uses it to keep its delivered-byte
// total idempotent under overlapping redelivery.
func (v *BitVector) SetRange(from, to uint64) uint64 {
	if from > to {
		panic(fmt.Sprintf("bitvector: invalid range [%d,%d)", from, to))
	}
	if to > v.n {
		panic(fmt.Sprintf("bitvector: range end %d out of range [0,%d]", to, v.n))
	}

	var added uint64
	i := from
	for i < to {
		b := blockIndex(i)
		lo := bitIndex(i)
		hi := uint64(bitsPerBlock)
		if blockIndex(to-1) == b {
			hi = bitIndex(to-1) + 1
		}
		mask := maskRange(lo, hi)
		added += uint64(bits.OnesCount64(mask &^ v.blocks[b]))
		v.blocks[b] |= mask
		i = (b + 1) * bitsPerBlock
	}
	return added
}

// Count returns the number of one-bits (population count).
func (v *BitVector) Count() uint64 {
	var c uint64
	for _, b := range v.blocks {
		c += uint64(bits.OnesCount64(b))
	}
	return c
}

// FindFirst returns the position of the lowest one-bit, or Npos if the
// vector contains no set bits.
func (v *BitVector) FindFirst() uint64 {
	return v.findFrom(0)
}

// FindNext returns the position of the lowest one-bit strictly greater than
// i, or Npos if no such bit exists.
func (v *BitVector) FindNext(i uint64) uint64 {
	if v.n == 0 || i >= v.n-1 {
		return Npos
	}
	i++
	b := blockIndex(i)
	if masked := v.blocks[b] &^ (bitMask(i) - 1); masked != 0 {
		return b*bitsPerBlock + uint64(bits.TrailingZeros64(masked))
	}
	return v.findFrom(b + 1)
}

// findFrom returns the position of the first one-bit in block i or later.
func (v *BitVector) findFrom(i uint64) uint64 {
	for ; i < uint64(len(v.blocks)); i++ {
		if v.blocks[i] != 0 {
			return i*bitsPerBlock + uint64(bits.TrailingZeros64(v.blocks[i]))
		}
	}
	return Npos
}

// Resize changes the logical length to n. Growing preserves existing bits
// and fills new positions with value; shrinking preserves the prefix and
// discards the rest.
func (v *BitVector) Resize(n uint64, value bool) {
	oldN := v.n
	newBlocks := bitsToBlocks(n)

	switch {
	case uint64(len(v.blocks)) < newBlocks:
		fill := uint64(0)
		if value {
			fill = ^uint64(0)
		}
		for uint64(len(v.blocks)) < newBlocks {
			v.blocks = append(v.blocks, fill)
		}
	case uint64(len(v.blocks)) > newBlocks:
		v.blocks = v.blocks[:newBlocks]
	}

	v.n = n

	// When growing, positions [oldN, n) in the previously-last block still
	// hold zeros from the unused-bits invariant; fill them if requested.
	if value && n > oldN {
		for i := oldN; i < n && i < bitsToBlocks(oldN)*bitsPerBlock; i++ {
			v.blocks[blockIndex(i)] |= bitMask(i)
		}
	}

	v.zeroUnusedBits()
}

// Grow extends the vector with zero bits so that Len() >= n. It never
// shrinks.
func (v *BitVector) Grow(n uint64) {
	if n > v.n {
		v.Resize(n, false)
	}
}

// Clear removes all bits, leaving an empty vector.
func (v *BitVector) Clear() {
	v.blocks = v.blocks[:0]
	v.n = 0
}

// PushBack appends a single bit.
func (v *BitVector) PushBack(bit bool) {
	v.Resize(v.n+1, false)
	if bit {
		v.Set(v.n - 1)
	}
}

// Append appends the 64 bits of a whole block, low bit first.
func (v *BitVector) Append(block uint64) {
	partial := v.n % bitsPerBlock
	if partial == 0 {
		v.blocks = append(v.blocks, block)
	} else {
		v.blocks[len(v.blocks)-1] |= block << partial
		v.blocks = append(v.blocks, block>>(bitsPerBlock-partial))
	}
	v.n += bitsPerBlock
	v.zeroUnusedBits()
}

// And replaces v with the bitwise AND of v and other. Operands of different
// lengths are combined as if the shorter were zero-extended; the result
// length is the longer of the two.
func (v *BitVector) And(other *BitVector) *BitVector {
	v.extendTo(other.n)
	for i := range v.blocks {
		if i < len(other.blocks) {
			v.blocks[i] &= other.blocks[i]
		} else {
			v.blocks[i] = 0
		}
	}
	return v
}

// Or replaces v with the bitwise OR of v and other, zero-extending the
// shorter operand.
func (v *BitVector) Or(other *BitVector) *BitVector {
	v.extendTo(other.n)
	for i := range other.blocks {
		v.blocks[i] |= other.blocks[i]
	}
	v.zeroUnusedBits()
	return v
}

// Xor replaces v with the bitwise XOR of v and other, zero-extending the
// shorter operand.
func (v *BitVector) Xor(other *BitVector) *BitVector {
	v.extendTo(other.n)
	for i := range other.blocks {
		v.blocks[i] ^= other.blocks[i]
	}
	v.zeroUnusedBits()
	return v
}

// AndNot replaces v with the bitwise difference v AND NOT other,
// zero-extending the shorter operand.
func (v *BitVector) AndNot(other *BitVector) *BitVector {
	v.extendTo(other.n)
	for i := range other.blocks {
		v.blocks[i] &^= other.blocks[i]
	}
	return v
}

// ShiftLeft shifts every bit toward higher positions by k, filling the
// vacated low positions with zeros. The length is unchanged; bits shifted
// past the end are discarded.
func (v *BitVector) ShiftLeft(k uint64) *BitVector {
	if k >= v.n {
		return v.ResetAll()
	}

	blockShift := int(k / bitsPerBlock)
	bitShift := k % bitsPerBlock

	for i := len(v.blocks) - 1; i >= 0; i-- {
		var b uint64
		if src := i - blockShift; src >= 0 {
			b = v.blocks[src] << bitShift
			if bitShift > 0 && src > 0 {
				b |= v.blocks[src-1] >> (bitsPerBlock - bitShift)
			}
		}
		v.blocks[i] = b
	}
	v.zeroUnusedBits()
	return v
}

// ShiftRight shifts every bit toward lower positions by k, filling the
// vacated high positions with zeros.
func (v *BitVector) ShiftRight(k uint64) *BitVector {
	if k >= v.n {
		return v.ResetAll()
	}

	blockShift := int(k / bitsPerBlock)
	bitShift := k % bitsPerBlock
	nblocks := len(v.blocks)

	for i := 0; i < nblocks; i++ {
		var b uint64
		if src := i + blockShift; src < nblocks {
			b = v.blocks[src] >> bitShift
			if bitShift > 0 && src+1 < nblocks {
				b |= v.blocks[src+1] << (bitsPerBlock - bitShift)
			}
		}
		v.blocks[i] = b
	}
	return v
}

// Equal reports whether two vectors have identical length and bits.
func (v *BitVector) Equal(other *BitVector) bool {
	if v.n != other.n {
		return false
	}
	for i := range v.blocks {
		if v.blocks[i] != other.blocks[i] {
			return false
		}
	}
	return true
}

// Less orders vectors by comparing blocks from the most significant block
// backward, zero-extending the shorter operand to equal block count.
func (v *BitVector) Less(other *BitVector) bool {
	n := max(len(v.blocks), len(other.blocks))
	for i := n - 1; i >= 0; i-- {
		var a, b uint64
		if i < len(v.blocks) {
			a = v.blocks[i]
		}
		if i < len(other.blocks) {
			b = other.blocks[i]
		}
		if a != b {
			return a < b
		}
	}
	return false
}

// String renders the vector most-significant bit first, matching the
// conventional written order of binary numbers.
func (v *BitVector) String() string {
	buf := make([]byte, v.n)
	for i := uint64(0); i < v.n; i++ {
		if v.Test(i) {
			buf[v.n-1-i] = '1'
		} else {
			buf[v.n-1-i] = '0'
		}
	}
	return string(buf)
}

func (v *BitVector) checkIndex(i uint64) {
	if i >= v.n {
		panic(fmt.Sprintf("bitvector: index %d out of range [0,%d)", i, v.n))
	}
}

// extendTo grows the vector with zeros so binary operations can combine
// operands of different lengths.
func (v *BitVector) extendTo(n uint64) {
	if n > v.n {
		v.Resize(n, false)
	}
}

// zeroUnusedBits clears the bit positions beyond the logical length in the
// last block.
func (v *BitVector) zeroUnusedBits() {
	if partial := v.n % bitsPerBlock; partial != 0 {
		v.blocks[len(v.blocks)-1] &= (uint64(1) << partial) - 1
	}
}

func blockIndex(i uint64) uint64 { return i / bitsPerBlock }

func bitIndex(i uint64) uint64 { return i % bitsPerBlock }

func bitMask(i uint64) uint64 { return uint64(1) << bitIndex(i) }

func bitsToBlocks(n uint64) uint64 {
	return n/bitsPerBlock + boolToUint(n%bitsPerBlock != 0)
}

// maskRange returns a block mask with bits [lo, hi) set, hi <= 64.
func maskRange(lo, hi uint64) uint64 {
	m := ^uint64(0) << lo
	if hi < bitsPerBlock {
		m &= (uint64(1) << hi) - 1
	}
	return m
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
