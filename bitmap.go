// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tbman

import "github.com/bits-and-blooms/bitset"

// freeBitmap tracks which slots of a token-block are free. A set bit
// means the corresponding slot is free; a clear bit means it is
// carved out to a caller. Per Design Note §9, lookups use the
// underlying bitset's word-sized find-first-set scan rather than a
// bit-by-bit loop.
type freeBitmap struct {
	bits      *bitset.BitSet
	n         int
	freeCount int
}

// newFreeBitmap returns a bitmap for n slots, all initially free.
func newFreeBitmap(n int) *freeBitmap {
	b := bitset.New(uint(n))
	for i := 0; i < n; i++ {
		b.Set(uint(i))
	}
	return &freeBitmap{bits: b, n: n, freeCount: n}
}

// firstFree returns the lowest-index free slot. Keeping carves
// low-index-first packs live allocations at the front of the
// token-block, improving locality (§4.2 tie-break rule).
func (fb *freeBitmap) firstFree() (idx int, ok bool) {
	if fb.freeCount == 0 {
		return 0, false
	}
	i, found := fb.bits.NextSet(0)
	if !found {
		return 0, false
	}
	return int(i), true
}

// take marks idx as used. Precondition: idx was free.
func (fb *freeBitmap) take(idx int) {
	fb.bits.Clear(uint(idx))
	fb.freeCount--
}

// give marks idx as free again. Precondition: idx was used.
func (fb *freeBitmap) give(idx int) {
	fb.bits.Set(uint(idx))
	fb.freeCount++
}

// isUsed reports whether idx is currently carved out.
func (fb *freeBitmap) isUsed(idx int) bool {
	return !fb.bits.Test(uint(idx))
}

// empty reports whether every slot is free.
func (fb *freeBitmap) empty() bool {
	return fb.freeCount == fb.n
}

// full reports whether no slot is free.
func (fb *freeBitmap) full() bool {
	return fb.freeCount == 0
}
