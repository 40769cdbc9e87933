// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tbman

import (
	"container/list"
	"unsafe"
)

// tokenBlock is an arena serving a single size class: N blocks of size
// S, tracked by a free bitmap. A tokenBlock never carries a per-block
// header — carve/release are pure bitmap + arithmetic operations.
type tokenBlock struct {
	size  int // S: size of each block in this token-block
	count int // N: number of blocks = len(data) / size
	base  uintptr
	data  []byte // backing storage, len >= count*size (equal when freshly carved)

	free *freeBitmap

	pool      *pool
	class     int // index into the manager's size-class table
	openElem  *list.Element
	inOpenSet bool
	freeSlot  int // this token-block's slot in its pool's free-list
}

// newTokenBlock carves a token-block of the given class out of data,
// which must already be aligned per the pool's alignment policy and
// sized to exactly count*size bytes.
func newTokenBlock(data []byte, size, class int, p *pool) *tokenBlock {
	count := len(data) / size
	return &tokenBlock{
		size:  size,
		count: count,
		base:  uintptr(unsafe.Pointer(unsafe.SliceData(data))),
		data:  data,
		free:  newFreeBitmap(count),
		pool:  p,
		class: class,
	}
}

// carve returns a free slot. Precondition: tb.free.freeCount > 0.
func (tb *tokenBlock) carve() (ptr unsafe.Pointer, idx int) {
	i, ok := tb.free.firstFree()
	if !ok {
		panic("tbman: carve called on a full token-block")
	}
	tb.free.take(i)
	return unsafe.Add(unsafe.Pointer(unsafe.SliceData(tb.data)), i*tb.size), i
}

// release marks the slot owning ptr as free again and reports whether
// the token-block became completely empty as a result.
func (tb *tokenBlock) release(ptr unsafe.Pointer) (becameEmpty bool) {
	idx := tb.indexOf(ptr)
	tb.free.give(idx)
	return tb.free.empty()
}

// indexOf computes the slot index owning ptr. Precondition: contains(ptr).
func (tb *tokenBlock) indexOf(ptr unsafe.Pointer) int {
	off := uintptr(ptr) - tb.base
	return int(off / uintptr(tb.size))
}

// contains reports whether ptr falls within this token-block's extent.
func (tb *tokenBlock) contains(ptr unsafe.Pointer) bool {
	p := uintptr(ptr)
	return p >= tb.base && p < tb.base+uintptr(tb.count*tb.size)
}

// slotPtr returns the address of slot idx.
func (tb *tokenBlock) slotPtr(idx int) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(unsafe.SliceData(tb.data)), idx*tb.size)
}
