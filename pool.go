// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tbman

import (
	"sort"
	"unsafe"
)

// tokenBlockPoolFraction bounds how large a share of a pool's total
// bytes a single freshly bump-carved token-block may claim (§2: a
// token-block holds "N = pool_size / S blocks", amortizing bitmap and
// open-table overhead across many blocks, not one). Carving the
// entire remaining region into one token-block would let whichever
// size class is requested first starve every other class sharing this
// pool, so a fresh carve is capped at 1/tokenBlockPoolFraction of the
// pool (at least one block) and the rest of the region stays
// available for later classes.
const tokenBlockPoolFraction = 4

// pool is a runtime-allocated region of poolSize bytes, subdivided
// into one or more token-blocks of possibly different size classes
// (§3). It is a flat bump-carver: new token-blocks are cut from
// data[cursor:] in batches of multiple blocks (see tokenBlockPoolFraction)
// until the region is exhausted, at which point the manager creates
// another pool. Token-blocks that become completely empty are kept on
// a per-pool free-list (freelist.go) instead of being handed back
// byte-for-byte, so a later request for a size class that fits can
// reuse the memory without growing the pool further.
type pool struct {
	noCopy

	base   uintptr
	data   []byte
	cursor int

	blocks   []*tokenBlock
	freelist *tokenBlockFreeList

	// liveCount counts token-blocks currently carved out of the
	// free-list (open or closed, i.e. not idly cached). The pool is
	// eligible for release to the runtime once this reaches zero.
	liveCount int
}

// newPool allocates a fresh pool of poolSize bytes. slotCapacity
// bounds how many token-blocks may exist in this pool concurrently;
// callers pass tokenBlockSlotCapacity's per-class bound (manager.go),
// sized around the batched carves below rather than one slot per
// block. ok is false if the runtime allocator could not satisfy the
// request (OOM); Alloc/NAlloc surface that as a nil return rather than
// a panic, per the manager's OOM contract (§7).
func newPool(poolSize, slotCapacity int) (p *pool, ok bool) {
	data, ok := tryAllocMem(poolSize, PageSize)
	if !ok {
		return nil, false
	}
	return &pool{
		base:     uintptr(unsafe.Pointer(unsafe.SliceData(data))),
		data:     data,
		freelist: newTokenBlockFreeList(slotCapacity),
	}, true
}

// contains reports whether ptr falls within this pool's extent.
func (p *pool) contains(ptr unsafe.Pointer) bool {
	a := uintptr(ptr)
	return a >= p.base && a < p.base+uintptr(len(p.data))
}

// carve returns a token-block of the given size class, either reused
// from the free-list or freshly batch-cut from the bump cursor. ok is
// false when this pool cannot serve the request right now (its
// slot-capacity or byte capacity is exhausted, or the free-list handed
// back a cached block too small for size); the manager should try the
// next pool, or fall back to creating a new one.
func (p *pool) carve(class, size int) (tb *tokenBlock, ok bool) {
	slot, cached, acquired := p.freelist.acquire()
	if !acquired {
		return nil, false
	}

	if cached != nil && len(cached.data) >= size {
		// Reuse the cached token-block in place, including across a
		// change of size class (§4.3: a freed token-block is "kept on
		// a per-pool free-list for reuse by any size class that
		// fits"). cached is already present in p.blocks at this base
		// address from when it was first carved, so its fields are
		// mutated here rather than appending a second entry for the
		// same address.
		cached.size = size
		cached.count = len(cached.data) / size
		cached.class = class
		cached.free = newFreeBitmap(cached.count)
		cached.freeSlot = slot
		p.liveCount++
		return cached, true
	}

	if cached != nil {
		// cached is smaller than size and cannot serve this request.
		// Give the slot (and the block) straight back so a later
		// request whose size actually fits it can still claim it,
		// instead of displacing it onto a fresh cursor carve below and
		// stranding its bytes for the lifetime of the pool (§4.3).
		p.freelist.release(slot, cached)
		return nil, false
	}

	remaining := len(p.data) - p.cursor
	if remaining < size {
		p.freelist.release(slot, nil)
		return nil, false
	}

	// Batch multiple blocks into one token-block instead of carving
	// exactly size bytes: a fresh token-block claims up to 1/
	// tokenBlockPoolFraction of the pool (clamped to what's actually
	// left, and raised back up to size for classes bigger than that
	// share), so N ends up > 1 on the primary path and the open-table/
	// bitmap machinery amortizes across many blocks as §2 intends.
	budget := len(p.data) / tokenBlockPoolFraction
	if budget < size {
		budget = size
	}
	if budget > remaining {
		budget = remaining
	}
	n := budget / size

	region := p.data[p.cursor : p.cursor+n*size]
	p.cursor += n * size
	tb = newTokenBlock(region, size, class, p)
	tb.freeSlot = slot
	p.blocks = append(p.blocks, tb)
	p.liveCount++
	return tb, true
}

// findTokenBlock returns the token-block owning ptr, using a binary
// search over p.blocks (kept in ascending base-address order: entries
// are appended only when a token-block is freshly carved, never on
// free-list reuse). This is the size-assisted resolution path of
// §4.4.1, reached only when the caller supplied a current_size and
// the range index has already located this pool by address.
func (p *pool) findTokenBlock(ptr unsafe.Pointer) *tokenBlock {
	addr := uintptr(ptr)
	i := sort.Search(len(p.blocks), func(i int) bool {
		return p.blocks[i].base > addr
	})
	if i == 0 {
		return nil
	}
	tb := p.blocks[i-1]
	if !tb.contains(ptr) {
		return nil
	}
	return tb
}

// retire returns an emptied token-block to the free-list and reports
// whether the pool itself has become completely idle (§3: "pool is
// returned to OS iff reference count reaches zero and no token-block
// in it is currently open").
func (p *pool) retire(tb *tokenBlock) (poolIdle bool) {
	p.freelist.release(tb.freeSlot, tb)
	p.liveCount--
	return p.liveCount == 0
}
