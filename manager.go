// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tbman

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Default construction parameters used by CreateDefault (§6).
const (
	defaultPoolSize     = 64 * 1024
	defaultMinBlockSize = 8
	defaultStepping     = 4
	defaultFullAlign    = true
)

// Mgr is a thread-safe, hierarchical token-block memory manager. The
// zero Mgr is not usable; construct one with Create or CreateDefault.
//
// Every exported method takes mu except GrantedSpace, which reads the
// running total through an atomic counter so a caller polling
// memory pressure never contends with allocation traffic (§4.5).
type Mgr struct {
	noCopy

	poolSize     int
	minBlockSize int
	maxBlockSize int
	stepping     int
	fullAlign    bool

	classes      []int
	slotCapacity int

	mu      sync.Mutex
	pools   []*pool
	ranges  poolRangeIndex
	open    *openTable
	owners  *ownerMap
	granted atomic.Int64
}

// CreateDefault builds a Mgr using the reference defaults (§6):
// pool_size 64 KiB, min_block_size 8, max_block_size pool_size/4,
// stepping 4, full_align true.
func CreateDefault() (*Mgr, error) {
	return Create(defaultPoolSize, defaultMinBlockSize, defaultPoolSize/4, defaultStepping, defaultFullAlign)
}

// Create builds a Mgr from explicit parameters. It validates that all
// sizes are positive, min_block_size <= max_block_size <=
// pool_size/2, and stepping >= 1, returning ErrInvalidArgument
// (wrapped with the offending value) otherwise.
func Create(poolSize, minBlockSize, maxBlockSize, stepping int, fullAlign bool) (*Mgr, error) {
	switch {
	case poolSize <= 0:
		return nil, fmt.Errorf("%w: pool_size must be > 0, got %d", ErrInvalidArgument, poolSize)
	case minBlockSize <= 0:
		return nil, fmt.Errorf("%w: min_block_size must be > 0, got %d", ErrInvalidArgument, minBlockSize)
	case maxBlockSize <= 0:
		return nil, fmt.Errorf("%w: max_block_size must be > 0, got %d", ErrInvalidArgument, maxBlockSize)
	case stepping < 1:
		return nil, fmt.Errorf("%w: stepping must be >= 1, got %d", ErrInvalidArgument, stepping)
	case minBlockSize > maxBlockSize:
		return nil, fmt.Errorf("%w: min_block_size (%d) must be <= max_block_size (%d)", ErrInvalidArgument, minBlockSize, maxBlockSize)
	case maxBlockSize > poolSize/2:
		return nil, fmt.Errorf("%w: max_block_size (%d) must be <= pool_size/2 (%d)", ErrInvalidArgument, maxBlockSize, poolSize/2)
	}

	classes := sizeClasses(minBlockSize, maxBlockSize, stepping)
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: no size classes derivable from the given bounds", ErrInvalidArgument)
	}

	m := &Mgr{
		poolSize:     poolSize,
		minBlockSize: minBlockSize,
		maxBlockSize: maxBlockSize,
		stepping:     stepping,
		fullAlign:    fullAlign,
		classes:      classes,
		slotCapacity: tokenBlockSlotCapacity(len(classes)),
		open:         newOpenTable(len(classes)),
		owners:       newOwnerMap(),
	}
	return m, nil
}

// tokenBlockSlotCapacity bounds how many distinct token-blocks a
// single pool's free-list (freelist.go) needs to track concurrently.
// pool.carve batches many blocks into each token-block, claiming at
// most 1/tokenBlockPoolFraction of a pool per fresh carve, so at most
// that many token-blocks of a given class can ever be open in one pool
// at once; summed over every size class this manager serves, that is
// a generous but much tighter bound than the pool_size/min_block_size
// used by a one-block-per-token-block design.
func tokenBlockSlotCapacity(numClasses int) int {
	return numClasses * tokenBlockPoolFraction
}

// Discard releases every pool this manager holds back to the runtime.
// leaked reports the number of allocations that were still live at the
// time of the call (neither a double-free nor a crash; the caller is
// responsible for the leak). A Mgr must not be used after Discard.
func (m *Mgr) Discard() (leaked int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	leaked = m.owners.liveCount()
	m.pools = nil
	m.ranges = poolRangeIndex{}
	m.open = newOpenTable(len(m.classes))
	m.owners = newOwnerMap()
	m.granted.Store(0)
	return leaked, nil
}

// GrantedSpace returns the number of bytes currently granted to live
// allocations (§4.5): the sum of rounded-up size classes for pooled
// allocations and exact sizes for external ones. It never blocks on
// the manager's mutex.
func (m *Mgr) GrantedSpace() int64 {
	return m.granted.Load()
}

// Alloc is NAlloc with current_size assumed to be 0, i.e. it always
// resolves the owning token-block through the pointer-keyed owner map
// rather than the size-assisted address-range path. It exists for
// call sites that cannot economically track the size they were
// granted.
func (m *Mgr) Alloc(currentPtr unsafe.Pointer, requestedSize int, outGranted *int) unsafe.Pointer {
	return m.NAlloc(currentPtr, 0, requestedSize, outGranted)
}

// NAlloc is the manager's single allocate/reallocate/free primitive
// (§4.5):
//
//	requestedSize == 0, currentPtr == nil: no-op, returns nil
//	requestedSize == 0, currentPtr != nil: free
//	requestedSize  > 0, currentPtr == nil: allocate
//	requestedSize  > 0, currentPtr != nil: reallocate
//
// currentSize, when it is the size previously granted for currentPtr,
// lets the manager resolve ownership by address-range arithmetic
// instead of an owner-map lookup. A currentSize that does not match
// what currentPtr was actually granted is undefined behavior (debug
// builds assert it; see debug_assert.go); NAlloc falls back to the
// pointer-keyed lookup rather than corrupt state when the fast path
// can't confirm the match.
//
// outGranted, if non-nil, receives the granted size: the size class
// actually used for pooled allocations, or the exact requested size
// for external ones. A nil return indicates out-of-memory and leaves
// all existing state untouched.
func (m *Mgr) NAlloc(currentPtr unsafe.Pointer, currentSize, requestedSize int, outGranted *int) unsafe.Pointer {
	if requestedSize == 0 {
		if currentPtr != nil {
			m.free(currentPtr, currentSize)
		}
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if currentPtr == nil {
		return m.allocateLocked(requestedSize, outGranted)
	}
	return m.reallocateLocked(currentPtr, currentSize, requestedSize, outGranted)
}

// free is NAlloc's requestedSize==0 branch, split out because it
// takes the lock itself (allocateLocked/reallocateLocked assume it is
// already held, since reallocate needs to free the old pointer inside
// the same critical section as allocating the new one).
func (m *Mgr) free(ptr unsafe.Pointer, currentSize int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freeLocked(ptr, currentSize)
}

func (m *Mgr) freeLocked(ptr unsafe.Pointer, currentSize int) {
	if ea, ok := m.owners.forgetExternal(ptr); ok {
		m.granted.Add(-int64(ea.size))
		return
	}

	tb := m.resolveLocked(ptr, currentSize)
	if tb == nil {
		// Freeing a pointer this manager does not own is undefined
		// behavior (§7); debug builds assert it instead of no-op'ing.
		assertOwned(false)
		return
	}

	m.granted.Add(-int64(tb.size))
	m.owners.forgetOwner(ptr)
	m.releaseFromTokenBlock(tb, ptr)
}

// allocateLocked serves a fresh requestedSize from either an external
// allocation or a pooled size class. Returns nil on OOM without
// mutating any state that Discard/GrantedSpace would observe.
func (m *Mgr) allocateLocked(requestedSize int, outGranted *int) unsafe.Pointer {
	class, size, ok := m.classFor(requestedSize)
	if !ok {
		return m.allocateExternalLocked(requestedSize, outGranted)
	}

	tb := m.openTokenBlockFor(class, size)
	if tb == nil {
		return m.allocateExternalLocked(requestedSize, outGranted)
	}

	ptr, _ := tb.carve()
	if tb.free.full() {
		m.open.remove(class, tb)
	}

	m.owners.recordOwner(ptr, tb)
	m.granted.Add(int64(size))
	if outGranted != nil {
		*outGranted = size
	}
	return ptr
}

// allocateExternalLocked serves requests larger than max_block_size,
// or requests that could not be served by any pool because the
// runtime allocator is out of memory, directly through make. Requests
// that fit a size class but fell through to here because every pool
// is full are routed back through a freshly grown pool first; only a
// genuine OOM (or a request above max_block_size) reaches make.
func (m *Mgr) allocateExternalLocked(requestedSize int, outGranted *int) unsafe.Pointer {
	data, ok := tryMake(requestedSize)
	if !ok {
		return nil
	}
	ptr := unsafe.Pointer(unsafe.SliceData(data))
	m.owners.recordExternal(ptr, requestedSize, data)
	m.granted.Add(int64(requestedSize))
	if outGranted != nil {
		*outGranted = requestedSize
	}
	return ptr
}

// reallocateLocked serves a non-zero requestedSize against an
// existing currentPtr. When both the old and new sizes map to the
// same size class, the same pointer is returned untouched — no copy,
// no free, no change to granted_total (§4.5's "free reallocation
// within a size class").
func (m *Mgr) reallocateLocked(currentPtr unsafe.Pointer, currentSize, requestedSize int, outGranted *int) unsafe.Pointer {
	newClass, newSize, newPooled := m.classFor(requestedSize)

	if ea, ok := m.owners.peekExternal(currentPtr); ok {
		if !newPooled && requestedSize <= cap(ea.data) {
			// Shrinking (or no-op) within the same backing slice: keep
			// the pointer, adjust the granted accounting only.
			m.granted.Add(int64(requestedSize - ea.size))
			m.owners.recordExternal(currentPtr, requestedSize, ea.data)
			if outGranted != nil {
				*outGranted = requestedSize
			}
			return currentPtr
		}
		return m.reallocateCopyLocked(currentPtr, ea.size, requestedSize, outGranted)
	}

	tb := m.resolveLocked(currentPtr, currentSize)
	if tb == nil {
		assertOwned(false)
		return nil
	}
	if newPooled && newClass == tb.class {
		if outGranted != nil {
			*outGranted = newSize
		}
		return currentPtr
	}
	return m.reallocateCopyLocked(currentPtr, tb.size, requestedSize, outGranted)
}

// reallocateCopyLocked is the allocate-new/copy/free-old path taken
// whenever reallocation crosses a size class or the internal/external
// boundary in either direction (§4.5).
func (m *Mgr) reallocateCopyLocked(oldPtr unsafe.Pointer, oldGranted, requestedSize int, outGranted *int) unsafe.Pointer {
	newPtr := m.allocateLocked(requestedSize, outGranted)
	if newPtr == nil {
		return nil
	}
	n := min(oldGranted, requestedSize)
	oldBytes := unsafe.Slice((*byte)(oldPtr), n)
	newBytes := unsafe.Slice((*byte)(newPtr), n)
	copy(newBytes, oldBytes)
	m.freeLocked(oldPtr, oldGranted)
	return newPtr
}

// classFor routes a requested size to a size class, or reports that
// the request must be served externally.
func (m *Mgr) classFor(requestedSize int) (class, size int, ok bool) {
	idx, ok := classIndexFor(m.classes, requestedSize)
	if !ok {
		return 0, 0, false
	}
	return idx, m.classes[idx], true
}

// resolveLocked finds the token-block owning ptr. When a non-zero
// currentSize routes to the same class the token-block was actually carved from,
// it uses the size-assisted address-range path (§4.4.1: O(log pools)
// via the range index plus a binary search within the pool); otherwise
// it falls back to the pointer-keyed owner map, which always has the
// answer for any pointer this manager granted.
func (m *Mgr) resolveLocked(ptr unsafe.Pointer, currentSize int) *tokenBlock {
	if class, _, ok := m.classFor(currentSize); currentSize > 0 && ok {
		if p, found := m.ranges.find(ptr); found {
			if tb := p.findTokenBlock(ptr); tb != nil {
				assertSizeClass(tb.class == class)
				if tb.class == class {
					return tb
				}
			}
		}
	}
	tb, _ := m.owners.lookupOwner(ptr)
	return tb
}

// openTokenBlockFor returns a token-block with a free slot for class,
// opening a new one (from an existing pool's free-list, or by growing
// a pool, or by creating a new pool) if none is currently open. It
// returns nil only when every avenue is exhausted by OOM.
func (m *Mgr) openTokenBlockFor(class, size int) *tokenBlock {
	if tb := m.open.front(class); tb != nil {
		return tb
	}

	for _, p := range m.pools {
		if tb, ok := p.carve(class, size); ok {
			m.ranges.insert(p)
			if !tb.free.full() {
				m.open.insert(class, tb)
			}
			return tb
		}
	}

	p, ok := newPool(m.poolSize, m.slotCapacity)
	if !ok {
		return nil
	}
	tb, ok := p.carve(class, size)
	if !ok {
		// A brand new pool failing to carve a block that fits its own
		// pool_size means the caller's bounds are inconsistent; treat
		// it the same as OOM rather than panicking.
		return nil
	}
	m.pools = append(m.pools, p)
	m.ranges.insert(p)
	if !tb.free.full() {
		m.open.insert(class, tb)
	}
	return tb
}

// releaseFromTokenBlock frees slot ptr within tb and, if that empties
// the token-block, retires it to its pool's free-list; if that in
// turn idles the pool, the pool is released to the runtime unless it
// is the one idle pool this manager keeps cached per §4.5 ("retain
// one empty pool as cache and release any excess to the OS").
func (m *Mgr) releaseFromTokenBlock(tb *tokenBlock, ptr unsafe.Pointer) {
	wasFull := tb.free.full()
	becameEmpty := tb.release(ptr)

	if wasFull && !becameEmpty {
		m.open.insert(tb.class, tb)
	}

	if !becameEmpty {
		return
	}

	m.open.remove(tb.class, tb)
	p := tb.pool
	poolIdle := p.retire(tb)
	if !poolIdle {
		return
	}
	m.retirePool(p)
}

// retirePool releases an idle pool to the runtime, unless p is the
// only idle pool this manager currently holds, in which case it is
// kept as a cache to absorb the next allocation burst without a fresh
// runtime allocation (§4.5: "retain one empty pool as cache and
// release any excess to the OS").
func (m *Mgr) retirePool(p *pool) {
	if m.countIdlePools() <= 1 {
		return
	}
	m.removePool(p)
}

// countIdlePools reports how many of this manager's pools currently
// hold no live token-blocks.
func (m *Mgr) countIdlePools() int {
	n := 0
	for _, p := range m.pools {
		if p.liveCount == 0 {
			n++
		}
	}
	return n
}

// removePool drops p from the manager's bookkeeping, releasing its
// backing memory to the Go runtime's garbage collector.
func (m *Mgr) removePool(p *pool) {
	m.ranges.remove(p)
	for i, q := range m.pools {
		if q == p {
			m.pools = append(m.pools[:i], m.pools[i+1:]...)
			break
		}
	}
}
