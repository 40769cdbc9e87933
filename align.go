// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tbman

import (
	"unsafe"

	"code.hybscloud.com/tbman/internal"
)

// PageSize defines the standard memory page size (4 KiB) used when a
// pool requests page-aligned backing storage.
var PageSize uintptr = 4096

// SetPageSize updates the package-level page size that newPool passes
// to AlignedMem for pool backing storage.
func SetPageSize(size int) {
	PageSize = uintptr(size)
}

// CacheLineSize is the CPU L1 cache line size for the current
// architecture; BoundedPool sizes its remap stride from the same
// internal constant, and CacheLineAlignedMem aligns to it.
const CacheLineSize = internal.CacheLineSize

// AlignedMem returns a byte slice of the given size whose starting
// address is aligned to pageSize. This is how a pool obtains backing
// storage from the Go runtime allocator (tbman's stand-in for the OS
// allocator, out of scope per spec) while still guaranteeing the
// alignment token-blocks need.
//
// The returned slice points into a larger allocation; its length and
// capacity are both size, so appending to it reallocates.
func AlignedMem(size int, pageSize uintptr) []byte {
	p := make([]byte, uintptr(size)+pageSize-1)
	base := unsafe.Pointer(unsafe.SliceData(p))
	offset := ((uintptr(base)+pageSize-1)/pageSize)*pageSize - uintptr(base)
	return unsafe.Slice((*byte)(unsafe.Add(base, offset)), size)
}

// CacheLineAlignedMem returns a byte slice of the given size aligned
// to the CPU cache line size. No code in this package calls it; pools
// and BoundedPool's head/tail counters are allocated without it.
func CacheLineAlignedMem(size int) []byte {
	align := uintptr(CacheLineSize)
	p := make([]byte, uintptr(size)+align-1)
	base := unsafe.Pointer(unsafe.SliceData(p))
	offset := ((uintptr(base)+align-1)/align)*align - uintptr(base)
	return unsafe.Slice((*byte)(unsafe.Add(base, offset)), size)
}

// tryAllocMem is AlignedMem guarded against the runtime's out-of-memory
// panic. Go's make has no error-returning form; the manager's contract
// requires OOM to surface as a nil/false return without disturbing
// existing state (§7), so the allocation that can fail is isolated
// behind recover rather than allowed to crash the calling goroutine.
func tryAllocMem(size int, pageSize uintptr) (mem []byte, ok bool) {
	defer func() {
		if recover() != nil {
			mem, ok = nil, false
		}
	}()
	return AlignedMem(size, pageSize), true
}

// tryMake is the external-allocation counterpart of tryAllocMem: a
// plain make([]byte, size) guarded the same way, for requests that
// exceed max_block_size and bypass the pools entirely.
func tryMake(size int) (mem []byte, ok bool) {
	defer func() {
		if recover() != nil {
			mem, ok = nil, false
		}
	}()
	return make([]byte, size), true
}
