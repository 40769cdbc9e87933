// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tbman provides a thread-safe, hierarchical token-block memory
// manager: a general-purpose allocator that sits between application
// code and the Go runtime's own allocator, servicing many
// small-to-medium allocations with low per-operation overhead and
// predictable alignment.
//
// # Hierarchy
//
// The manager is a three-level hierarchy, leaves first:
//
//	Block       a single fixed-size allocation unit of some size class,
//	            carved out of a token-block of that class. No per-block
//	            header.
//	Token-block an arena serving one size class, subdivided into equal
//	            blocks tracked by a free bitmap.
//	Pool        a runtime-allocated region subdivided into one or more
//	            token-blocks, possibly of different size classes.
//
// A Mgr owns a set of pools, a routing table from size class to the
// token-blocks currently able to serve an allocation ("open" token-blocks),
// and the bookkeeping needed to free a pointer without per-block headers.
//
// # Size classes
//
// A request is routed to the smallest size class able to hold it. Size
// classes are derived from three parameters: min_block_size,
// max_block_size, and a stepping method (1 for power-of-two classes,
// k>1 for k intermediate steps per power of two), each class rounded
// up to a multiple of Align. Requests larger than
// max_block_size bypass the pools entirely and are served directly by
// the runtime allocator ("external" allocations), tracked in a side
// table so they can still be freed through the same API.
//
// # The single primitive
//
//	Alloc / NAlloc(current_ptr, current_size, requested_size, out_granted) -> new_ptr
//
// covers allocation, reallocation, and freeing:
//
//	requested_size == 0, current_ptr == nil:   no-op, returns nil
//	requested_size == 0, current_ptr != nil:   free
//	requested_size  > 0, current_ptr == nil:   allocate
//	requested_size  > 0, current_ptr != nil:   reallocate
//
// NAlloc additionally accepts current_size: when the caller supplies
// the size it previously received as granted, the manager can resolve
// the owning token-block by address-range arithmetic instead of a
// pointer-keyed map lookup — this is the fast path. Alloc degrades
// gracefully to the map-based lookup so the manager remains a drop-in
// replacement for realloc/free-shaped call sites that don't carry a
// size.
//
// Reallocating within the same size class is free: the same pointer is
// returned and no copy happens. granted_size, returned through
// out_granted, is always >= requested_size; it is the rounded-up size
// class for pooled allocations and the exact request size for external
// ones, letting callers of dynamic arrays and string buffers use the
// slack without reallocating.
//
// # Concurrency
//
// Every Mgr method is safe for concurrent use from any number of
// goroutines. A single mutex per manager protects pools, the open
// table, and the owner maps; the critical section is a bitmap scan
// plus pointer arithmetic, or a copy and a runtime allocation when a
// reallocation crosses size classes or a pool must be created, never
// I/O. The per-pool token-block free-list is itself a lock-free
// structure (see freelist.go), but the manager only calls it while
// holding its mutex. GrantedSpace reads an atomic counter and takes no
// lock.
//
// # Dependencies
//
// tbman depends on:
//   - iox: semantic error types and adaptive backoff (ErrWouldBlock, Backoff)
//   - spin: spin-wait primitives used by the lock-free free-list
//   - bits-and-blooms/bitset: word-scanned free/used bitmaps for token-blocks
//   - tidwall/btree: an ordered pool address-range index for size-assisted owner resolution
package tbman
