// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tbman

import "unsafe"

// externalAlloc is an allocation too large for any size class, served
// directly by the runtime allocator and tracked here so it can still
// be freed/reallocated through the manager's API. The backing slice
// is kept alongside the size so the allocation stays reachable for the
// garbage collector for as long as the manager considers it live —
// storing only its address would not.
type externalAlloc struct {
	size int
	data []byte
}

// ownerMap implements the two lookup paths of §4.4: a pointer-keyed
// hash from user pointer to owning token-block for the unassisted
// free/realloc path, and a side table of external (over-max-class)
// allocations.
type ownerMap struct {
	owners   map[uintptr]*tokenBlock
	external map[uintptr]externalAlloc
}

func newOwnerMap() *ownerMap {
	return &ownerMap{
		owners:   make(map[uintptr]*tokenBlock),
		external: make(map[uintptr]externalAlloc),
	}
}

func (o *ownerMap) recordOwner(ptr unsafe.Pointer, tb *tokenBlock) {
	o.owners[uintptr(ptr)] = tb
}

func (o *ownerMap) forgetOwner(ptr unsafe.Pointer) {
	delete(o.owners, uintptr(ptr))
}

func (o *ownerMap) lookupOwner(ptr unsafe.Pointer) (*tokenBlock, bool) {
	tb, ok := o.owners[uintptr(ptr)]
	return tb, ok
}

func (o *ownerMap) recordExternal(ptr unsafe.Pointer, size int, data []byte) {
	o.external[uintptr(ptr)] = externalAlloc{size: size, data: data}
}

func (o *ownerMap) peekExternal(ptr unsafe.Pointer) (externalAlloc, bool) {
	ea, ok := o.external[uintptr(ptr)]
	return ea, ok
}

func (o *ownerMap) forgetExternal(ptr unsafe.Pointer) (externalAlloc, bool) {
	ea, ok := o.external[uintptr(ptr)]
	if ok {
		delete(o.external, uintptr(ptr))
	}
	return ea, ok
}

// liveCount reports the total number of pointers this manager
// currently considers live, across both maps — used by Discard to
// report leaks.
func (o *ownerMap) liveCount() int {
	return len(o.owners) + len(o.external)
}
