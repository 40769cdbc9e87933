// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tbman

import (
	"unsafe"

	"github.com/tidwall/btree"
)

// poolRangeIndex is an ordered map from a pool's base address to the
// pool itself. It backs the size-assisted owner-resolution path
// (§4.4.1): given a pointer, a floor lookup (the greatest base address
// <= the pointer) finds the only pool that could possibly contain it
// in O(log pools), which Design Note §9 recommends in place of a
// pointer-keyed hash table.
type poolRangeIndex struct {
	m btree.Map[uintptr, *pool]
}

func (idx *poolRangeIndex) insert(p *pool) {
	idx.m.Set(p.base, p)
}

func (idx *poolRangeIndex) remove(p *pool) {
	idx.m.Delete(p.base)
}

// find returns the pool whose extent contains ptr, if any.
func (idx *poolRangeIndex) find(ptr unsafe.Pointer) (*pool, bool) {
	addr := uintptr(ptr)
	var candidate *pool
	idx.m.Descend(addr, func(_ uintptr, p *pool) bool {
		candidate = p
		return false // first hit is the floor entry; stop.
	})
	if candidate == nil || !candidate.contains(ptr) {
		return nil, false
	}
	return candidate, true
}
