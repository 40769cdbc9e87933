// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tbman

import "container/list"

// openTable is a vector-of-vectors indexed by size class (§9 Design
// Notes): for each class, a container/list doubly-linked list of
// token-blocks with at least one free slot. The front of each list is
// the next allocation target; a token-block is unlinked the instant it
// becomes full ("closed") and relinked the instant it gains a free
// slot again, both O(1). The list is not intrusive: each insert
// allocates a new list element, which the token-block keeps in
// openElem until it is removed.
type openTable struct {
	lists []*list.List
}

func newOpenTable(numClasses int) *openTable {
	lists := make([]*list.List, numClasses)
	for i := range lists {
		lists[i] = list.New()
	}
	return &openTable{lists: lists}
}

// front returns the next token-block that should serve an allocation
// of this class, or nil if none is open.
func (ot *openTable) front(class int) *tokenBlock {
	e := ot.lists[class].Front()
	if e == nil {
		return nil
	}
	return e.Value.(*tokenBlock)
}

// insert marks tb as open for its class.
func (ot *openTable) insert(class int, tb *tokenBlock) {
	if tb.inOpenSet {
		return
	}
	tb.openElem = ot.lists[class].PushFront(tb)
	tb.inOpenSet = true
}

// remove marks tb as closed (full or retired) for its class.
func (ot *openTable) remove(class int, tb *tokenBlock) {
	if !tb.inOpenSet {
		return
	}
	ot.lists[class].Remove(tb.openElem)
	tb.openElem = nil
	tb.inOpenSet = false
}
