// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tbman_test

import (
	"testing"
	"unsafe"

	"code.hybscloud.com/tbman"
)

func TestAlignedMem(t *testing.T) {
	sizes := []int{1, 7, 4096, 65536}
	for _, size := range sizes {
		mem := tbman.AlignedMem(size, tbman.PageSize)
		if len(mem) != size {
			t.Errorf("AlignedMem(%d): len = %d, want %d", size, len(mem), size)
		}
		addr := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
		if addr%tbman.PageSize != 0 {
			t.Errorf("AlignedMem(%d): address %#x not aligned to page size %d", size, addr, tbman.PageSize)
		}
	}
}

func TestSetPageSize(t *testing.T) {
	orig := tbman.PageSize
	defer tbman.SetPageSize(int(orig))

	tbman.SetPageSize(8192)
	mem := tbman.AlignedMem(128, tbman.PageSize)
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	if addr%8192 != 0 {
		t.Errorf("address %#x not aligned to 8192 after SetPageSize", addr)
	}
}

func TestCacheLineAlignedMem(t *testing.T) {
	mem := tbman.CacheLineAlignedMem(256)
	if len(mem) != 256 {
		t.Fatalf("len = %d, want 256", len(mem))
	}
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	if addr%uintptr(tbman.CacheLineSize) != 0 {
		t.Errorf("address %#x not aligned to cache line size %d", addr, tbman.CacheLineSize)
	}
}
