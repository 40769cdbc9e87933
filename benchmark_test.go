// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tbman_test

import (
	"testing"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"
	"code.hybscloud.com/tbman"
)

// Manager benchmarks

func BenchmarkMgr_AllocFree_Small(b *testing.B) {
	m, err := tbman.CreateDefault()
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			var granted int
			p := m.Alloc(nil, 64, &granted)
			if p == nil {
				b.Fatal("alloc returned nil")
			}
			m.Alloc(p, 0, nil)
		}
	})
}

func BenchmarkMgr_AllocFree_Medium(b *testing.B) {
	m, err := tbman.CreateDefault()
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			var granted int
			p := m.Alloc(nil, 2048, &granted)
			if p == nil {
				b.Fatal("alloc returned nil")
			}
			m.Alloc(p, 0, nil)
		}
	})
}

func BenchmarkMgr_NAlloc_SizeAssisted(b *testing.B) {
	m, err := tbman.CreateDefault()
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			var granted int
			p := m.NAlloc(nil, 0, 64, &granted)
			if p == nil {
				b.Fatal("alloc returned nil")
			}
			m.NAlloc(p, granted, 0, nil)
		}
	})
}

func BenchmarkMgr_Realloc_SameClass(b *testing.B) {
	m, err := tbman.CreateDefault()
	if err != nil {
		b.Fatal(err)
	}
	var granted int
	p := m.Alloc(nil, 64, &granted)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p = m.NAlloc(p, granted, 70, &granted)
	}
}

func BenchmarkMgr_GrantedSpace(b *testing.B) {
	m, err := tbman.CreateDefault()
	if err != nil {
		b.Fatal(err)
	}
	m.Alloc(nil, 64, nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.GrantedSpace()
	}
}

// Memory allocation benchmarks

func BenchmarkAlignedMem_4K(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = tbman.AlignedMem(4096, tbman.PageSize)
	}
}

func BenchmarkAlignedMem_64K(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = tbman.AlignedMem(65536, tbman.PageSize)
	}
}

func BenchmarkCacheLineAlignedMem(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = tbman.CacheLineAlignedMem(256)
	}
}

// BoundedPool benchmarks (the lock-free MPMC primitive behind the
// per-pool token-block free-list)

func BenchmarkBoundedPool_GetPut(b *testing.B) {
	pool := tbman.NewBoundedPool[int](1024)
	pool.Fill(func() int { return 0 })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			idx, err := pool.Get()
			if err != nil {
				b.Fatal(err)
			}
			spin.Yield()
			_ = pool.Put(idx)
		}
	})
}

// High-contention benchmarks demonstrating Backoff behavior
//
// These simulate free-list exhaustion scenarios where multiple
// goroutines compete for a small pool of reusable token-block slots.
// When the pool is empty, Get() uses iox.Backoff (linear
// block-backoff with jitter) to wait for a slot to be released,
// acknowledging that slot turnover is driven by other goroutines
// freeing memory, not a hardware event worth spinning on indefinitely.

func BenchmarkBoundedPool_HighContention_SmallPool(b *testing.B) {
	pool := tbman.NewBoundedPool[int](16)
	pool.Fill(func() int { return 0 })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		var ba iox.Backoff
		for pb.Next() {
			idx, err := pool.Get()
			if err != nil {
				b.Fatal(err)
			}
			ba.Wait()
			_ = pool.Put(idx)
		}
	})
}

func BenchmarkBoundedPool_HighContention_TinyPool(b *testing.B) {
	pool := tbman.NewBoundedPool[int](4)
	pool.Fill(func() int { return 0 })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			idx, err := pool.Get()
			if err != nil {
				b.Fatal(err)
			}
			spin.Yield()
			_ = pool.Put(idx)
		}
	})
}
