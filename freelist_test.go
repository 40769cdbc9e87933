// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tbman_test

import (
	"sync"
	"testing"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/tbman"
)

func TestBoundedPool_GetPut(t *testing.T) {
	pool := tbman.NewBoundedPool[int](8)
	pool.Fill(func() int { return 0 })

	seen := make(map[int]bool)
	var drained []int
	for i := 0; i < pool.Cap(); i++ {
		idx, err := pool.Get()
		if err != nil {
			t.Fatalf("Get() #%d: %v", i, err)
		}
		if seen[idx] {
			t.Fatalf("slot %d returned twice", idx)
		}
		seen[idx] = true
		drained = append(drained, idx)
	}

	for _, idx := range drained {
		if err := pool.Put(idx); err != nil {
			t.Fatalf("Put(%d): %v", idx, err)
		}
	}
}

func TestBoundedPool_CapacityRoundsUpToPowerOfTwo(t *testing.T) {
	pool := tbman.NewBoundedPool[int](5)
	if pool.Cap() != 8 {
		t.Fatalf("Cap() = %d, want 8 (next power of two >= 5)", pool.Cap())
	}
}

func TestBoundedPool_Nonblock_ReturnsWouldBlockWhenEmpty(t *testing.T) {
	pool := tbman.NewBoundedPool[int](1)
	pool.Fill(func() int { return 0 })
	pool.SetNonblock(true)

	idx, err := pool.Get()
	if err != nil {
		t.Fatalf("Get() on a fresh pool: %v", err)
	}

	if _, err := pool.Get(); err != iox.ErrWouldBlock {
		t.Fatalf("Get() on an empty nonblocking pool: err = %v, want iox.ErrWouldBlock", err)
	}

	if err := pool.Put(idx); err != nil {
		t.Fatalf("Put(%d): %v", idx, err)
	}

	idx2, err := pool.Get()
	if err != nil {
		t.Fatalf("Get() after Put: %v", err)
	}
	if idx2 != idx {
		t.Fatalf("Get() after Put returned %d, want the recycled slot %d", idx2, idx)
	}
}

func TestBoundedPool_ValueSetValue(t *testing.T) {
	pool := tbman.NewBoundedPool[string](4)
	pool.Fill(func() string { return "" })

	idx, err := pool.Get()
	if err != nil {
		t.Fatalf("Get(): %v", err)
	}
	pool.SetValue(idx, "hello")
	if got := pool.Value(idx); got != "hello" {
		t.Fatalf("Value(%d) = %q, want %q", idx, got, "hello")
	}
}

// Concurrent Get/Put under high contention on a small pool never loses
// or duplicates a slot index.
func TestBoundedPool_ConcurrentGetPut(t *testing.T) {
	const capacity = 16
	const goroutines = 8
	const opsPerGoroutine = 5000

	pool := tbman.NewBoundedPool[int](capacity)
	pool.Fill(func() int { return 0 })

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < opsPerGoroutine; i++ {
				idx, err := pool.Get()
				if err != nil {
					t.Errorf("Get(): %v", err)
					return
				}
				if err := pool.Put(idx); err != nil {
					t.Errorf("Put(%d): %v", idx, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	seen := make(map[int]bool)
	for i := 0; i < capacity; i++ {
		idx, err := pool.Get()
		if err != nil {
			t.Fatalf("final drain Get() #%d: %v", i, err)
		}
		if seen[idx] {
			t.Fatalf("slot %d returned twice during final drain", idx)
		}
		seen[idx] = true
	}
	if len(seen) != capacity {
		t.Fatalf("drained %d distinct slots, want %d", len(seen), capacity)
	}
}
