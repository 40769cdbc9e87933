// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tbman

import (
	"math"
	"sort"
)

// sizeClasses computes the ordered, ascending list of block sizes for
// a manager configured with the given bounds and stepping method.
//
// For stepping == 1, classes double from minBlockSize up to
// maxBlockSize. For stepping == k > 1, k intermediate steps are inserted
// per power of two, evenly spaced in log space. In both cases the
// classes are min*2^(i/k) for i = 0, 1, 2, ..., each rounded up to a
// multiple of Align (so min 8 yields a first class of 16), duplicates
// dropped, until the rounded value would exceed maxBlockSize.
func sizeClasses(minBlockSize, maxBlockSize, stepping int) []int {
	if minBlockSize <= 0 || maxBlockSize <= 0 || stepping < 1 || minBlockSize > maxBlockSize {
		return nil
	}

	var classes []int
	last := -1
	for i := 0; ; i++ {
		exact := float64(minBlockSize) * math.Pow(2, float64(i)/float64(stepping))
		rounded := roundUpToAlign(int(math.Ceil(exact)))
		if rounded > maxBlockSize {
			break
		}
		if rounded != last {
			classes = append(classes, rounded)
			last = rounded
		}
	}
	return classes
}

// roundUpToAlign rounds n up to the next multiple of Align.
func roundUpToAlign(n int) int {
	if n <= 0 {
		return Align
	}
	return (n + Align - 1) / Align * Align
}

// classIndexFor returns the index into an ascending classes slice of
// the smallest size class able to hold size bytes, and whether any
// class qualifies (false means the request must be served externally).
func classIndexFor(classes []int, size int) (idx int, ok bool) {
	i := sort.SearchInts(classes, size)
	if i >= len(classes) {
		return 0, false
	}
	return i, true
}

// largestPow2LE returns the largest power of two <= n, capped at cap.
// Used to compute the alignment a block of size n inherits when
// full_align is enabled.
func largestPow2LE(n, cap int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p*2 <= n && p*2 <= cap {
		p *= 2
	}
	return p
}

// blockAlignment returns the alignment a granted block of size granted
// must satisfy under the manager's full_align policy.
func blockAlignment(granted int, fullAlign bool) int {
	if !fullAlign {
		return wordSize
	}
	return largestPow2LE(granted, Align)
}
