// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tbman

// Align is the system alignment ceiling (TBMAN_ALIGN in the reference
// design): the largest alignment a block is ever promoted to, chosen
// to satisfy the widest common SIMD vector width.
const Align = 16

// noCopy is a sentinel used to prevent copying of synchronization primitives.
// Embed by value and run `go vet` to catch accidental copies.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// wordSize is the native machine word size in bytes, used as the
// fallback alignment when full_align is disabled.
const wordSize = 8
