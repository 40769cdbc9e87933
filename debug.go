// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !tbman_debug

package tbman

// assertOwned is a no-op in release builds: freeing a foreign pointer
// or a mismatched current_size is undefined behavior per the manager
// contract (§7), not a reported error. Build with -tags tbman_debug to
// turn it into a panic during development and testing.
func assertOwned(ok bool) {}

// assertSizeClass is the debug-only counterpart for a current_size
// that maps to a different class than the one the pointer actually
// belongs to.
func assertSizeClass(ok bool) {}
