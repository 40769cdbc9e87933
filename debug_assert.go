// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build tbman_debug

package tbman

// assertOwned panics when ok is false. Wired into the free/realloc
// path so a tbman_debug build turns "pointer not owned by this
// manager" from silently-undefined behavior into a loud failure
// during development.
func assertOwned(ok bool) {
	if !ok {
		panic(ErrForeignPointer)
	}
}

// assertSizeClass panics when ok is false: the caller supplied a
// current_size that does not route to the size class the pointer was
// actually granted from.
func assertSizeClass(ok bool) {
	if !ok {
		panic(ErrSizeMismatch)
	}
}
