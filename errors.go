// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tbman

import "errors"

// Construction and contract errors. Out-of-memory is not one of
// these: it is signalled by a nil return from Alloc/NAlloc, per the
// allocate/reallocate/free primitive's contract.
var (
	// ErrInvalidArgument is returned by Create when the constructor
	// parameters fail validation (zero sizes, min > max, stepping < 1, ...).
	ErrInvalidArgument = errors.New("tbman: invalid argument")

	// ErrForeignPointer is returned (in debug builds, via panic; see
	// debug_assert.go) when a pointer not owned by this manager is freed.
	// Freeing a foreign pointer is undefined behavior per the manager
	// contract; this value exists so debug assertions have something
	// concrete to name.
	ErrForeignPointer = errors.New("tbman: pointer not owned by this manager")

	// ErrSizeMismatch is the debug-assertion error for a current_size
	// that does not route to the size class the pointer was actually
	// carved from.
	ErrSizeMismatch = errors.New("tbman: current_size does not match granted size class")
)
