// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package tbman_test

// raceEnabled is true when the race detector is active. The S5/S6
// stress tests scale their iteration counts down under race mode,
// which instruments every memory access and makes the full workload
// too slow to finish in CI time budgets.
const raceEnabled = true
