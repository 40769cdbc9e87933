// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !race

package tbman_test

// raceEnabled is the non-race counterpart of race_test.go's build-tagged
// const: false outside -race, so the stress tests run their full
// iteration counts by default and only scale down under the race
// detector.
const raceEnabled = false
