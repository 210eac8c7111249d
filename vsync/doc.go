// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package vsync provides synchronization primitives for virtual threads.
//
// A virtual thread that blocks on a vsync primitive parks and releases its
// carrier. Plain goroutines may use the same primitives and block normally,
// so virtual threads and goroutines can coordinate with each other.
package vsync
