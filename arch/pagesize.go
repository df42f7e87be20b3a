// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arch

import "golang.org/x/sys/unix"

// PageSize returns the host's memory page size, queried from the operating
// system. It is deliberately not a compile-time constant: the source this
// package's rewrite primitives are ported from hard-codes PAGE_SIZE as a
// fallback, which the design notes call out as a portability wart.
func PageSize() int {
	return unix.Getpagesize()
}

// RoundUp rounds v up to the next multiple of align, which must be a power
// of two.
func RoundUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// RoundDown rounds v down to the previous multiple of align, which must be
// a power of two.
func RoundDown(v, align uint64) uint64 {
	return v &^ (align - 1)
}
