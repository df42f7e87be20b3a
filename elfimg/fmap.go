// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elfimg provides a writable, mmap-backed view of an ELF64
// little-endian relocatable (or dynamic) object, plus a set of rewrite
// primitives that mutate such a mapping in place.
//
// This is the Go-idiomatic analogue of elftin's elfmap.hh: a single owned
// memory mapping (golang.org/x/sys/unix.Mmap) with typed byte-range
// accessors, built as a writable counterpart to the read-only pattern used
// by the sibling obj package this module grew out of.
package elfimg

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/stephenrkell/xwrap-go/arch"
)

// Fmap is an owned memory mapping of a file, beginning at some byte offset
// inside that file. It is the base on which View (an ELF-typed façade) and
// Archive (an ar(1)-typed façade) are built.
type Fmap struct {
	// mapping is the raw page-aligned mmap.
	mapping []byte
	// delta is the offset of the caller's requested start within mapping
	// (mapping is aligned down to a page boundary, so delta undoes that).
	delta int64
	// owned is false for a borrowed Fmap (e.g. an archive member's Fmap
	// sharing the archive's mapping): Close is a no-op for those.
	owned bool
}

// MapError wraps an I/O failure encountered while constructing an Fmap.
type MapError struct {
	Op   string
	Path string
	Err  error
}

func (e *MapError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("elfimg: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("elfimg: %s: %v", e.Op, e.Err)
}

func (e *MapError) Unwrap() error { return e.Err }

// Open memory-maps the file backing f, starting at the given byte offset,
// for reading and writing. If f is open for writing, writes through the
// mapping reach the file; if f is read-only, the mapping is private, so
// writes stay in memory and the file is left unchanged. The returned Fmap
// owns the mapping; call Close to release it.
func Open(f *os.File, offset int64) (*Fmap, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, &MapError{"fstat", f.Name(), err}
	}

	pageSize := int64(arch.PageSize())
	alignedOffset := arch.RoundDown(uint64(offset), uint64(pageSize))
	delta := offset - int64(alignedOffset)
	size := arch.RoundUp(uint64(st.Size())-alignedOffset, uint64(pageSize))
	if size == 0 {
		return &Fmap{mapping: nil, delta: 0, owned: true}, nil
	}

	flags := unix.MAP_SHARED
	if fl, err := unix.FcntlInt(f.Fd(), unix.F_GETFL, 0); err == nil && fl&unix.O_ACCMODE == unix.O_RDONLY {
		flags = unix.MAP_PRIVATE
	}
	data, err := unix.Mmap(int(f.Fd()), int64(alignedOffset), int(size), unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, &MapError{"mmap", f.Name(), err}
	}
	return &Fmap{mapping: data, delta: delta, owned: true}, nil
}

// NewFmapFromBytes wraps an in-memory buffer as a non-owning Fmap: Close
// is a no-op. Useful for tests and for callers that already hold a
// file's contents in memory (e.g. read from a io.Reader rather than an
// *os.File).
func NewFmapFromBytes(data []byte) *Fmap {
	return &Fmap{mapping: data, delta: 0, owned: false}
}

// sub returns a borrowed Fmap whose logical start is off bytes into f and
// which runs to the end of f's mapping, as used for archive members. The
// returned Fmap does not own the underlying mapping.
func (f *Fmap) sub(off int64) *Fmap {
	return &Fmap{mapping: f.mapping, delta: f.delta + off, owned: false}
}

// Close unmaps f's memory mapping, if f owns one. Borrowed Fmaps (archive
// members, sub-views) are no-ops: ownership stays with the Fmap that
// called Open.
func (f *Fmap) Close() error {
	if !f.owned || f.mapping == nil {
		return nil
	}
	m := f.mapping
	f.mapping = nil
	return unix.Munmap(m)
}

// bytes returns the byte range [off, off+n) relative to f's logical start
// (i.e. after applying delta), panicking if it runs off the mapping. This
// mirrors elfmap::ptr<Target>, but as a slice rather than a raw pointer.
func (f *Fmap) bytes(off int64, n int64) []byte {
	start := f.delta + off
	end := start + n
	if start < 0 || end > int64(len(f.mapping)) {
		panic(fmt.Sprintf("elfimg: range [%d,%d) out of bounds for mapping of size %d", start, end, len(f.mapping)))
	}
	return f.mapping[start:end]
}

// Len returns the number of bytes available from f's logical start to the
// end of the underlying mapping.
func (f *Fmap) Len() int64 {
	return int64(len(f.mapping)) - f.delta
}

// IsArchive reports whether f begins with the thin-archive magic
// "!<arch>\n".
func (f *Fmap) IsArchive() bool {
	if f.Len() < 8 {
		return false
	}
	return string(f.bytes(0, 8)) == "!<arch>\n"
}

// IsELF reports whether f begins with the ELF magic \x7fELF.
func (f *Fmap) IsELF() bool {
	if f.Len() < 4 {
		return false
	}
	b := f.bytes(0, 4)
	return b[0] == 0x7f && b[1] == 'E' && b[2] == 'L' && b[3] == 'F'
}
