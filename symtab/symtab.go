// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symtab implements fast symbol lookup by name and address over
// an elfimg symbol table, so that classify doesn't have to linearly
// rescan .symtab for every wrap candidate.
package symtab

import (
	"debug/elf"
	"sort"

	"github.com/stephenrkell/xwrap-go/elfimg"
)

// SymID indexes into a Table's underlying symbol table (the same
// numbering as elfimg.SymTab.Sym).
type SymID int

// NoSym is the SymID meaning "no symbol".
const NoSym SymID = -1

// mappedKey stands in for every SHF_ALLOC section: like elfmap's "mapped"
// sections, they're all indexed as if they shared one address space,
// since that's how a runtime address maps back to a symbol.
const mappedKey = ^uint16(0)

// Table facilitates fast symbol lookup by name and address.
type Table struct {
	syms  []elf.Sym64
	names []string

	// sections maps an ELF section index to the address-ordered table
	// covering it; SHF_ALLOC sections all share mappedKey.
	sections map[uint16]sectionTable

	// sectionKey maps a real section index to the key used to look it
	// up in sections (itself, or mappedKey for SHF_ALLOC sections).
	sectionKey map[uint16]uint16

	// name indexes non-local symbols by name.
	name map[string]SymID
}

type sectionTable struct {
	// addr contains boundaries of symbols in Table.syms, ordered by
	// address, exactly as in go-obj's symtab: see makeAddrIndex.
	addr []symAddr
}

type symAddr struct {
	addr uint64
	id   SymID
}

// NewTable builds a Table over t's symbols. v supplies the section
// headers needed to tell loadable (SHF_ALLOC) sections from the rest.
func NewTable(v *elfimg.View, t *elfimg.SymTab) (*Table, error) {
	n := t.NumSyms()
	syms := make([]elf.Sym64, n)
	names := make([]string, n)
	for i := 0; i < n; i++ {
		s, err := t.Sym(i)
		if err != nil {
			return nil, err
		}
		syms[i] = s
		names[i] = t.Name(s)
	}

	name := make(map[string]SymID)
	sectionKey := make(map[uint16]uint16)
	sectionSyms := map[uint16][]SymID{mappedKey: {}}
	for i, s := range syms {
		if elf.ST_BIND(s.Info) != elf.STB_LOCAL && names[i] != "" {
			name[names[i]] = SymID(i)
		}
		if s.Size == 0 || elf.SectionIndex(s.Shndx) == elf.SHN_UNDEF || s.Shndx > uint16(elf.SHN_LORESERVE) {
			continue
		}
		key, ok := sectionKey[s.Shndx]
		if !ok {
			key = s.Shndx
			if sh, err := v.Section(int(s.Shndx)); err == nil && elf.SectionFlag(sh.Flags)&elf.SHF_ALLOC != 0 {
				key = mappedKey
			}
			sectionKey[s.Shndx] = key
		}
		sectionSyms[key] = append(sectionSyms[key], SymID(i))
	}

	sections := make(map[uint16]sectionTable, len(sectionSyms))
	for key, ids := range sectionSyms {
		sections[key] = sectionTable{makeAddrIndex(syms, ids)}
	}

	return &Table{syms, names, sections, sectionKey, name}, nil
}

func makeAddrIndex(syms []elf.Sym64, ids []SymID) []symAddr {
	// Sort by starting address then priority, with low priority symbols
	// before higher priority so the higher priority ones override the
	// lower priority as we loop over the slice.
	sort.Slice(ids, func(i, j int) bool {
		si, sj := &syms[ids[i]], &syms[ids[j]]

		// Sort by symbol address.
		if si.Value != sj.Value {
			return si.Value < sj.Value
		}

		// Then size, preferring smaller symbols.
		if si.Size != sj.Size {
			return si.Size > sj.Size
		}

		// Then by index, which is guaranteed to be unique.
		return ids[i] > ids[j]
	})

	// Create the address index. This would be trivial except that
	// symbols can and do overlap. We iterate through each symbol
	// *boundary* (beginning and end) and keep a stack of symbols at the
	// current address (lowest end address at top of stack). Typically
	// this stack will be very shallow, so we don't bother with more
	// sophisticated data structures.
	var out []symAddr
	stack := make([]symAddr, 0, 8) // addr is *end* address
	drainStack := func(addr uint64) {
		for len(stack) > 0 {
			endAddr := stack[len(stack)-1].addr
			if endAddr > addr {
				return
			}
			for len(stack) > 0 && stack[len(stack)-1].addr == endAddr {
				stack = stack[:len(stack)-1]
			}
			if len(stack) > 0 {
				out = append(out, symAddr{endAddr, stack[len(stack)-1].id})
			}
		}
	}
	for _, id := range ids {
		sym := syms[id]
		if len(stack) == 1 {
			if stack[0].addr <= sym.Value {
				stack = stack[:0]
			}
		} else if len(stack) > 0 {
			drainStack(sym.Value)
		}
		start := symAddr{sym.Value, id}
		if len(out) > 0 && out[len(out)-1].addr == sym.Value {
			out[len(out)-1] = start
		} else {
			out = append(out, start)
		}
		stack = append(stack, symAddr{sym.Value + sym.Size, id})
		if len(stack) > 1 {
			for i := len(stack) - 1; i >= 1 && stack[i].addr > stack[i-1].addr; i-- {
				stack[i], stack[i-1] = stack[i-1], stack[i]
			}
		}
	}
	drainStack(^uint64(0))

	return out
}

// Sym returns the raw symbol at id. The caller must not assume id is
// stable across a rewrite that reorders the underlying SymTab.
func (t *Table) Sym(id SymID) elf.Sym64 {
	return t.syms[id]
}

// Name returns the (global) symbol with the given name, or NoSym. This
// symbol may not be unique.
func (t *Table) Name(name string) SymID {
	if i, ok := t.name[name]; ok {
		return i
	}
	return NoSym
}

// Addr returns the symbol containing addr in the section shndx, or
// NoSym. If shndx names an SHF_ALLOC section, Addr considers symbols in
// all SHF_ALLOC sections.
//
// This symbol may not be unique, in which case Addr prioritizes the
// symbol with the latest starting address, followed by the symbol with
// the smallest size.
func (t *Table) Addr(shndx uint16, addr uint64) SymID {
	key, ok := t.sectionKey[shndx]
	if !ok {
		key = shndx
	}
	tab, ok := t.sections[key]
	if !ok {
		return NoSym
	}
	i := sort.Search(len(tab.addr), func(i int) bool {
		return addr < tab.addr[i].addr
	}) - 1
	if i < 0 {
		return NoSym
	}
	id := tab.addr[i].id
	sym := &t.syms[id]
	if sym.Value+sym.Size <= addr {
		return NoSym
	}
	return id
}
