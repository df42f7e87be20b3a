// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symtab

import (
	"debug/elf"
	"fmt"
	"testing"

	"github.com/stephenrkell/xwrap-go/elfimg"
	"github.com/stephenrkell/xwrap-go/elfimg/internal/elftest"
)

const (
	stbGlobal = uint8(elf.STB_GLOBAL)
	stbLocal  = uint8(elf.STB_LOCAL)
	sttNotype = uint8(elf.STT_NOTYPE)
)

func info(bind uint8) uint8 { return elf.ST_INFO(elf.SymBind(bind), elf.SymType(sttNotype)) }

func newTable(t *testing.T, syms []elftest.Sym) *Table {
	t.Helper()
	sections := []elftest.Section{
		{Name: "section1", Flags: elf.SHF_ALLOC},
		{Name: "section2", Flags: elf.SHF_ALLOC},
		{Name: "section3"}, // not mapped
	}
	obj := elftest.Build(sections, syms, nil)
	f := elfimg.NewFmapFromBytes(obj.Data)
	v, err := elfimg.NewView(f)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	st, err := v.SymTabs()
	if err != nil {
		t.Fatalf("SymTabs: %v", err)
	}
	var raw2 *elfimg.SymTab
	for _, tab := range st {
		if tab.SectionIdx == obj.SymtabIdx {
			raw2 = tab
		}
	}
	tab, err := NewTable(v, raw2)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tab
}

func TestAddr(t *testing.T) {
	tab := newTable(t, []elftest.Sym{
		{Name: "s0", Info: info(stbGlobal), Shndx: 1, Value: 1000, Size: 10},
		{Name: "s1", Info: info(stbGlobal), Shndx: 1, Value: 1050, Size: 10},
		{Name: "s2", Info: info(stbGlobal), Shndx: 2, Value: 2000, Size: 10},
		{Name: "s3", Info: info(stbGlobal), Shndx: 3, Value: 3000, Size: 10},
	})
	check := func(label string, shndx uint16, addr uint64, want SymID) {
		t.Helper()
		got := tab.Addr(shndx, addr)
		if want != got {
			t.Errorf("%s: looking up (%d, %d) want %d, got %d", label, shndx, addr, want, got)
		}
	}
	// SymIDs count the implicit null symbol at index 0, so s0 is 1.
	check("beginning of symbol", 1, 1000, 1)
	check("beginning of symbol", 1, 1050, 2)
	check("beginning of symbol", 2, 2000, 3)
	check("beginning of symbol", 3, 3000, 4)

	check("end of symbol", 1, 1009, 1)
	check("end of symbol", 1, 1059, 2)
	check("just past end of symbol", 1, 1010, NoSym)
	check("just past end of symbol", 1, 1060, NoSym)

	check("any mapped section checks all mapped sections", 1, 2000, 3)
	check("mapped section does not check unmapped sections", 1, 3000, NoSym)

	check("before first symbol", 1, 100, NoSym)
}

func TestName(t *testing.T) {
	tab := newTable(t, []elftest.Sym{
		{Name: "sym0", Info: info(stbGlobal), Shndx: 1, Value: 1000, Size: 10},
		{Name: "sym1", Info: info(stbGlobal), Shndx: 1, Value: 1001, Size: 0},
		{Name: "sym2", Info: info(stbGlobal), Shndx: 3, Value: 3000, Size: 0},
		{Name: "sym3", Info: info(stbLocal), Shndx: 1, Value: 1002, Size: 10},
	})
	check := func(label string, name string, want SymID) {
		t.Helper()
		got := tab.Name(name)
		if want != got {
			t.Errorf("%s: looking up %s want %d, got %d", label, name, want, got)
		}
	}

	check("mapped symbol with size", "sym0", 1)
	check("mapped symbol without size", "sym1", 2)
	check("unmapped symbol without size", "sym2", 3)
	check("local symbol", "sym3", NoSym)
	check("unknown symbol", "sym100", NoSym)
}

func TestOverlap(t *testing.T) {
	const minAddr = 1000
	type rawSym struct {
		value, size uint64
	}
	raw := []rawSym{
		// Strictly nested.
		{1000, 3}, {1001, 1},
		// Same beginning. Smaller symbols should be preferred.
		{1010, 5}, {1010, 4}, {1010, 3},
		// Same end.
		{1020, 5}, {1021, 4}, {1022, 3},
		// Overlap in the middle with same size. Earlier symbol should be preferred.
		{1030, 5}, {1032, 5},
		// Nested abutting symbols.
		{1040, 5}, {1041, 1}, {1042, 1},
		// Same end nested in another symbol.
		{1050, 5}, {1051, 2}, {1052, 1},
		// Totally overlapping. Lower SymIDs should be preferred.
		{1060, 1}, {1060, 1},
	}
	const maxAddr = 1070

	syms := make([]elftest.Sym, len(raw))
	for i, r := range raw {
		syms[i] = elftest.Sym{
			Name:  fmt.Sprintf("sym%d", i),
			Info:  info(stbGlobal),
			Shndx: 1,
			Value: r.value,
			Size:  r.size,
		}
	}
	tab := newTable(t, syms)

	// The +1 below accounts for the implicit null symbol at index 0,
	// which this package's SymID numbering (unlike go-obj's) includes.
	prefer := func(a, b int) bool {
		sa, sb := raw[a], raw[b]
		if sa.value != sb.value {
			return sa.value > sb.value
		}
		if sa.size != sb.size {
			return sa.size < sb.size
		}
		return a < b
	}
	slow := func(addr uint64) SymID {
		best := -1
		for i := range raw {
			if raw[i].value <= addr && addr < raw[i].value+raw[i].size {
				if best == -1 || prefer(i, best) {
					best = i
				}
			}
		}
		if best == -1 {
			return NoSym
		}
		return SymID(best + 1)
	}

	for addr := uint64(minAddr); addr < maxAddr; addr++ {
		want := slow(addr)
		got := tab.Addr(1, addr)
		if want != got {
			t.Errorf("at address %d: want symbol %d, got %d", addr, want, got)
		}
	}
}
