package elfimg

import (
	"debug/elf"
	"testing"

	"github.com/stephenrkell/xwrap-go/elfimg/internal/elftest"
)

func openFixture(t *testing.T, obj elftest.Object) *View {
	t.Helper()
	f := NewFmapFromBytes(obj.Data)
	v, err := NewView(f)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	return v
}

func symByName(t *testing.T, v *View, shIdx int, name string) (int, elf.Sym64) {
	t.Helper()
	tabs, err := v.SymTabs()
	if err != nil {
		t.Fatalf("SymTabs: %v", err)
	}
	for _, tab := range tabs {
		if tab.SectionIdx != shIdx {
			continue
		}
		for i := 1; i < tab.NumSyms(); i++ {
			sym, err := tab.Sym(i)
			if err != nil {
				t.Fatalf("Sym: %v", err)
			}
			if tab.Name(sym) == name {
				return i, sym
			}
		}
	}
	t.Fatalf("symbol %q not found in symtab at section %d", name, shIdx)
	return 0, elf.Sym64{}
}

func TestAbsToSection(t *testing.T) {
	globalInfo := elf.ST_INFO(elf.STB_GLOBAL, elf.STT_NOTYPE)
	obj := elftest.Build(
		[]elftest.Section{
			{Name: ".text", Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: make([]byte, 16)},
		},
		[]elftest.Sym{
			{Name: ".text", Info: globalInfo, Shndx: uint16(elf.SHN_ABS), Value: 0},
			{Name: "other", Info: globalInfo, Shndx: uint16(elf.SHN_ABS), Value: 0},
			{Name: "not_abs_zero", Info: globalInfo, Shndx: uint16(elf.SHN_ABS), Value: 5},
		},
		nil,
	)
	v := openFixture(t, obj)

	if err := AbsToSection(v, ""); err != nil {
		t.Fatalf("AbsToSection: %v", err)
	}

	_, sym := symByName(t, v, obj.SymtabIdx, ".text")
	if elf.SectionIndex(sym.Shndx) == elf.SHN_ABS {
		t.Errorf(".text symbol still ABS after rewrite")
	}

	_, other := symByName(t, v, obj.SymtabIdx, "other")
	if elf.SectionIndex(other.Shndx) != elf.SHN_ABS {
		t.Errorf("symbol with no matching section name was reassigned")
	}

	_, nonzero := symByName(t, v, obj.SymtabIdx, "not_abs_zero")
	if elf.SectionIndex(nonzero.Shndx) != elf.SHN_ABS || nonzero.Value != 5 {
		t.Errorf("non-zero-value ABS symbol was touched")
	}
}

func TestAbsToSectionOnlySym(t *testing.T) {
	globalInfo := elf.ST_INFO(elf.STB_GLOBAL, elf.STT_NOTYPE)
	obj := elftest.Build(
		[]elftest.Section{{Name: ".data", Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Data: make([]byte, 8)}},
		[]elftest.Sym{
			{Name: ".data", Info: globalInfo, Shndx: uint16(elf.SHN_ABS), Value: 0},
		},
		nil,
	)
	v := openFixture(t, obj)

	if err := AbsToSection(v, "nonexistent"); err != nil {
		t.Fatalf("AbsToSection: %v", err)
	}
	_, sym := symByName(t, v, obj.SymtabIdx, ".data")
	if elf.SectionIndex(sym.Shndx) != elf.SHN_ABS {
		t.Errorf("onlySym filter did not prevent an unrelated rewrite")
	}
}
