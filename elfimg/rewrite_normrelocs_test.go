package elfimg

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stephenrkell/xwrap-go/elfimg/internal/elftest"
)

func relaBytes(entries ...elf.Rela64) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, &e)
	}
	return buf.Bytes()
}

// TestNormalizeRelocsRewritesSectionSym covers the non-debug case: a
// relocation in .text referencing the (unnamed) section symbol for
// .data gets rewritten to the zero-offset named symbol .data has.
func TestNormalizeRelocsRewritesSectionSym(t *testing.T) {
	wantSymtabIdx := 1 + 3 // .text, .data, .rela.text

	rela := relaBytes(elf.Rela64{
		Off:  0x4,
		Info: elf.R_INFO(1, uint32(elf.R_X86_64_64)),
	})
	sections := []elftest.Section{
		{Name: ".text", Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: make([]byte, 16)},
		{Name: ".data", Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Data: make([]byte, 8)},
		{Name: ".rela.text", Type: elf.SHT_RELA, Link: uint32(wantSymtabIdx), Info: 1, Data: rela},
	}
	syms := []elftest.Sym{
		{Name: "", Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION), Shndx: 2},
		{Name: "zero_off", Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_OBJECT), Shndx: 2, Value: 0},
	}
	obj := elftest.Build(sections, syms, nil)
	if obj.SymtabIdx != wantSymtabIdx {
		t.Fatalf("SymtabIdx = %d, want %d", obj.SymtabIdx, wantSymtabIdx)
	}
	v := openFixture(t, obj)

	if err := NormalizeRelocs(v, ""); err != nil {
		t.Fatalf("NormalizeRelocs: %v", err)
	}

	relSections, err := v.RelSections()
	if err != nil {
		t.Fatalf("RelSections: %v", err)
	}
	if len(relSections) != 1 {
		t.Fatalf("got %d rel sections, want 1", len(relSections))
	}
	e, err := relSections[0].Entry(0)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if e.Sym != 2 {
		t.Errorf("reloc now references symbol %d, want 2 (zero_off)", e.Sym)
	}
}
