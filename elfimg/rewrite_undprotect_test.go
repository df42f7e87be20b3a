package elfimg

import (
	"debug/elf"
	"testing"

	"github.com/stephenrkell/xwrap-go/elfimg/internal/elftest"
)

func TestUndProtect(t *testing.T) {
	defaultInfo := elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)
	obj := elftest.Build(
		[]elftest.Section{{Name: ".text", Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: make([]byte, 8)}},
		[]elftest.Sym{
			{Name: "plain", Info: defaultInfo, Shndx: uint16(elf.SHN_UNDEF)},
			{Name: "hidden", Info: defaultInfo, Shndx: uint16(elf.SHN_UNDEF), Other: uint8(elf.STV_HIDDEN)},
			{Name: "defined", Info: defaultInfo, Shndx: 1},
		},
		nil,
	)
	v := openFixture(t, obj)

	if err := UndProtect(v); err != nil {
		t.Fatalf("UndProtect: %v", err)
	}

	_, plain := symByName(t, v, obj.SymtabIdx, "plain")
	if elf.ST_VISIBILITY(plain.Other) != elf.STV_PROTECTED {
		t.Errorf("plain.Other = %v, want STV_PROTECTED", elf.ST_VISIBILITY(plain.Other))
	}

	_, hidden := symByName(t, v, obj.SymtabIdx, "hidden")
	if elf.ST_VISIBILITY(hidden.Other) != elf.STV_HIDDEN {
		t.Errorf("hidden symbol visibility was changed: %v", elf.ST_VISIBILITY(hidden.Other))
	}

	_, defined := symByName(t, v, obj.SymtabIdx, "defined")
	if elf.ST_VISIBILITY(defined.Other) != elf.STV_DEFAULT {
		t.Errorf("defined (non-UND) symbol visibility was touched: %v", elf.ST_VISIBILITY(defined.Other))
	}
}
