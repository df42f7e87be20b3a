package elfimg

import (
	"debug/elf"
	"testing"

	"github.com/stephenrkell/xwrap-go/elfimg/internal/elftest"
)

func TestPIEToRel(t *testing.T) {
	funcInfo := elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)
	obj := elftest.Build(
		[]elftest.Section{{Name: ".text", Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Addr: 0x1000, Data: make([]byte, 32)}},
		[]elftest.Sym{
			{Name: "f", Info: funcInfo, Shndx: 1, Value: 0x1010, Size: 8},
		},
		nil,
	)
	v := openFixture(t, obj)
	v.Header.Type = uint16(elf.ET_DYN)
	if err := v.writeStruct(0, &v.Header); err != nil {
		t.Fatalf("writeStruct: %v", err)
	}

	if err := PIEToRel(v); err != nil {
		t.Fatalf("PIEToRel: %v", err)
	}

	if elf.Type(v.Header.Type) != elf.ET_REL {
		t.Errorf("e_type = %v, want ET_REL", elf.Type(v.Header.Type))
	}
	if v.Header.Phnum != 0 || v.Header.Phoff != 0 {
		t.Errorf("program header fields not cleared: %+v", v.Header)
	}

	_, f := symByName(t, v, obj.SymtabIdx, "f")
	if f.Value != 0x10 { // 0x1010 - section addr 0x1000
		t.Errorf("f.Value = %#x, want 0x10", f.Value)
	}

	sh, err := v.Section(1)
	if err != nil {
		t.Fatalf("Section: %v", err)
	}
	if sh.Addr != 0 {
		t.Errorf(".text sh_addr = %#x, want 0", sh.Addr)
	}
}

func TestPIEToRelRejectsNonDyn(t *testing.T) {
	obj := elftest.Build(nil, nil, nil)
	v := openFixture(t, obj)
	if err := PIEToRel(v); err != ErrNotStaticPIE {
		t.Errorf("PIEToRel on ET_REL = %v, want ErrNotStaticPIE", err)
	}
}
