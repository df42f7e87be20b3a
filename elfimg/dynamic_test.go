package elfimg

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stephenrkell/xwrap-go/elfimg/internal/elftest"
)

func dynBytes(entries ...elf.Dyn64) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, &e)
	}
	return buf.Bytes()
}

func readDyn(t *testing.T, v *View, sh elf.Section64, i int) elf.Dyn64 {
	t.Helper()
	var d elf.Dyn64
	if err := v.readStruct(int64(sh.Off)+int64(i)*dyn64Size, &d); err != nil {
		t.Fatalf("readStruct: %v", err)
	}
	return d
}

func TestDynTagAppend(t *testing.T) {
	data := dynBytes(
		elf.Dyn64{Tag: int64(elf.DT_NEEDED), Val: 1},
		elf.Dyn64{Tag: int64(elf.DT_NULL)},
		elf.Dyn64{Tag: int64(elf.DT_NULL)}, // spare
	)
	obj := elftest.Build(
		[]elftest.Section{{Name: ".dynamic", Type: elf.SHT_DYNAMIC, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Data: data}},
		nil, nil,
	)
	v := openFixture(t, obj)

	if err := DynTagAppend(v, int64(elf.DT_FLAGS), 0x42); err != nil {
		t.Fatalf("DynTagAppend: %v", err)
	}

	_, sh, ok := v.FindSection(elf.SHT_DYNAMIC, -1)
	if !ok {
		t.Fatalf("no .dynamic section")
	}
	got := readDyn(t, v, sh, 1)
	if got.Tag != int64(elf.DT_FLAGS) || got.Val != 0x42 {
		t.Errorf("entry 1 = %+v, want (DT_FLAGS, 0x42)", got)
	}
	term := readDyn(t, v, sh, 2)
	if term.Tag != int64(elf.DT_NULL) {
		t.Errorf("entry 2 = %+v, want DT_NULL terminator", term)
	}
}

func TestDynTagAppendNoSpare(t *testing.T) {
	data := dynBytes(
		elf.Dyn64{Tag: int64(elf.DT_NEEDED), Val: 1},
		elf.Dyn64{Tag: int64(elf.DT_NULL)},
	)
	obj := elftest.Build(
		[]elftest.Section{{Name: ".dynamic", Type: elf.SHT_DYNAMIC, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Data: data}},
		nil, nil,
	)
	v := openFixture(t, obj)

	if err := DynTagAppend(v, int64(elf.DT_FLAGS), 1); err != ErrNoSpareDynamicTag {
		t.Errorf("DynTagAppend = %v, want ErrNoSpareDynamicTag", err)
	}
}

func TestDynTagAppendNoDynamicSection(t *testing.T) {
	obj := elftest.Build(nil, nil, nil)
	v := openFixture(t, obj)
	if err := DynTagAppend(v, 1, 2); err != ErrNoDynamicSection {
		t.Errorf("DynTagAppend = %v, want ErrNoDynamicSection", err)
	}
}
