package elfimg

import (
	"debug/elf"
	"testing"

	"github.com/stephenrkell/xwrap-go/elfimg/internal/elftest"
)

func TestShiftFileOffsets(t *testing.T) {
	obj := elftest.Build(
		[]elftest.Section{{Name: ".text", Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: make([]byte, 16)}},
		nil, nil,
	)
	v := openFixture(t, obj)

	before, err := v.Section(1)
	if err != nil {
		t.Fatalf("Section: %v", err)
	}
	beforeShoff := v.Header.Shoff

	const delta = 0x40
	if err := ShiftFileOffsets(v, delta); err != nil {
		t.Fatalf("ShiftFileOffsets: %v", err)
	}

	// ShiftFileOffsets only rewrites the offset *fields*; the section
	// header table itself hasn't physically moved, so read the shifted
	// entry back from its original location rather than through
	// v.Section (which would now look for it at the new, unmoved-in-this-
	// fixture Shoff).
	var after elf.Section64
	if err := v.readStruct(int64(beforeShoff)+int64(v.Header.Shentsize), &after); err != nil {
		t.Fatalf("readStruct: %v", err)
	}
	if after.Off != before.Off+delta {
		t.Errorf("section offset = %d, want %d", after.Off, before.Off+delta)
	}
	if v.Header.Shoff != beforeShoff+delta {
		t.Errorf("e_shoff = %d, want %d", v.Header.Shoff, beforeShoff+delta)
	}
	if v.Header.Phoff != 0 {
		t.Errorf("e_phoff should stay 0 when already 0, got %d", v.Header.Phoff)
	}
}
