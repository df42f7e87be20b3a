package elfimg

import (
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stephenrkell/xwrap-go/elfimg/internal/elftest"
)

func hashSectionData(nbucket, nchain uint32) []byte {
	buf := make([]byte, 8+int(nbucket)*4+int(nchain)*4)
	binary.LittleEndian.PutUint32(buf[0:4], nbucket)
	binary.LittleEndian.PutUint32(buf[4:8], nchain)
	return buf
}

func TestSymToDynReconcile(t *testing.T) {
	funcInfo := elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)
	objInfo := elf.ST_INFO(elf.STB_GLOBAL, elf.STT_NOTYPE)

	const nbucket, nchain = 2, 3 // null + 2 dynsyms
	sections := []elftest.Section{
		{Name: ".text", Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: make([]byte, 0x300)},
		{Name: ".hash", Type: elf.SHT_HASH, Flags: elf.SHF_ALLOC, Data: hashSectionData(nbucket, nchain)},
	}
	syms := []elftest.Sym{
		{Name: "real_name", Info: funcInfo, Shndx: 1, Value: 0x200, Size: 8},
	}
	dynsyms := []elftest.Sym{
		{Name: "placeholder", Info: funcInfo, Shndx: 1, Value: 0x200},
		{Name: "real_name", Info: objInfo, Shndx: uint16(elf.SHN_UNDEF)},
	}
	obj := elftest.Build(sections, syms, dynsyms)
	v := openFixture(t, obj)

	if err := SymToDynReconcile(v); err != nil {
		t.Fatalf("SymToDynReconcile: %v", err)
	}

	tabs, err := v.SymTabs()
	if err != nil {
		t.Fatalf("SymTabs: %v", err)
	}
	var dt *SymTab
	for _, tab := range tabs {
		if tab.SectionIdx == obj.DynsymIdx {
			dt = tab
		}
	}
	if dt == nil {
		t.Fatalf("no .dynsym in fixture")
	}

	renamed, err := dt.Sym(1)
	if err != nil {
		t.Fatalf("Sym(1): %v", err)
	}
	if dt.Name(renamed) != "real_name" {
		t.Errorf("dynsym 1 name = %q, want %q", dt.Name(renamed), "real_name")
	}

	patched, err := dt.Sym(2)
	if err != nil {
		t.Fatalf("Sym(2): %v", err)
	}
	if elf.SectionIndex(patched.Shndx) != 1 || patched.Value != 0x200 {
		t.Errorf("dynsym 2 not patched to match .symtab: %+v", patched)
	}

	// Both dynsyms are now named "real_name", so they collide in the
	// rebuilt SysV hash chain.
	_, hashSh, ok := v.FindSection(elf.SHT_HASH, -1)
	if !ok {
		t.Fatalf("no .hash section")
	}
	data := v.SectionData(hashSh)
	gotNbucket := binary.LittleEndian.Uint32(data[0:4])
	gotNchain := binary.LittleEndian.Uint32(data[4:8])
	if gotNbucket != nbucket || gotNchain != nchain {
		t.Fatalf("hash header changed: (%d,%d), want (%d,%d)", gotNbucket, gotNchain, nbucket, nchain)
	}
	h := elfHash("real_name") % nbucket
	buckets := data[8 : 8+nbucket*4]
	chains := data[8+nbucket*4:]
	if got := binary.LittleEndian.Uint32(buckets[h*4 : h*4+4]); got != 2 {
		t.Errorf("bucket[%d] = %d, want 2 (last-inserted index)", h, got)
	}
	if got := binary.LittleEndian.Uint32(chains[2*4 : 2*4+4]); got != 1 {
		t.Errorf("chain[2] = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(chains[1*4 : 1*4+4]); got != 0 {
		t.Errorf("chain[1] = %d, want 0 (terminator)", got)
	}
}

func TestSymToDynReconcileGNUHashUnimplemented(t *testing.T) {
	funcInfo := elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)
	objInfo := elf.ST_INFO(elf.STB_GLOBAL, elf.STT_NOTYPE)
	sections := []elftest.Section{
		{Name: ".text", Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: make([]byte, 0x300)},
		{Name: ".gnu.hash", Type: elf.SHT_GNU_HASH, Flags: elf.SHF_ALLOC, Data: make([]byte, 16)},
	}
	syms := []elftest.Sym{
		{Name: "real_name", Info: funcInfo, Shndx: 1, Value: 0x200, Size: 8},
	}
	dynsyms := []elftest.Sym{
		{Name: "placeholder", Info: funcInfo, Shndx: 1, Value: 0x200},
		{Name: "real_name", Info: objInfo, Shndx: uint16(elf.SHN_UNDEF)},
	}
	obj := elftest.Build(sections, syms, dynsyms)
	v := openFixture(t, obj)

	if err := SymToDynReconcile(v); err != ErrUnimplementedGNUHash {
		t.Errorf("SymToDynReconcile = %v, want ErrUnimplementedGNUHash", err)
	}
}
