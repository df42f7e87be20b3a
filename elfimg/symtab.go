package elfimg

import "debug/elf"

// SymTab is a writable view of one ELF symbol table section (.symtab or
// .dynsym) together with its associated string table.
type SymTab struct {
	v          *View
	SectionIdx int
	Section    elf.Section64
	strOff     uint64
	strSize    uint64
}

// symTab returns the SymTab for section index shIdx, which must be of
// type SHT_SYMTAB or SHT_DYNSYM.
func (v *View) symTab(shIdx int) (*SymTab, error) {
	sh, err := v.Section(shIdx)
	if err != nil {
		return nil, err
	}
	strSh, err := v.Section(int(sh.Link))
	if err != nil {
		return nil, err
	}
	return &SymTab{v: v, SectionIdx: shIdx, Section: sh, strOff: strSh.Off, strSize: strSh.Size}, nil
}

// SymTabs returns every SHT_SYMTAB/SHT_DYNSYM symbol table in the file, in
// section order. [TIS ELF 1.2 Book III] allows at most one of each.
func (v *View) SymTabs() ([]*SymTab, error) {
	var out []*SymTab
	for i := 0; i < v.NumSections(); i++ {
		sh, err := v.Section(i)
		if err != nil {
			return nil, err
		}
		if elf.SectionType(sh.Type) == elf.SHT_SYMTAB || elf.SectionType(sh.Type) == elf.SHT_DYNSYM {
			st, err := v.symTab(i)
			if err != nil {
				return nil, err
			}
			out = append(out, st)
		}
	}
	return out, nil
}

// NumSyms returns the number of entries in t, including the reserved
// null symbol at index 0.
func (t *SymTab) NumSyms() int {
	if t.Section.Entsize == 0 {
		return int(t.Section.Size) / elf.Sym64Size
	}
	return int(t.Section.Size) / int(t.Section.Entsize)
}

// Sym reads the i'th symbol (0 is always the reserved null symbol).
func (t *SymTab) Sym(i int) (elf.Sym64, error) {
	var s elf.Sym64
	off := int64(t.Section.Off) + int64(i)*elf.Sym64Size
	err := t.v.readStruct(off, &s)
	return s, err
}

// PutSym writes back symbol i.
func (t *SymTab) PutSym(i int, s elf.Sym64) error {
	off := int64(t.Section.Off) + int64(i)*elf.Sym64Size
	return t.v.writeStruct(off, &s)
}

// Name resolves a symbol's name through t's string table.
func (t *SymTab) Name(s elf.Sym64) string {
	if s.Name == 0 {
		return ""
	}
	return t.v.cstring(int64(t.strOff) + int64(s.Name))
}

// FindString returns the string-table offset of an exact (NUL-delimited)
// match for name within t's string table, or false if none exists.
//
// This exact, string-by-string search is the corrected form of the
// substring search original_source's sym2dyn.c performs over .dynstr; see
// the "Dynstr substring search" design note.
func (t *SymTab) FindString(name string) (uint32, bool) {
	data := t.v.bytes(int64(t.strOff), int64(t.strSize))
	off := 0
	for off < len(data) {
		end := off
		for end < len(data) && data[end] != 0 {
			end++
		}
		if string(data[off:end]) == name {
			return uint32(off), true
		}
		off = end + 1
	}
	return 0, false
}
