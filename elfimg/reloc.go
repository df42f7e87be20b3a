package elfimg

import (
	"debug/elf"
	"fmt"
)

// RelSection is a writable view of one SHT_REL or SHT_RELA section: its
// entries (decomposed into symbol index and type, per spec.md §3's
// "Relocation record"), the symbol table it indexes into, and the section
// it applies to.
type RelSection struct {
	v       *View
	ShIdx   int
	Section elf.Section64
	IsRela  bool
	SymTab  *SymTab
	// TargetShIdx is the section these relocations apply to (sh_info).
	TargetShIdx int
}

// RelEntry is one decomposed relocation record.
type RelEntry struct {
	Offset uint64
	Sym    uint32
	Type   uint32
	Addend int64 // only meaningful if the owning RelSection.IsRela
}

// RelSections returns every SHT_REL/SHT_RELA section in the file.
func (v *View) RelSections() ([]*RelSection, error) {
	var out []*RelSection
	for i := 0; i < v.NumSections(); i++ {
		sh, err := v.Section(i)
		if err != nil {
			return nil, err
		}
		t := elf.SectionType(sh.Type)
		if t != elf.SHT_REL && t != elf.SHT_RELA {
			continue
		}
		st, err := v.symTab(int(sh.Link))
		if err != nil {
			return nil, fmt.Errorf("elfimg: relocation section %d: %w", i, err)
		}
		out = append(out, &RelSection{
			v: v, ShIdx: i, Section: sh, IsRela: t == elf.SHT_RELA,
			SymTab: st, TargetShIdx: int(sh.Info),
		})
	}
	return out, nil
}

func (r *RelSection) entSize() int64 {
	if r.IsRela {
		return 24
	}
	return 16
}

// NumEntries returns the number of relocation records in r.
func (r *RelSection) NumEntries() int {
	return int(r.Section.Size) / int(r.entSize())
}

// Entry reads the i'th relocation record.
func (r *RelSection) Entry(i int) (RelEntry, error) {
	off := int64(r.Section.Off) + int64(i)*r.entSize()
	if r.IsRela {
		var rel elf.Rela64
		if err := r.v.readStruct(off, &rel); err != nil {
			return RelEntry{}, err
		}
		return RelEntry{Offset: rel.Off, Sym: elf.R_SYM64(rel.Info), Type: elf.R_TYPE64(rel.Info), Addend: rel.Addend}, nil
	}
	var rel elf.Rel64
	if err := r.v.readStruct(off, &rel); err != nil {
		return RelEntry{}, err
	}
	return RelEntry{Offset: rel.Off, Sym: elf.R_SYM64(rel.Info), Type: elf.R_TYPE64(rel.Info)}, nil
}

// SetSym rewrites the symbol-index field of relocation i, leaving the
// offset, type, and (for Rela) addend untouched.
func (r *RelSection) SetSym(i int, sym uint32) error {
	e, err := r.Entry(i)
	if err != nil {
		return err
	}
	off := int64(r.Section.Off) + int64(i)*r.entSize()
	info := elf.R_INFO(sym, e.Type)
	if r.IsRela {
		var rel elf.Rela64
		if err := r.v.readStruct(off, &rel); err != nil {
			return err
		}
		rel.Info = info
		return r.v.writeStruct(off, &rel)
	}
	var rel elf.Rel64
	if err := r.v.readStruct(off, &rel); err != nil {
		return err
	}
	rel.Info = info
	return r.v.writeStruct(off, &rel)
}
