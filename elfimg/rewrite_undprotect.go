package elfimg

import "debug/elf"

// UndProtect implements spec.md §4.B's und_protect: every UND symbol
// that is neither HIDDEN nor PROTECTED is given PROTECTED visibility.
func UndProtect(v *View) error {
	tabs, err := v.SymTabs()
	if err != nil {
		return err
	}
	for _, t := range tabs {
		if t.Section.Type != uint32(elf.SHT_SYMTAB) {
			continue
		}
		for i := 1; i < t.NumSyms(); i++ {
			sym, err := t.Sym(i)
			if err != nil {
				return err
			}
			if elf.SectionIndex(sym.Shndx) != elf.SHN_UNDEF {
				continue
			}
			vis := elf.ST_VISIBILITY(sym.Other)
			if vis == elf.STV_HIDDEN || vis == elf.STV_PROTECTED {
				continue
			}
			sym.Other = uint8(elf.STV_PROTECTED)
			if err := t.PutSym(i, sym); err != nil {
				return err
			}
		}
	}
	return nil
}
