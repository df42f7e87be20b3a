package elfimg

import "debug/elf"

// PIEToRel implements spec.md §4.B's pie_to_rel: converts a static PIE
// (ET_DYN) object into an ET_REL relocatable. For every defined,
// non-ABS, non-reserved symbol, its section's load address is subtracted
// from its value; every SHF_ALLOC section's sh_addr is zeroed; then
// e_type becomes ET_REL and the program-header fields are cleared.
func PIEToRel(v *View) error {
	if elf.Type(v.Header.Type) != elf.ET_DYN {
		return ErrNotStaticPIE
	}

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
			if elf.SectionIndex(sym.Shndx) == elf.SHN_UNDEF || sym.Shndx > uint16(elf.SHN_LORESERVE) {
				continue
			}
			sh, err := v.Section(int(sym.Shndx))
			if err != nil {
				return err
			}
			sym.Value -= sh.Addr
			if err := t.PutSym(i, sym); err != nil {
				return err
			}
		}
	}

	for i := 0; i < v.NumSections(); i++ {
		sh, err := v.Section(i)
		if err != nil {
			return err
		}
		if elf.SectionFlag(sh.Flags)&elf.SHF_ALLOC == 0 {
			continue
		}
		sh.Addr = 0
		if err := v.PutSection(i, sh); err != nil {
			return err
		}
	}

	v.Header.Type = uint16(elf.ET_REL)
	v.Header.Phoff = 0
	v.Header.Phentsize = 0
	v.Header.Phnum = 0
	return v.writeStruct(0, &v.Header)
}
