package elfimg

import "debug/elf"

// AbsToSection implements spec.md §4.B's abs_to_section: for every symbol
// whose section index is SHN_ABS and whose value is 0, if its name equals
// the name of some section in the object, its section index is reassigned
// to that section's index. The value is left at 0.
//
// If onlySym is non-empty, only a symbol of that name is considered.
//
// Post-condition: no ABS symbol named after an existing section has
// value 0 and section index ABS.
func AbsToSection(v *View, onlySym string) error {
	sectionIdxByName := make(map[string]uint16, v.NumSections())
	for i := 0; i < v.NumSections(); i++ {
		sh, err := v.Section(i)
		if err != nil {
			return err
		}
		if sh.Name != 0 {
			sectionIdxByName[v.SectionName(sh)] = uint16(i)
		}
	}

	tabs, err := v.SymTabs()
	if err != nil {
		return err
	}
	for _, t := range tabs {
		for i := 1; i < t.NumSyms(); i++ {
			sym, err := t.Sym(i)
			if err != nil {
				return err
			}
			if elf.SectionIndex(sym.Shndx) != elf.SHN_ABS || sym.Value != 0 {
				continue
			}
			name := t.Name(sym)
			if onlySym != "" && name != onlySym {
				continue
			}
			if shIdx, ok := sectionIdxByName[name]; ok {
				sym.Shndx = shIdx
				if err := t.PutSym(i, sym); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
