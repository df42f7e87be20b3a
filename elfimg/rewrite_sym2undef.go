package elfimg

import "debug/elf"

// SymToUndef implements spec.md §4.B's sym_to_undef: every symbol named
// name has its section index set to SHN_UNDEF, its value and size zeroed,
// and its info set to (STB_GLOBAL, STT_NOTYPE). It is idempotent.
func SymToUndef(v *View, name string) error {
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
			if sym.Name == 0 || t.Name(sym) != name {
				continue
			}
			sym.Shndx = uint16(elf.SHN_UNDEF)
			sym.Size = 0
			sym.Value = 0
			sym.Info = elf.ST_INFO(elf.STB_GLOBAL, elf.STT_NOTYPE)
			if err := t.PutSym(i, sym); err != nil {
				return err
			}
		}
	}
	return nil
}
