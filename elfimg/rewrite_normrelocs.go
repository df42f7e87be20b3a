package elfimg

import (
	"debug/elf"
	"strings"
)

// isDebugSection implements the heuristic design note "Debugging-section
// detection": a section is a debugging section iff its name begins with
// ".debug_" or ".eh_frame".
func isDebugSection(name string) bool {
	return strings.HasPrefix(name, ".debug_") || strings.HasPrefix(name, ".eh_frame")
}

// symtabAssoc records, per static symbol table, the section-symbol index
// for each section that has one, and the zero-offset named symbol (if
// any) associated with that section. It is the Go counterpart of
// normrelocs.c's sorted section_sym_list plus its "associated" links,
// replacing the qsort+bsearch-by-pointer dance with a plain map keyed by
// section index -- the map is safe here for the same reason the C
// comment gives for why the section-symbol list may be sorted: no entry
// has an incoming pointer/index into it from elsewhere in the structure.
type symtabAssoc struct {
	sectionSymBySh map[uint16]int // section index -> index of its STT_SECTION symbol
	assocBySh      map[uint16]int // section index -> index of its associated zero-offset symbol
}

func buildSymtabAssoc(v *View, t *SymTab, onlySym string) (*symtabAssoc, error) {
	a := &symtabAssoc{sectionSymBySh: map[uint16]int{}, assocBySh: map[uint16]int{}}

	for i := 1; i < t.NumSyms(); i++ {
		sym, err := t.Sym(i)
		if err != nil {
			return nil, err
		}
		if elf.ST_TYPE(sym.Info) == elf.STT_SECTION {
			a.sectionSymBySh[sym.Shndx] = i
		}
	}

	for i := 1; i < t.NumSyms(); i++ {
		sym, err := t.Sym(i)
		if err != nil {
			return nil, err
		}
		if sym.Name == 0 || elf.ST_TYPE(sym.Info) == elf.STT_SECTION {
			continue
		}
		if onlySym != "" && t.Name(sym) != onlySym {
			continue
		}
		if elf.SectionIndex(sym.Shndx) == elf.SHN_UNDEF || sym.Shndx > uint16(elf.SHN_LORESERVE) || sym.Value != 0 {
			continue
		}
		if _, ok := a.sectionSymBySh[sym.Shndx]; !ok {
			continue
		}
		if _, already := a.assocBySh[sym.Shndx]; already {
			v.Warnf("fishy: multiple zero-offset replacements for section symbol of section %d", sym.Shndx)
			continue
		}
		a.assocBySh[sym.Shndx] = i
	}
	return a, nil
}

// NormalizeRelocs implements spec.md §4.B's normalize_relocs. For every
// relocation in a non-debugging section that references a section
// symbol whose section has an associated zero-offset named symbol (and
// which isn't a self-reference within the same section), the relocation
// is rewritten to reference that named symbol instead. For every
// relocation in a .debug_*/.eh_frame section that references a
// zero-offset named ordinary symbol, the relocation is rewritten to
// reference the section symbol of the section that symbol lives in.
//
// If onlySym is non-empty, only associations involving that symbol name
// are considered. NormalizeRelocs composed with itself is a fixed point.
func NormalizeRelocs(v *View, onlySym string) error {
	tabs, err := v.SymTabs()
	if err != nil {
		return err
	}
	assocs := map[int]*symtabAssoc{} // keyed by SymTab.SectionIdx
	for _, t := range tabs {
		if t.Section.Type != uint32(elf.SHT_SYMTAB) {
			continue
		}
		a, err := buildSymtabAssoc(v, t, onlySym)
		if err != nil {
			return err
		}
		assocs[t.SectionIdx] = a
	}

	relSections, err := v.RelSections()
	if err != nil {
		return err
	}
	for _, r := range relSections {
		a, ok := assocs[r.SymTab.SectionIdx]
		if !ok {
			continue
		}
		targetSh, err := v.Section(r.TargetShIdx)
		if err != nil {
			return err
		}
		debug := isDebugSection(v.SectionName(targetSh))

		for i := 0; i < r.NumEntries(); i++ {
			e, err := r.Entry(i)
			if err != nil {
				return err
			}
			sym, err := r.SymTab.Sym(int(e.Sym))
			if err != nil {
				return err
			}

			if debug {
				switch elf.ST_TYPE(sym.Info) {
				case elf.STT_NOTYPE, elf.STT_OBJECT, elf.STT_FUNC, elf.STT_COMMON:
				default:
					continue
				}
				if sym.Name == 0 || sym.Value != 0 {
					continue
				}
				v.Warnf("found a from-debug reloc using ordinary symbol %q", r.SymTab.Name(sym))
				sectionSym, ok := a.sectionSymBySh[sym.Shndx]
				if !ok {
					v.Warnf("did not rewrite a from-debug reloc using ordinary symbol %q", r.SymTab.Name(sym))
					continue
				}
				if err := r.SetSym(i, uint32(sectionSym)); err != nil {
					return err
				}
				continue
			}

			if elf.ST_TYPE(sym.Info) != elf.STT_SECTION {
				continue
			}
			if int(sym.Shndx) == r.TargetShIdx {
				// Intra-section self-reference (e.g. computed-goto
				// labels): never rewritten.
				continue
			}
			assoc, ok := a.assocBySh[sym.Shndx]
			if !ok {
				v.Warnf("not rewriting a reloc (section %d entry %d) to point to a zero-offset sym: none found", r.ShIdx, i)
				continue
			}
			if err := r.SetSym(i, uint32(assoc)); err != nil {
				return err
			}
		}
	}
	return nil
}
