package elfimg

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// SymToDynReconcile implements spec.md §4.B's sym_to_dyn_reconcile: it
// rewrites .dynsym entries to agree with .symtab, which is useful after a
// tool (e.g. objcopy) has only updated .symtab.
//
// For every dynsym with a non-empty name that isn't ambiguous (more than
// one .symtab entry shares the name): if a uniquely-named .symtab entry
// shares the name and its definedness or ABS-ness differs, the dynsym's
// section index and value are patched from it; else if only the value
// differs, the value is patched; a patched dynsym is then done with. For a
// dynsym that was not patched, its current value is looked up by address:
// if a uniquely-valued .symtab entry at that address has a different name,
// and that name exists verbatim in .dynstr, the dynsym is renamed to it
// and the SysV hash table (if present) is rebuilt. A GNU hash table
// instead of SysV yields ErrUnimplementedGNUHash; when both are present,
// only the SysV table is rebuilt and the GNU one is left as it was.
func SymToDynReconcile(v *View) error {
	var st *SymTab
	if idx, _, ok := v.FindSection(elf.SHT_SYMTAB, -1); ok {
		var err error
		st, err = v.symTab(idx)
		if err != nil {
			return err
		}
	}

	byName := map[string]elf.Sym64{}
	nameCount := map[string]int{}
	byAddr := map[uint64]elf.Sym64{}
	byAddrName := map[uint64]string{}
	addrCount := map[uint64]int{}
	if st != nil {
		for i := 1; i < st.NumSyms(); i++ {
			sym, err := st.Sym(i)
			if err != nil {
				return err
			}
			if sym.Name == 0 {
				continue
			}
			name := st.Name(sym)
			nameCount[name]++
			byName[name] = sym
			if nameCount[name] > 1 {
				v.Warnf("found a duplicate symbol of name %q", name)
			}
			addrCount[sym.Value]++
			if addrCount[sym.Value] > 1 {
				v.Warnf("found a duplicate symbol marking address 0x%x (%q as well as %q)", sym.Value, byAddrName[sym.Value], name)
			}
			byAddr[sym.Value] = sym
			byAddrName[sym.Value] = name
		}
	}

	dynIdx, _, hasDyn := v.FindSection(elf.SHT_DYNSYM, -1)
	if !hasDyn {
		return nil
	}
	dt, err := v.symTab(dynIdx)
	if err != nil {
		return err
	}

	mustRecompute := false
	for i := 1; i < dt.NumSyms(); i++ {
		dsym, err := dt.Sym(i)
		if err != nil {
			return err
		}
		if dsym.Name == 0 {
			continue
		}
		name := dt.Name(dsym)
		if nameCount[name] > 1 {
			continue
		}

		patched := false
		if sym, ok := byName[name]; ok {
			dynUnd := elf.SectionIndex(dsym.Shndx) == elf.SHN_UNDEF
			symUnd := elf.SectionIndex(sym.Shndx) == elf.SHN_UNDEF
			dynAbs := elf.SectionIndex(dsym.Shndx) == elf.SHN_ABS
			symAbs := elf.SectionIndex(sym.Shndx) == elf.SHN_ABS
			switch {
			case dynUnd != symUnd:
				v.Warnf("different definedness, so patching: %q", name)
				dsym.Shndx, dsym.Value = sym.Shndx, sym.Value
				patched = true
			case dynAbs != symAbs:
				v.Warnf("different absness, so patching: %q", name)
				dsym.Shndx, dsym.Value = sym.Shndx, sym.Value
				patched = true
			case sym.Value != dsym.Value:
				v.Warnf("different vaddr, so patching: %q", name)
				dsym.Value = sym.Value
				patched = true
			}
			if patched {
				if err := dt.PutSym(i, dsym); err != nil {
					return err
				}
				continue
			}
		}

		if addrCount[dsym.Value] > 1 {
			continue
		}
		foundName, ok := byAddrName[dsym.Value]
		if !ok || foundName == name {
			continue
		}
		// symtab has a unique and different name for this address:
		// rename the dynsym to it, if that name is spelled out
		// (exactly -- see the "Dynstr substring search" design note)
		// somewhere in .dynstr.
		off, found := dt.FindString(foundName)
		if !found {
			v.Warnf("can't rename %q to %q because the latter is not in .dynstr", name, foundName)
			continue
		}
		v.Warnf("renaming %q to %q", name, foundName)
		dsym.Name = off
		if err := dt.PutSym(i, dsym); err != nil {
			return err
		}
		mustRecompute = true
	}

	if !mustRecompute {
		return nil
	}
	if hashIdx, hashSh, ok := v.FindSection(elf.SHT_HASH, -1); ok {
		_ = hashIdx
		return rebuildSysVHash(v, hashSh, dt)
	}
	if _, _, hasGNU := v.FindSection(elf.SHT_GNU_HASH, -1); hasGNU {
		return ErrUnimplementedGNUHash
	}
	return nil
}

// rebuildSysVHash recomputes a SHT_HASH section's bucket/chain arrays in
// place, preserving its existing nbucket/nchain header words (nchain
// equals the number of dynsym entries).
func rebuildSysVHash(v *View, hashSh elf.Section64, dt *SymTab) error {
	data := v.bytes(int64(hashSh.Off), int64(hashSh.Size))
	if len(data) < 8 {
		return fmt.Errorf("elfimg: .hash section too small")
	}
	nbucket := binary.LittleEndian.Uint32(data[0:4])
	nchain := binary.LittleEndian.Uint32(data[4:8])
	need := 8 + int(nbucket)*4 + int(nchain)*4
	if need > len(data) || nbucket == 0 {
		return fmt.Errorf("elfimg: .hash section size inconsistent with its own nbucket/nchain")
	}

	for i := 8; i < need; i++ {
		data[i] = 0
	}
	buckets := data[8 : 8+int(nbucket)*4]
	chains := data[8+int(nbucket)*4 : need]

	nsyms := int(nchain)
	if dt.NumSyms() < nsyms {
		nsyms = dt.NumSyms()
	}
	for i := 1; i < nsyms; i++ {
		sym, err := dt.Sym(i)
		if err != nil {
			return err
		}
		if sym.Name == 0 {
			continue
		}
		h := elfHash(dt.Name(sym)) % nbucket
		prev := binary.LittleEndian.Uint32(buckets[h*4 : h*4+4])
		binary.LittleEndian.PutUint32(chains[i*4:i*4+4], prev)
		binary.LittleEndian.PutUint32(buckets[h*4:h*4+4], uint32(i))
	}
	return nil
}

// elfHash is the classic SysV ELF string hash (as used by bucket
// selection in SHT_HASH sections).
func elfHash(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = (h << 4) + uint32(name[i])
		if g := h & 0xf0000000; g != 0 {
			h ^= g >> 24
		}
		h &^= 0xf0000000
	}
	return h
}
