// Package elftest builds minimal synthetic ELF64 little-endian objects
// in memory, so that elfimg (and its dependents, such as symtab) can
// unit test their parsing and rewriting without shipping prebuilt
// binary fixtures.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Section describes one non-null, non-symtab section to synthesize.
// Link and Info are passed straight through (e.g. for relocation
// sections, which need sh_link pointing at a symbol table and sh_info
// naming the section they apply to -- see Object.SymtabIdx/DynsymIdx for
// the indices those should reference).
type Section struct {
	Name  string
	Type  elf.SectionType
	Flags elf.SectionFlag
	Addr  uint64
	Link  uint32
	Info  uint32
	Data  []byte // Size is len(Data); pass nil for an SHT_NOBITS-style empty section
}

// Sym describes one symbol table entry (index 0, the null symbol, is
// implicit and should not be included).
type Sym struct {
	Name  string
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

const sym64Size = 24

// Object is a serialized fixture plus the section indices Build assigned
// to the sections it adds automatically, so callers can cross-reference
// them (e.g. a relocation Section's Link/Info).
type Object struct {
	Data       []byte
	SymtabIdx  int
	DynsymIdx  int // -1 if dynsyms was empty
	StrtabIdx  int
	DynstrIdx  int // -1 if dynsyms was empty
	ShstrtabIdx int
}

func writeStrtab(names []string) (bytes.Buffer, []uint32) {
	var tab bytes.Buffer
	tab.WriteByte(0)
	offs := make([]uint32, len(names))
	for i, n := range names {
		if n == "" {
			continue // st_name == 0, pointing at the mandatory leading NUL
		}
		offs[i] = uint32(tab.Len())
		tab.WriteString(n)
		tab.WriteByte(0)
	}
	return tab, offs
}

func symNames(syms []Sym) []string {
	names := make([]string, len(syms))
	for i, s := range syms {
		names[i] = s.Name
	}
	return names
}

func writeSyms(buf *bytes.Buffer, syms []Sym, nameOff []uint32) {
	buf.Write(make([]byte, sym64Size)) // null symbol
	for i, s := range syms {
		sym := elf.Sym64{
			Name:  nameOff[i],
			Info:  s.Info,
			Other: s.Other,
			Shndx: s.Shndx,
			Value: s.Value,
			Size:  s.Size,
		}
		binary.Write(buf, binary.LittleEndian, &sym)
	}
}

// Build serializes an ET_REL object containing sections, a
// .symtab/.strtab pair holding syms, and -- if dynsyms is non-empty -- a
// .dynsym/.dynstr pair holding dynsyms.
//
// Section indices, in order: 0 is the null section, 1..len(sections) are
// the caller's sections, then .symtab, .strtab, [.dynsym, .dynstr],
// .shstrtab. Use the returned Object's *Idx fields rather than hardcoding
// this.
func Build(sections []Section, syms []Sym, dynsyms []Sym) Object {
	const ehsize = 64
	const shentsize = 64

	dataOff := make([]uint64, len(sections))
	off := uint64(ehsize)
	for i, s := range sections {
		dataOff[i] = off
		off += uint64(len(s.Data))
	}

	symtabOff := off
	symtabSize := uint64((1 + len(syms)) * sym64Size)
	off += symtabSize
	strtabBuf, strOffs := writeStrtab(symNames(syms))
	strtabOff := off
	off += uint64(strtabBuf.Len())

	haveDyn := len(dynsyms) > 0
	var dynsymOff, dynstrOff uint64
	var dynstrBuf bytes.Buffer
	var dynOffs []uint32
	if haveDyn {
		dynsymOff = off
		off += uint64((1 + len(dynsyms)) * sym64Size)
		dynstrBuf, dynOffs = writeStrtab(symNames(dynsyms))
		dynstrOff = off
		off += uint64(dynstrBuf.Len())
	}

	var shstrtab bytes.Buffer
	shstrtab.WriteByte(0)
	shNameOff := make([]uint32, len(sections))
	for i, s := range sections {
		shNameOff[i] = uint32(shstrtab.Len())
		shstrtab.WriteString(s.Name)
		shstrtab.WriteByte(0)
	}
	writeName := func(name string) uint32 {
		o := uint32(shstrtab.Len())
		shstrtab.WriteString(name)
		shstrtab.WriteByte(0)
		return o
	}
	symtabNameOff := writeName(".symtab")
	strtabNameOff := writeName(".strtab")
	var dynsymNameOff, dynstrNameOff uint32
	if haveDyn {
		dynsymNameOff = writeName(".dynsym")
		dynstrNameOff = writeName(".dynstr")
	}
	shstrtabNameOff := writeName(".shstrtab")
	shstrtabOff := off
	off += uint64(shstrtab.Len())

	shoff := off
	symtabIdx := 1 + len(sections)
	strtabIdx := symtabIdx + 1
	nextIdx := strtabIdx + 1
	dynsymIdx, dynstrIdx := -1, -1
	if haveDyn {
		dynsymIdx = nextIdx
		dynstrIdx = nextIdx + 1
		nextIdx += 2
	}
	shstrtabIdx := nextIdx
	shnum := shstrtabIdx + 1

	hdr := elf.Header64{
		Ident:     [16]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)},
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shoff,
		Ehsize:    ehsize,
		Shentsize: shentsize,
		Shnum:     uint16(shnum),
		Shstrndx:  uint16(shstrtabIdx),
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, &hdr)
	for _, s := range sections {
		buf.Write(s.Data)
	}
	writeSyms(&buf, syms, strOffs)
	buf.Write(strtabBuf.Bytes())
	if haveDyn {
		writeSyms(&buf, dynsyms, dynOffs)
		buf.Write(dynstrBuf.Bytes())
	}
	buf.Write(shstrtab.Bytes())

	writeSh := func(sh elf.Section64) { binary.Write(&buf, binary.LittleEndian, &sh) }
	writeSh(elf.Section64{}) // null section
	for i, s := range sections {
		writeSh(elf.Section64{
			Name:  shNameOff[i],
			Type:  uint32(s.Type),
			Flags: uint64(s.Flags),
			Addr:  s.Addr,
			Off:   dataOff[i],
			Size:  uint64(len(s.Data)),
			Link:  s.Link,
			Info:  s.Info,
		})
	}
	writeSh(elf.Section64{
		Name: symtabNameOff, Type: uint32(elf.SHT_SYMTAB),
		Off: symtabOff, Size: symtabSize,
		Link: uint32(strtabIdx), Entsize: sym64Size,
	})
	writeSh(elf.Section64{
		Name: strtabNameOff, Type: uint32(elf.SHT_STRTAB),
		Off: strtabOff, Size: uint64(strtabBuf.Len()),
	})
	if haveDyn {
		writeSh(elf.Section64{
			Name: dynsymNameOff, Type: uint32(elf.SHT_DYNSYM),
			Off: dynsymOff, Size: uint64((1 + len(dynsyms)) * sym64Size),
			Link: uint32(dynstrIdx), Entsize: sym64Size,
		})
		writeSh(elf.Section64{
			Name: dynstrNameOff, Type: uint32(elf.SHT_STRTAB),
			Off: dynstrOff, Size: uint64(dynstrBuf.Len()),
		})
	}
	writeSh(elf.Section64{
		Name: shstrtabNameOff, Type: uint32(elf.SHT_STRTAB),
		Off: shstrtabOff, Size: uint64(shstrtab.Len()),
	})

	return Object{
		Data: buf.Bytes(), SymtabIdx: symtabIdx, DynsymIdx: dynsymIdx,
		StrtabIdx: strtabIdx, DynstrIdx: dynstrIdx, ShstrtabIdx: shstrtabIdx,
	}
}
