package elfimg

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

func defaultWarnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "elfimg: warning: "+format+"\n", args...)
}

// ErrNotELF is returned when constructing a View over a mapping that does
// not begin with the ELF magic.
var ErrNotELF = errors.New("elfimg: not an ELF file")

// ErrFormatUnsupported is returned when a rewrite primitive's
// precondition on ELF class/encoding/type is not met. All of this
// package's primitives are written for the host's 64-bit little-endian
// class and encoding; see spec's "Non-goals" on cross-architecture
// byte-swapping.
var ErrFormatUnsupported = errors.New("elfimg: unsupported ELF class, encoding, or type")

// View is a typed façade over an Fmap: a parsed ELF64 little-endian
// header plus section-header access. It is the writable analogue of
// elfmap in elftin's elfmap.hh -- "upgrading" an Fmap to a View is just
// calling NewView; there is no ownership flag to track since Fmap.Close
// already distinguishes owned from borrowed mappings.
type View struct {
	*Fmap

	Header elf.Header64

	// File offset and size of the section-header string table, cached by
	// NewView for SectionName.
	shstrtabOff, shstrtabSize uint64

	// Warnf receives heuristic-uncertainty warnings ("found a duplicate
	// symbol", "fishy: multiple zero-offset replacements", ...) that
	// per spec.md §7 never halt a rewrite. Defaults to writing to
	// os.Stderr; set to silence or redirect.
	Warnf func(format string, args ...any)
}

// NewView parses f's ELF header and returns a View over it. It fails with
// ErrNotELF if f isn't an ELF file and with ErrFormatUnsupported if the
// file isn't a 64-bit little-endian object.
func NewView(f *Fmap) (*View, error) {
	if !f.IsELF() {
		return nil, ErrNotELF
	}
	ident := f.bytes(0, 16)
	if ident[elf.EI_CLASS] != byte(elf.ELFCLASS64) || ident[elf.EI_DATA] != byte(elf.ELFDATA2LSB) {
		return nil, ErrFormatUnsupported
	}

	v := &View{Fmap: f, Warnf: defaultWarnf}
	if err := v.readStruct(0, &v.Header); err != nil {
		return nil, err
	}

	if v.Header.Shoff != 0 && v.Header.Shstrndx != 0 {
		var shstr elf.Section64
		if err := v.readStruct(int64(v.Header.Shoff)+int64(v.Header.Shstrndx)*64, &shstr); err == nil {
			v.shstrtabOff, v.shstrtabSize = shstr.Off, shstr.Size
		}
	}
	return v, nil
}

func (v *View) readStruct(off int64, out any) error {
	n := int64(binary.Size(out))
	return binary.Read(bytes.NewReader(v.bytes(off, n)), binary.LittleEndian, out)
}

func (v *View) writeStruct(off int64, in any) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, in); err != nil {
		return err
	}
	copy(v.bytes(off, int64(buf.Len())), buf.Bytes())
	return nil
}

// NumSections returns the number of entries in the section header table.
func (v *View) NumSections() int {
	return int(v.Header.Shnum)
}

// Section reads the i'th section header (0-based, matching ELF section
// indices).
func (v *View) Section(i int) (elf.Section64, error) {
	var sh elf.Section64
	if i < 0 || i >= v.NumSections() {
		return sh, fmt.Errorf("elfimg: section index %d out of range [0,%d)", i, v.NumSections())
	}
	off := int64(v.Header.Shoff) + int64(i)*int64(v.Header.Shentsize)
	err := v.readStruct(off, &sh)
	return sh, err
}

// PutSection writes back a (possibly modified) section header at index i.
func (v *View) PutSection(i int, sh elf.Section64) error {
	off := int64(v.Header.Shoff) + int64(i)*int64(v.Header.Shentsize)
	return v.writeStruct(off, &sh)
}

// SectionName returns the name of section header sh, resolved through the
// section-header string table.
func (v *View) SectionName(sh elf.Section64) string {
	return v.cstring(int64(v.shstrtabOff) + int64(sh.Name))
}

// SectionData returns the raw bytes backing section sh.
func (v *View) SectionData(sh elf.Section64) []byte {
	if sh.Type == uint32(elf.SHT_NOBITS) || sh.Size == 0 {
		return nil
	}
	return v.bytes(int64(sh.Off), int64(sh.Size))
}

func (v *View) cstring(off int64) string {
	b := v.bytes(off, v.Len()-off)
	n := bytes.IndexByte(b, 0)
	if n < 0 {
		return string(b)
	}
	return string(b[:n])
}

// FindSection returns the index of the first section header of the given
// type strictly after index "after"; pass after = -1 to search from the
// beginning. It mirrors elfmap::find<sht>.
func (v *View) FindSection(shType elf.SectionType, after int) (int, elf.Section64, bool) {
	for i := after + 1; i < v.NumSections(); i++ {
		sh, err := v.Section(i)
		if err != nil {
			break
		}
		if elf.SectionType(sh.Type) == shType {
			return i, sh, true
		}
	}
	return -1, elf.Section64{}, false
}

// Prog reads the i'th program header (0-based).
func (v *View) Prog(i int) (elf.Prog64, error) {
	var ph elf.Prog64
	if i < 0 || i >= int(v.Header.Phnum) {
		return ph, fmt.Errorf("elfimg: program header index %d out of range [0,%d)", i, v.Header.Phnum)
	}
	off := int64(v.Header.Phoff) + int64(i)*int64(v.Header.Phentsize)
	err := v.readStruct(off, &ph)
	return ph, err
}

// PutProg writes back a (possibly modified) program header at index i.
func (v *View) PutProg(i int, ph elf.Prog64) error {
	off := int64(v.Header.Phoff) + int64(i)*int64(v.Header.Phentsize)
	return v.writeStruct(off, &ph)
}

// FileSize returns the number of bytes this ELF object actually occupies,
// taken as the maximum extent of the header, the program and section
// header tables, and every section's payload. Unlike Fmap.Len (which
// reflects the page-rounded mmap size, and for an archive member's
// borrowed Fmap runs to the end of the whole archive) this is the exact
// byte count a caller should copy to extract just this object.
func (v *View) FileSize() int64 {
	max := int64(binary.Size(&v.Header))
	if end := int64(v.Header.Shoff) + int64(v.Header.Shnum)*int64(v.Header.Shentsize); end > max {
		max = end
	}
	if end := int64(v.Header.Phoff) + int64(v.Header.Phnum)*int64(v.Header.Phentsize); end > max {
		max = end
	}
	for i := 0; i < v.NumSections(); i++ {
		sh, err := v.Section(i)
		if err != nil {
			break
		}
		if sh.Type == uint32(elf.SHT_NOBITS) {
			continue
		}
		if end := int64(sh.Off) + int64(sh.Size); end > max {
			max = end
		}
	}
	return max
}

// FindSectionByName returns the index of the section named name, if any.
func (v *View) FindSectionByName(name string) (int, elf.Section64, bool) {
	for i := 0; i < v.NumSections(); i++ {
		sh, err := v.Section(i)
		if err != nil {
			break
		}
		if v.SectionName(sh) == name {
			return i, sh, true
		}
	}
	return -1, elf.Section64{}, false
}
