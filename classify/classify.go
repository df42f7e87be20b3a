// Package classify implements spec.md §4.D's input classification: given
// a list of input-file paths, open and memory-map each one, walk into
// archive members where present, and invoke a caller-supplied predicate
// at every (file, payload-offset) location.
package classify

import (
	"debug/elf"
	"fmt"
	"os"

	"github.com/stephenrkell/xwrap-go/elfimg"
	"github.com/stephenrkell/xwrap-go/symtab"
)

// Key identifies one classified input: a path, plus the byte offset of
// the relevant payload within it (0 for a plain file; an archive
// member's payload offset otherwise). It is comparable, so it can be
// used directly as a map key -- no bespoke pair type needed.
type Key struct {
	Path   string
	Offset int64
}

// Interest is the pluggable predicate Classify invokes once per
// classified location. member is "" for a plain (non-archive) file, or
// the archive member's name otherwise.
type Interest[T any] func(f *elfimg.Fmap, offset int64, member string) T

// Classify opens every path in files, walking into thin-archive members,
// and returns the result of interest at every (path, offset) location.
// Tokens that aren't a path at all -- an unresolved "-lname" that
// cmdline.ParseArgv couldn't map to a library file, say -- or that don't
// open as a file the OS recognizes are skipped rather than failing the
// whole classification: the driver itself is the authority on whether
// such a token is actually an error, and will say so on its own when it
// tries to resolve it.
func Classify[T any](files []string, interest Interest[T]) (map[Key]T, error) {
	out := make(map[Key]T)
	for _, path := range files {
		if err := classifyOne(path, interest, out); err != nil {
			return nil, fmt.Errorf("classify: %s: %w", path, err)
		}
	}
	return out, nil
}

func classifyOne[T any](path string, interest Interest[T], out map[Key]T) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	fm, err := elfimg.Open(f, 0)
	if err != nil {
		return nil
	}
	defer fm.Close()

	if fm.IsArchive() {
		ar := elfimg.NewArchive(fm)
		for _, m := range ar.Members() {
			payload := ar.Payload(m)
			out[Key{path, m.PayloadOff}] = interest(payload, m.PayloadOff, m.Name)
		}
		return nil
	}

	out[Key{path, 0}] = interest(fm, 0, "")
	return nil
}

// EnumerateTargetSymbols implements spec.md §4.D's xwrap-specific
// predicate: the set of names, among targets, defined (not UND, not ABS)
// as an OBJECT or FUNC symbol somewhere in f's .symtab.
//
// Lookup goes through a symtab.Table: each target name is one map lookup
// rather than a scan of every symbol. Building the Table still reads (and
// sorts into an address index) every symbol of the table once per call.
func EnumerateTargetSymbols(f *elfimg.Fmap, targets map[string]bool) (map[string]bool, error) {
	found := make(map[string]bool)
	if !f.IsELF() {
		return found, nil
	}
	v, err := elfimg.NewView(f)
	if err != nil {
		return nil, err
	}
	tabs, err := v.SymTabs()
	if err != nil {
		return nil, err
	}
	for _, t := range tabs {
		if t.Section.Type != uint32(elf.SHT_SYMTAB) {
			continue
		}
		table, err := symtab.NewTable(v, t)
		if err != nil {
			return nil, err
		}
		for name := range targets {
			if found[name] {
				continue
			}
			id := table.Name(name)
			if id == symtab.NoSym {
				continue
			}
			sym := table.Sym(id)
			switch elf.ST_TYPE(sym.Info) {
			case elf.STT_OBJECT, elf.STT_FUNC:
			default:
				continue
			}
			if elf.SectionIndex(sym.Shndx) == elf.SHN_UNDEF || elf.SectionIndex(sym.Shndx) == elf.SHN_ABS {
				continue
			}
			found[name] = true
		}
	}
	return found, nil
}
