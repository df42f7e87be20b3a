package elfimg

import (
	"fmt"
	"strconv"
	"strings"
)

// archiveMagic is the thin-archive (ar) global header, per spec.md §3.
const archiveMagic = "!<arch>\n"

// memberMagic terminates every 60-byte archive member header.
var memberMagic = [2]byte{0x60, 0x0a}

const memberHeaderSize = 60

// Member describes one entry of a thin archive: its raw name field, the
// byte offset of its payload within the archive, and the payload's
// declared size.
type Member struct {
	Name        string
	PayloadOff  int64
	PayloadSize int64
}

// Archive iterates the members of a thin-archive Fmap (magic "!<arch>\n",
// 60-byte member headers), per spec.md §3's exact layout: name[16],
// timestamp[12], uid[6], gid[6], mode[8], size[10], magic{0x60,0x0a}.
type Archive struct {
	f *Fmap
}

// NewArchive wraps f as an Archive. The caller must have already checked
// f.IsArchive().
func NewArchive(f *Fmap) *Archive {
	return &Archive{f: f}
}

// Members returns every member of the archive, in file order. Iteration
// stops (without error) at the first header whose magic bytes don't
// match, matching the teacher source's tolerant behavior for malformed
// trailing data.
func (a *Archive) Members() []Member {
	var out []Member
	off := int64(len(archiveMagic))
	for off+memberHeaderSize <= a.f.Len() {
		hdr := a.f.bytes(off, memberHeaderSize)
		if hdr[58] != memberMagic[0] || hdr[59] != memberMagic[1] {
			break
		}
		name := strings.TrimRight(string(hdr[0:16]), " ")
		sizeField := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.ParseInt(sizeField, 10, 64)
		if err != nil {
			break
		}
		payloadOff := off + memberHeaderSize
		out = append(out, Member{Name: name, PayloadOff: payloadOff, PayloadSize: size})

		// Members are padded to an even byte boundary.
		next := payloadOff + size
		if next%2 != 0 {
			next++
		}
		off = next
	}
	return out
}

// Payload returns a borrowed Fmap over member m's payload bytes, typically
// itself an ELF view.
func (a *Archive) Payload(m Member) *Fmap {
	return a.f.sub(m.PayloadOff)
}

func (m Member) String() string {
	return fmt.Sprintf("%s@%d", m.Name, m.PayloadOff)
}
