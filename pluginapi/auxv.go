package pluginapi

import (
	"bytes"
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"
)

// Linux auxiliary-vector tags this package cares about. See elf(5)/
// getauxval(3); AT_EXECFN is the kernel's own copy of argv[0]'s path,
// present even when argv has since been rewritten.
const (
	atNull   = 0
	atExecfn = 31
)

// readAuxv reads /proc/self/auxv as a flat array of (tag, value) uintptr
// pairs, terminated by AT_NULL. Go's runtime does not expose auxv (unlike
// libc's __libc_auxv), so this reads the kernel-maintained file directly
// via golang.org/x/sys/unix rather than os.ReadFile, matching the rest of
// this package's raw-syscall style for ABI-adjacent reads.
func readAuxv() (map[uint64]uint64, error) {
	fd, err := unix.Open("/proc/self/auxv", unix.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	var buf bytes.Buffer
	chunk := make([]byte, 4096)
	for {
		n, err := unix.Read(fd, chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil || n == 0 {
			break
		}
	}

	data := buf.Bytes()
	const wordSize = 8
	out := make(map[uint64]uint64)
	for off := 0; off+2*wordSize <= len(data); off += 2 * wordSize {
		tag := binary.LittleEndian.Uint64(data[off : off+wordSize])
		val := binary.LittleEndian.Uint64(data[off+wordSize : off+2*wordSize])
		if tag == atNull {
			break
		}
		out[tag] = val
	}
	return out, nil
}

// cstringAt reads a NUL-terminated string starting at the given address
// by way of /proc/self/mem. AT_EXECFN's value is itself a pointer into
// this process's own address space (the kernel placed the string on the
// initial stack), so there is no safe Go-level accessor for it besides
// reading back through procfs.
func cstringAt(addr uint64) (string, error) {
	f, err := os.Open("/proc/self/mem")
	if err != nil {
		return "", err
	}
	defer f.Close()

	const maxLen = 4096
	buf := make([]byte, maxLen)
	n, err := f.ReadAt(buf, int64(addr))
	if err != nil && n == 0 {
		return "", err
	}
	if i := bytes.IndexByte(buf[:n], 0); i >= 0 {
		return string(buf[:i]), nil
	}
	return string(buf[:n]), nil
}

// RecoverArgv0 reads AT_EXECFN out of /proc/self/auxv to recover the
// driver's own executable path, per spec.md §4.E. The full argv (needed
// for restart.RestartIf and xwrap's classification) is not read here:
// cmd/xwrap-ldplugin recovers it, argv[0] included, from
// /proc/self/cmdline. RecoverArgv0 exists for the case where the
// driver's executable path must be recovered independently of that argv.
func RecoverArgv0() (string, error) {
	aux, err := readAuxv()
	if err != nil {
		return "", err
	}
	addr, ok := aux[atExecfn]
	if !ok {
		return "", nil
	}
	return cstringAt(addr)
}
