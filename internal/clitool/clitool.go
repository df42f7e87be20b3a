// Package clitool holds the open/report boilerplate shared by the
// standalone rewrite-tool CLIs in cmd/ -- each tool is a thin wrapper
// around one elfimg rewrite primitive, and they all open their target the
// same way and report failures with the same exit-code convention (spec.md
// §7): 1 for usage errors, 2-4 for I/O, 5 for format problems, the
// primitive's own distinguishing code for a semantic impossibility.
package clitool

import (
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/stephenrkell/xwrap-go/elfimg"
)

const (
	ExitUsage  = 1
	ExitOpen   = 2
	ExitMap    = 3
	ExitParse  = 4
	ExitFormat = 5
)

// logger is a per-process, prefix-free stderr logger, one per tool
// invocation -- there's no structured-logging concern in a single-shot CLI
// that runs one rewrite and exits, so a plain log.Logger is enough.
var logger = log.New(os.Stderr, "", 0)

// Usage prints a one-line usage message and exits 1, matching every tool's
// "<file> ..." argument shape.
func Usage(prog, shape string) {
	logger.Printf("usage: %s %s", filepath.Base(prog), shape)
	os.Exit(ExitUsage)
}

// Fail logs prefix and err and exits with code.
func Fail(code int, prefix string, err error) {
	logger.Printf("%s: %s", prefix, err)
	os.Exit(code)
}

// OpenView opens path read-write, mmaps it, and parses it as a View,
// exiting with the appropriate code on any failure. The caller is
// responsible for closing the returned file and Fmap once done (normally
// via defer immediately after this call returns).
func OpenView(path string) (*os.File, *elfimg.Fmap, *elfimg.View) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		Fail(ExitOpen, path, err)
	}
	fm, err := elfimg.Open(f, 0)
	if err != nil {
		f.Close()
		Fail(ExitMap, path, err)
	}
	v, err := elfimg.NewView(fm)
	if err != nil {
		fm.Close()
		f.Close()
		if errors.Is(err, elfimg.ErrNotELF) || errors.Is(err, elfimg.ErrFormatUnsupported) {
			Fail(ExitFormat, path, err)
		}
		Fail(ExitMap, path, err)
	}
	return f, fm, v
}
