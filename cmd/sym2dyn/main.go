// Command sym2dyn runs elfimg.SymToDynReconcile over an object file: see
// spec.md §4.B's sym_to_dyn_reconcile. Exit 99 distinguishes "object uses
// a GNU hash table, which this tool cannot rebuild" from the ordinary
// I/O/format codes, per spec.md §6's CLI table.
package main

import (
	"errors"
	"os"

	"github.com/stephenrkell/xwrap-go/elfimg"
	"github.com/stephenrkell/xwrap-go/internal/clitool"
)

const exitGNUHashUnsupported = 99

func main() {
	args := os.Args[1:]
	if len(args) != 1 {
		clitool.Usage(os.Args[0], "<file>")
	}

	f, fm, v := clitool.OpenView(args[0])
	defer f.Close()
	defer fm.Close()

	if err := elfimg.SymToDynReconcile(v); err != nil {
		if errors.Is(err, elfimg.ErrUnimplementedGNUHash) {
			clitool.Fail(exitGNUHashUnsupported, args[0], err)
		}
		clitool.Fail(clitool.ExitFormat, args[0], err)
	}
}
