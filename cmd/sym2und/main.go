// Command sym2und runs elfimg.SymToUndef over an object file: see spec.md
// §4.B's sym_to_undef.
package main

import (
	"os"

	"github.com/stephenrkell/xwrap-go/elfimg"
	"github.com/stephenrkell/xwrap-go/internal/clitool"
)

func main() {
	args := os.Args[1:]
	if len(args) != 2 {
		clitool.Usage(os.Args[0], "<file> <sym>")
	}

	f, fm, v := clitool.OpenView(args[0])
	defer f.Close()
	defer fm.Close()

	if err := elfimg.SymToUndef(v, args[1]); err != nil {
		clitool.Fail(clitool.ExitFormat, args[0], err)
	}
}
