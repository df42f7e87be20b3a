// Command abs2sectsym runs elfimg.AbsToSection over an object file: see
// spec.md §4.B's abs_to_section.
package main

import (
	"os"

	"github.com/stephenrkell/xwrap-go/elfimg"
	"github.com/stephenrkell/xwrap-go/internal/clitool"
)

func main() {
	args := os.Args[1:]
	if len(args) < 1 || len(args) > 2 {
		clitool.Usage(os.Args[0], "<file> [sym]")
	}
	var onlySym string
	if len(args) == 2 {
		onlySym = args[1]
	}

	f, fm, v := clitool.OpenView(args[0])
	defer f.Close()
	defer fm.Close()

	if err := elfimg.AbsToSection(v, onlySym); err != nil {
		clitool.Fail(clitool.ExitFormat, args[0], err)
	}
}
