// Command pie2rel runs elfimg.PIEToRel over an object file: see spec.md
// §4.B's pie_to_rel.
package main

import (
	"os"

	"github.com/stephenrkell/xwrap-go/elfimg"
	"github.com/stephenrkell/xwrap-go/internal/clitool"
)

func main() {
	args := os.Args[1:]
	if len(args) != 1 {
		clitool.Usage(os.Args[0], "<file>")
	}

	f, fm, v := clitool.OpenView(args[0])
	defer f.Close()
	defer fm.Close()

	if err := elfimg.PIEToRel(v); err != nil {
		clitool.Fail(clitool.ExitFormat, args[0], err)
	}
}
