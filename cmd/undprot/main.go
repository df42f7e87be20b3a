// Command undprot runs elfimg.UndProtect over an object file: see spec.md
// §4.B's und_protect.
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

	if err := elfimg.UndProtect(v); err != nil {
		clitool.Fail(clitool.ExitFormat, args[0], err)
	}
}
