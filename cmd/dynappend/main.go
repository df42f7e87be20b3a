// Command dynappend runs elfimg.DynTagAppend over an object file: see
// spec.md §4.B's dyn_tag_append. Exit 10 distinguishes "no spare DT_NULL
// entry" from the ordinary I/O/format codes, per spec.md §7's "nonzero
// exit with a distinguishing code".
package main

import (
	"errors"
	"os"

	"github.com/stephenrkell/xwrap-go/elfimg"
	"github.com/stephenrkell/xwrap-go/internal/clitool"
	"github.com/stephenrkell/xwrap-go/pluginapi"
)

const exitNoSpare = 10

func main() {
	args := os.Args[1:]
	if len(args) < 2 || len(args) > 3 {
		clitool.Usage(os.Args[0], "<file> <tagnum> [val]")
	}

	tag, err := pluginapi.ParseDecimalTag(args[1])
	if err != nil {
		clitool.Usage(os.Args[0], "<file> <tagnum> [val]")
	}
	var val uint64
	if len(args) == 3 {
		v, err := pluginapi.ParseDecimalTag(args[2])
		if err != nil {
			clitool.Usage(os.Args[0], "<file> <tagnum> [val]")
		}
		val = uint64(v)
	}

	f, fm, v := clitool.OpenView(args[0])
	defer f.Close()
	defer fm.Close()

	if err := elfimg.DynTagAppend(v, tag, val); err != nil {
		if errors.Is(err, elfimg.ErrNoSpareDynamicTag) {
			clitool.Fail(exitNoSpare, args[0], err)
		}
		clitool.Fail(clitool.ExitFormat, args[0], err)
	}
}
