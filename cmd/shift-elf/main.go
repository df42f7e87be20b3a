// Command shift-elf runs elfimg.ShiftFileOffsets over an object file: see
// spec.md §4.B's shift_file_offsets. It does not move any section
// payloads; the caller is responsible for that if delta changes where
// those payloads actually live.
package main

import (
	"os"
	"strconv"

	"github.com/stephenrkell/xwrap-go/elfimg"
	"github.com/stephenrkell/xwrap-go/internal/clitool"
)

func main() {
	args := os.Args[1:]
	if len(args) != 2 {
		clitool.Usage(os.Args[0], "<file> <delta>")
	}
	delta, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		clitool.Usage(os.Args[0], "<file> <delta>")
	}

	f, fm, v := clitool.OpenView(args[0])
	defer f.Close()
	defer fm.Close()

	if err := elfimg.ShiftFileOffsets(v, delta); err != nil {
		clitool.Fail(clitool.ExitFormat, args[0], err)
	}
}
