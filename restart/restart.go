// Package restart implements spec.md §4.F's self-restart driver: deciding
// whether the current process's argv satisfies a predicate and, if not,
// re-executing the linker driver with a corrected argv, guarded by an
// environment variable so a buggy fix-up can't loop forever.
package restart

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrRestartLoop is returned when a criterion's own fix-up still fails
// the same criterion on the restarted process -- a logic bug, per
// spec.md §7.
var ErrRestartLoop = errors.New("restart: guard already set, fix-up did not satisfy its own criterion")

// ErrExecFailed wraps a failed re-exec of the driver binary.
var ErrExecFailed = errors.New("restart: exec of driver binary failed")

// Criterion decides whether argv needs fixing up, and what argv would
// satisfy it if so.
type Criterion func(argv []string) (need bool, fixed []string)

// GuardName mangles a condition string into an environment-variable name:
// every non-alphanumeric, non-underscore byte becomes underscore, prefixed
// with LD_PLUGIN_RESTART_GUARD_.
func GuardName(condition string) string {
	var b bytes.Buffer
	b.WriteString("LD_PLUGIN_RESTART_GUARD_")
	for i := 0; i < len(condition); i++ {
		c := condition[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// execFn and exeResolver are overridden in tests so RestartIf can be
// exercised without actually replacing the test process.
var execFn = syscall.Exec
var exeResolver = func() (string, error) { return os.Readlink("/proc/self/exe") }

// RestartIf implements spec.md §4.F's restart_if: if argv fails cond,
// re-exec the driver (resolved via /proc/self/exe) with the corrected
// argv, after setting a mangled guard variable named after condStr. If
// the guard is already set and cond still fails, that is a restart loop
// and RestartIf returns ErrRestartLoop without re-execing.
func RestartIf(cond Criterion, condStr string, argv []string) (didRestart bool, err error) {
	guard := GuardName(condStr)
	need, fixed := cond(argv)

	_, guardSet := os.LookupEnv(guard)

	if need && guardSet {
		return false, ErrRestartLoop
	}
	if need {
		if err := os.Setenv(guard, ""); err != nil {
			return false, fmt.Errorf("restart: setenv %s: %w", guard, err)
		}
		exe, err := exeResolver()
		if err != nil {
			return false, fmt.Errorf("%w: resolving /proc/self/exe: %v", ErrExecFailed, err)
		}
		// fixed already has the program name at index 0 (argv's own
		// convention, per spec.md §4.F's "argv's position-1" wording);
		// only the binary actually exec'd is resolved via /proc/self/exe.
		if err := execFn(exe, fixed, os.Environ()); err != nil {
			return false, fmt.Errorf("%w: %v", ErrExecFailed, err)
		}
		// execFn replaces the process image on success; unreachable.
		return false, nil
	}
	return guardSet, nil
}

// containsSubseq reports whether seq appears as a contiguous subsequence
// of argv.
func containsSubseq(argv, seq []string) bool {
	if len(seq) == 0 {
		return true
	}
	for i := 0; i+len(seq) <= len(argv); i++ {
		match := true
		for j, s := range seq {
			if argv[i+j] != s {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// MissingOptionSubseq returns a Criterion requiring that seq appear as a
// contiguous subsequence of argv (e.g. ["-z", "muldefs"]); if absent, it
// is appended.
func MissingOptionSubseq(seq []string) Criterion {
	return func(argv []string) (bool, []string) {
		if containsSubseq(argv, seq) {
			return false, nil
		}
		fixed := make([]string, len(argv), len(argv)+len(seq))
		copy(fixed, argv)
		fixed = append(fixed, seq...)
		return true, fixed
	}
}

// wrapOptionTargets returns the set of symbol names s such that argv
// contains "--wrap" "s" (as two separate tokens) or "--wrap=s".
func wrapOptionTargets(argv []string) map[string]bool {
	out := map[string]bool{}
	for i := 0; i < len(argv); i++ {
		tok := argv[i]
		if tok == "--wrap" {
			if i+1 < len(argv) {
				out[argv[i+1]] = true
			}
			i++
			continue
		}
		const prefix = "--wrap="
		if len(tok) > len(prefix) && tok[:len(prefix)] == prefix {
			out[tok[len(prefix):]] = true
		}
	}
	return out
}

// MissingWrapOptions returns a Criterion requiring a "--wrap <s>" for
// every name in required; any missing ones are appended (in the order
// they appear in required, for determinism).
func MissingWrapOptions(required []string) Criterion {
	return func(argv []string) (bool, []string) {
		have := wrapOptionTargets(argv)
		var missing []string
		for _, name := range required {
			if !have[name] {
				missing = append(missing, name)
			}
		}
		if len(missing) == 0 {
			return false, nil
		}
		fixed := make([]string, 0, len(argv)+2*len(missing))
		fixed = append(fixed, argv...)
		for _, name := range missing {
			fixed = append(fixed, "--wrap", name)
		}
		return true, fixed
	}
}

// ldscriptBasenamePrefix is the prefix RestartIf's MissingLdscript looks
// for at the realpath of argv[1], and the prefix xwrap's writeLdscript uses
// for the temp file it creates.
const ldscriptBasenamePrefix = "tmp.xwrap-ldplugin-lds"

// hasLdscriptAt1 reports whether argv[1] is a symlink (normally a
// /proc/self/fd/N path) whose target's basename begins with
// ldscriptBasenamePrefix. The spelling of argv[1] itself is not checked.
func hasLdscriptAt1(argv []string) bool {
	if len(argv) < 2 {
		return false
	}
	target, err := os.Readlink(argv[1])
	if err != nil {
		return false
	}
	base := target
	if i := bytes.LastIndexByte([]byte(target), '/'); i >= 0 {
		base = target[i+1:]
	}
	return len(base) >= len(ldscriptBasenamePrefix) && base[:len(ldscriptBasenamePrefix)] == ldscriptBasenamePrefix
}

// LdscriptWriter creates the linker-script temp file (contents already
// computed by the caller -- see xwrap, which knows the "sym = __wrap_sym;"
// lines) and returns its /proc/self/fd/N path, which survives exec across
// RestartIf's re-exec.
type LdscriptWriter func(contents string) (procSelfFdPath string, err error)

// MissingLdscript returns a Criterion requiring argv[1] to be the
// synthesized linker-script path, when targets is non-empty. write is
// called to create the script the first time it's missing.
func MissingLdscript(targets []string, scriptContents func() string, write LdscriptWriter) Criterion {
	return func(argv []string) (bool, []string) {
		if len(targets) == 0 {
			return false, nil
		}
		if hasLdscriptAt1(argv) {
			return false, nil
		}
		path, err := write(scriptContents())
		if err != nil {
			// A write failure can't be expressed through this Criterion's
			// signature; since spec.md treats a missing ldscript as fatal
			// anyway, fall back to "need but can't fix", which RestartIf
			// will re-exec with argv unchanged -- leaving the next run to
			// fail the same check again (surfaced as ErrRestartLoop).
			return true, argv
		}
		fixed := make([]string, 0, len(argv)+1)
		fixed = append(fixed, argv[0], path)
		fixed = append(fixed, argv[1:]...)
		return true, fixed
	}
}
