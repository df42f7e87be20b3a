// Package cmdline parses a linker driver's argv the way the driver itself
// would: tracking -Bstatic/-Bdynamic binding mode, resolving -l/-L into
// concrete library paths, and recognizing the fixed set of options that
// consume a following argument (joined or separated) without needing to
// understand what any of them mean.
package cmdline

import (
	"os"
	"path/filepath"
	"strings"
)

// BindMode is the current static/dynamic library binding mode, as
// toggled by -Bstatic/-Bdynamic and their aliases.
type BindMode int

const (
	BindDefault BindMode = iota
	BindStatic
	BindDynamic
)

func (b BindMode) String() string {
	switch b {
	case BindStatic:
		return "static"
	case BindDynamic:
		return "dynamic"
	default:
		return "default"
	}
}

var staticAliases = map[string]bool{"-Bstatic": true, "-dn": true, "-non_shared": true, "-static": true}
var dynamicAliases = map[string]bool{"-Bdynamic": true, "-dy": true, "-call_shared": true}

// optWithArg lists every option recognized in spec.md §6 as taking a
// (joined or separated) argument, except -l/-L which get their own
// resolution logic below. Longer aliases are listed before their
// prefixes so a greedy match never steals a shorter option's token.
var optWithArg = []string{
	"--dependency-file", "--out-implib", "-plugin-opt", "-plugin",
	"--require-defined", "--defsym", "--retain-symbols-file",
	"-rpath-link", "-rpath", "--sort-section", "--spare-dynamic-tags",
	"--task-link", "--section-start", "--version-exports-section",
	"--version-script", "--dynamic-list", "--export-dynamic-symbol-list",
	"--export-dynamic-symbol", "--wrap", "--ignore-unresolved-symbol",
	"--oformat", "--architecture", "--format", "--mri-script", "--entry",
	"--auxiliary", "--filter", "--gpsize", "--dynamic-linker",
	"--just-symbols", "--trace-symbol", "--output",
	"-Ttext-segment", "-Trodata-segment", "-Tldata-segment",
	"-Tbss", "-Tdata", "-Ttext",
	"-soname", "-assert", "-fini", "-init", "-Map",
	"-a", "-A", "-b", "-c", "-e", "-f", "-F", "-G", "-h", "-I", "-m",
	"-o", "-R", "-y", "-Y", "-z", "-P",
}

// Result is the outcome of parsing one argv.
type Result struct {
	// Inputs is the ordered list of input-file paths: non-option tokens,
	// plus -l<name> arguments resolved to a concrete library path.
	Inputs []string

	// [ADDED] LibPaths is the accumulated -L search path list, exposed
	// for diagnostics; spec.md's core algorithm only needs it internally
	// during -l resolution.
	LibPaths []string

	// [ADDED] FinalBind is the binding mode in effect after the last
	// -Bstatic/-Bdynamic token seen, exposed for diagnostics.
	FinalBind BindMode
}

// statFunc abstracts filesystem existence checks so tests can substitute
// a fake without touching the real filesystem.
var statFunc = func(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ParseArgv parses argv (not including argv[0]) per spec.md §4.C.
func ParseArgv(argv []string) *Result {
	r := &Result{}
	bind := BindDefault
	optParsing := true

	resolveLib := func(name string) string {
		if bind != BindStatic {
			for _, dir := range r.LibPaths {
				p := filepath.Join(dir, "lib"+name+".so")
				if statFunc(p) {
					return p
				}
			}
		}
		for _, dir := range r.LibPaths {
			p := filepath.Join(dir, "lib"+name+".a")
			if statFunc(p) {
				return p
			}
		}
		// No match found on any search path: pass the token through
		// unresolved, as ld itself would defer to link-time failure.
		return "-l" + name
	}

	i := 0
	for i < len(argv) {
		tok := argv[i]

		if optParsing && tok == "--" {
			optParsing = false
			i++
			continue
		}

		if !optParsing {
			r.Inputs = append(r.Inputs, tok)
			i++
			continue
		}

		if staticAliases[tok] {
			bind = BindStatic
			i++
			continue
		}
		if dynamicAliases[tok] {
			bind = BindDynamic
			i++
			continue
		}

		if value, rest, ok := matchJoinedOrSeparated(argv, i, "-L", "--library-path"); ok {
			r.LibPaths = append(r.LibPaths, value)
			i = rest
			continue
		}
		if value, rest, ok := matchJoinedOrSeparated(argv, i, "-l", "--library"); ok {
			r.Inputs = append(r.Inputs, resolveLib(value))
			i = rest
			continue
		}

		if consumed := matchesAny(tok, optWithArg); consumed != "" {
			if tok == consumed {
				// Separated: the argument is the next token, if any.
				i++
				if i < len(argv) {
					i++
				}
				continue
			}
			// Joined: value is embedded in tok, already consumed.
			i++
			continue
		}

		if strings.HasPrefix(tok, "-") && tok != "-" {
			// An option this model doesn't special-case (e.g. -d,
			// --whole-archive): not an input file.
			i++
			continue
		}

		r.Inputs = append(r.Inputs, tok)
		i++
	}

	r.FinalBind = bind
	return r
}

// matchJoinedOrSeparated checks argv[i] against a short and long spelling
// of one option, returning the resolved value, the index to resume
// parsing from, and whether it matched at all.
func matchJoinedOrSeparated(argv []string, i int, short, long string) (value string, next int, ok bool) {
	tok := argv[i]
	for _, opt := range []string{long, short} {
		if tok == opt {
			if i+1 >= len(argv) {
				return "", i + 1, true
			}
			return argv[i+1], i + 2, true
		}
		if strings.HasPrefix(tok, opt) && len(tok) > len(opt) {
			v := tok[len(opt):]
			v = strings.TrimPrefix(v, "=")
			return v, i + 1, true
		}
	}
	return "", i, false
}

// matchesAny returns the specific alias in opts that tok matches (either
// exactly, for the separated form, or as a prefix, for the joined form),
// or "" if none match.
func matchesAny(tok string, opts []string) string {
	for _, opt := range opts {
		if tok == opt {
			return opt
		}
		if strings.HasPrefix(tok, opt) && len(tok) > len(opt) {
			return opt
		}
	}
	return ""
}
