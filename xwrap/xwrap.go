// Package xwrap ties cmdline, classify, elfimg, restart, and pluginapi
// together into the orchestration sequence of spec.md §4.G: restart until
// the driver's argv satisfies xwrap's preconditions, classify inputs for
// the symbols the plugin has been asked to wrap, and claim+rewrite every
// input that defines one.
package xwrap

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/stephenrkell/xwrap-go/classify"
	"github.com/stephenrkell/xwrap-go/cmdline"
	"github.com/stephenrkell/xwrap-go/elfimg"
	"github.com/stephenrkell/xwrap-go/pluginapi"
	"github.com/stephenrkell/xwrap-go/restart"
)

// Orchestrator wires the adapter to the driver's command line and carries
// out spec.md §4.G's five-step sequence.
type Orchestrator struct {
	Adapter *pluginapi.Adapter

	// LDCmd is the driver binary to invoke for the -r --defsym surrogate
	// pass (job.Argv0 in the common case).
	LDCmd string

	// TmpDir is where surrogate and linker-script temp files are created;
	// defaults to os.Getenv("TMPDIR") or "/tmp" per spec.md §5.
	TmpDir string

	tmpFiles []string
}

// NewOrchestrator builds an Orchestrator around an already-populated
// Adapter (job + ops filled in by the transfer-vector walk).
func NewOrchestrator(a *pluginapi.Adapter) *Orchestrator {
	dir := os.Getenv("TMPDIR")
	if dir == "" {
		dir = "/tmp"
	}
	o := &Orchestrator{Adapter: a, LDCmd: a.Job.Argv0, TmpDir: dir}
	a.Hooks.ClaimFile = o.claimFile
	a.Hooks.AllSymbolsRead = o.allSymbolsRead
	return o
}

// Run executes spec.md §4.G's steps 1-4 (the restart sequence); step 5
// (awaiting driver callbacks) happens for free once Orchestrator's hooks
// are installed on the Adapter and the driver starts calling claim_file /
// all_symbols_read. Run itself never returns normally if any restart
// fires: RestartIf replaces the process image.
func (o *Orchestrator) Run() error {
	argv := append([]string{o.Adapter.Job.Argv0}, o.Adapter.Job.Argv...)

	if _, err := restart.RestartIf(restart.MissingOptionSubseq([]string{"-z", "muldefs"}), "-z muldefs", argv); err != nil {
		return fmt.Errorf("xwrap: restart for -z muldefs: %w", err)
	}

	files := inputFilesFromArgv(o.Adapter.Job.Argv)
	targets := o.Adapter.Job.Targets()
	xwrapMap, err := classify.Classify(files, func(f *elfimg.Fmap, offset int64, member string) map[string]bool {
		found, err := classify.EnumerateTargetSymbols(f, targets)
		if err != nil {
			return nil
		}
		return found
	})
	if err != nil {
		return fmt.Errorf("xwrap: classify: %w", err)
	}
	for k, v := range xwrapMap {
		if len(v) == 0 {
			continue
		}
		o.Adapter.Xwrap[pluginapi.XwrapKey{Path: k.Path, Offset: k.Offset}] = v
	}

	inInputs := unionDefined(xwrapMap)
	var missing []string
	for name := range targets {
		if !inInputs[name] {
			missing = append(missing, name)
		}
	}

	if _, err := restart.RestartIf(restart.MissingWrapOptions(missing), "missing-wrap-options", argv); err != nil {
		return fmt.Errorf("xwrap: restart for --wrap: %w", err)
	}

	var inInputNames []string
	for name := range inInputs {
		inInputNames = append(inInputNames, name)
	}
	cond := restart.MissingLdscript(inInputNames, func() string { return o.ldscriptContents(inInputNames) }, o.writeLdscript)
	if _, err := restart.RestartIf(cond, "missing-ldscript", argv); err != nil {
		return fmt.Errorf("xwrap: restart for linker script: %w", err)
	}

	return nil
}

// inputFilesFromArgv extracts the positional input-file list from the
// driver's own argv (not including argv[0]), via cmdline.ParseArgv.
func inputFilesFromArgv(argv []string) []string {
	return cmdline.ParseArgv(argv).Inputs
}

// unionDefined flattens a classify.Classify result into the set of all
// symbol names defined anywhere across all (path,offset) locations.
func unionDefined(m map[classify.Key]map[string]bool) map[string]bool {
	out := map[string]bool{}
	for _, names := range m {
		for n := range names {
			out[n] = true
		}
	}
	return out
}

// ldscriptContents renders spec.md §4.F's "sym = __wrap_sym;" lines, one
// per in-input target, in sorted order for determinism.
func (o *Orchestrator) ldscriptContents(targets []string) string {
	sorted := append([]string(nil), targets...)
	sortStrings(sorted)
	var b strings.Builder
	for _, sym := range sorted {
		fmt.Fprintf(&b, "%s = __wrap_%s;\n", sym, sym)
	}
	return b.String()
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// writeLdscript creates a temp file holding contents and returns its
// /proc/self/fd/N path, which (unlike the temp path itself) survives the
// subsequent RestartIf re-exec.
func (o *Orchestrator) writeLdscript(contents string) (string, error) {
	f, err := os.CreateTemp(o.TmpDir, "tmp.xwrap-ldplugin-lds-*")
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(f, contents); err != nil {
		f.Close()
		return "", err
	}
	// Keep the fd open (don't close/remove) so /proc/self/fd/N stays valid
	// across the re-exec; the orchestrator's tmpFiles list takes over
	// cleanup responsibility for best-effort unlink at process exit. Go
	// opens files close-on-exec by default, which would otherwise close
	// this fd during RestartIf's execve before the new image ever reads
	// /proc/self/fd/N -- clear FD_CLOEXEC explicitly.
	if _, err := unix.FcntlInt(f.Fd(), unix.F_SETFD, 0); err != nil {
		f.Close()
		return "", fmt.Errorf("clearing close-on-exec on ldscript temp: %w", err)
	}
	o.tmpFiles = append(o.tmpFiles, f.Name())
	return fmt.Sprintf("/proc/self/fd/%d", f.Fd()), nil
}

// claimFile implements spec.md §4.E's claim_file sequence: copy the
// original to a surrogate temp file, normalize its relocations for each
// target it defines, then invoke the driver as a subprocess to synthesize
// __real_<sym> aliases via a -r --defsym pass.
func (o *Orchestrator) claimFile(a *pluginapi.Adapter, in pluginapi.Input) (bool, error) {
	targets := a.Xwrap[pluginapi.XwrapKey{Path: in.Name, Offset: in.Offset}]
	if len(targets) == 0 {
		return false, nil
	}

	surrogate, err := o.buildSurrogate(in.Name, in.Offset, targets)
	if err != nil {
		return false, fmt.Errorf("xwrap: claim_file %s@%d: %w", in.Name, in.Offset, err)
	}

	a.AddClaim(&pluginapi.Claim{Original: in, Surrogate: surrogate, Targets: targets})
	return true, nil
}

// buildSurrogate copies the (path, offset) payload to a temp file,
// normalizes its relocations for every target symbol, then shells out to
// the driver for the -r --defsym __real_<sym>=<sym> pass, per spec.md
// §4.E/§4.G. Returns the surrogate's final path.
func (o *Orchestrator) buildSurrogate(path string, offset int64, targets map[string]bool) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	srcMap, err := elfimg.Open(src, offset)
	if err != nil {
		return "", err
	}
	srcView, err := elfimg.NewView(srcMap)
	if err != nil {
		srcMap.Close()
		return "", err
	}
	payloadSize := srcView.FileSize()
	srcMap.Close()

	tmp, err := os.CreateTemp(o.TmpDir, "tmp.xwrap-surrogate-*.o")
	if err != nil {
		return "", err
	}
	o.tmpFiles = append(o.tmpFiles, tmp.Name())
	defer tmp.Close()

	buf := make([]byte, payloadSize)
	if _, err := src.ReadAt(buf, offset); err != nil && err != io.EOF {
		return "", err
	}
	if _, err := tmp.Write(buf); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}

	f2, err := os.OpenFile(tmp.Name(), os.O_RDWR, 0)
	if err != nil {
		return "", err
	}
	defer f2.Close()
	tmpMap, err := elfimg.Open(f2, 0)
	if err != nil {
		return "", err
	}
	tmpView, err := elfimg.NewView(tmpMap)
	if err != nil {
		tmpMap.Close()
		return "", err
	}
	for sym := range targets {
		if err := elfimg.NormalizeRelocs(tmpView, sym); err != nil {
			tmpMap.Close()
			return "", fmt.Errorf("normalize_relocs(%s): %w", sym, err)
		}
	}
	tmpMap.Close()

	out, err := os.CreateTemp(o.TmpDir, "tmp.xwrap-surrogate-r-*.o")
	if err != nil {
		return "", err
	}
	out.Close()
	o.tmpFiles = append(o.tmpFiles, out.Name())

	args := []string{"-r", "-o", out.Name(), tmp.Name()}
	for sym := range targets {
		args = append(args, "--defsym", fmt.Sprintf("__real_%s=%s", sym, sym))
	}
	cmd := exec.Command(o.LDCmd, args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("xwrap: %s %s: %w", o.LDCmd, strings.Join(args, " "), err)
	}

	return out.Name(), nil
}

// allSymbolsRead feeds every claimed surrogate back to the driver via
// Ops.AddInputFile, per spec.md §4.E.
func (o *Orchestrator) allSymbolsRead(a *pluginapi.Adapter) error {
	if a.Ops.AddInputFile == nil {
		return nil
	}
	for _, c := range a.Claims() {
		if c.Surrogate == "" {
			continue
		}
		if err := a.Ops.AddInputFile(c.Surrogate); err != nil {
			return fmt.Errorf("xwrap: add_input_file(%s): %w", c.Surrogate, err)
		}
	}
	return nil
}

// Cleanup best-effort-unlinks every temp file the orchestrator created.
func (o *Orchestrator) Cleanup() {
	for _, p := range o.tmpFiles {
		os.Remove(p)
	}
	o.tmpFiles = nil
}
