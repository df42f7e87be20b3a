// Command xwrap-ldplugin is built with -buildmode=c-shared to produce the
// driver-loadable plugin shared object. This file is the one place the
// module steps outside safe Go: the driver's transfer-vector ABI is a
// tagged, heterogeneous C array that Go cannot express without cgo and
// unsafe, so onload decodes it by hand and hands each value-typed tag to
// pluginapi.Adapter.Dispatch, and each function-typed tag to a closure
// that calls back through the driver's C function pointer via a small
// trampoline. The cgo conventions here (CString/free pairing, explicit
// unsafe.Pointer casts) follow the pack's one cgo example, lxd's idmap
// package; the tag values and struct layout follow
// original_source/xwrap-ldplugin/plugin-api.hh and base-ldplugin.cpp.
package main

/*
#include <stdint.h>
#include <stdlib.h>

enum ld_plugin_status { LDPS_OK = 0, LDPS_ERR = 1 };

enum ld_plugin_tag {
	LDPT_NULL = 0,
	LDPT_API_VERSION = 1,
	LDPT_GOLD_VERSION = 2,
	LDPT_LINKER_OUTPUT = 3,
	LDPT_OPTION = 4,
	LDPT_REGISTER_CLAIM_FILE_HOOK = 5,
	LDPT_REGISTER_ALL_SYMBOLS_READ_HOOK = 6,
	LDPT_REGISTER_CLEANUP_HOOK = 7,
	LDPT_ADD_SYMBOLS = 8,
	LDPT_GET_SYMBOLS = 9,
	LDPT_ADD_INPUT_FILE = 10,
	LDPT_MESSAGE = 11,
	LDPT_GET_INPUT_FILE = 12,
	LDPT_GET_INPUT_SECTION_COUNT = 13,
	LDPT_GET_INPUT_SECTION_TYPE = 14,
	LDPT_GET_INPUT_SECTION_NAME = 15,
	LDPT_GET_INPUT_SECTION_CONTENTS = 16,
	LDPT_UPDATE_SECTION_ORDER = 17,
	LDPT_ALLOW_SECTION_ORDERING = 18,
	LDPT_GET_SYMBOLS_V2 = 19,
	LDPT_ALLOW_UNIQUE_SEGMENT_FOR_SECTIONS = 20,
	LDPT_UNIQUE_SEGMENT_FOR_SECTIONS = 21,
	LDPT_GET_SYMBOLS_V3 = 22,
	LDPT_GET_INPUT_SECTION_ALIGNMENT = 23,
	LDPT_GET_INPUT_SECTION_SIZE = 24,
	LDPT_REGISTER_NEW_INPUT_HOOK = 25,
	LDPT_GET_WRAP_SYMBOLS = 26,
	LDPT_ADD_INPUT_LIBRARY = 27,
	LDPT_OUTPUT_NAME = 28,
	LDPT_SET_EXTRA_LIBRARY_PATH = 29,
	LDPT_GNU_LD_VERSION = 30,
	LDPT_GET_VIEW = 31,
	LDPT_RELEASE_INPUT_FILE = 32,
};

struct ld_plugin_input_file {
	const char *name;
	int fd;
	long long offset;
	long long filesize;
	void *handle;
};

union ld_plugin_tv_u {
	int tv_val;
	const char *tv_string;
	void *tv_fn;
};

struct ld_plugin_tv {
	int tv_tag;
	union ld_plugin_tv_u tv_u;
};

typedef int (*claim_file_fn)(const struct ld_plugin_input_file *file, int *claimed);
typedef int (*all_symbols_read_fn)(void);
typedef int (*cleanup_fn)(void);
typedef int (*new_input_fn)(const struct ld_plugin_input_file *file);
typedef int (*register_claim_file_fn)(claim_file_fn);
typedef int (*register_all_symbols_read_fn)(all_symbols_read_fn);
typedef int (*register_cleanup_fn)(cleanup_fn);
typedef int (*register_new_input_fn)(new_input_fn);
typedef int (*add_input_file_fn)(const char *);
typedef int (*add_input_library_fn)(const char *);
typedef int (*set_extra_library_path_fn)(const char *);
typedef int (*message_fn)(int level, const char *fmt, ...);
typedef int (*get_wrap_symbols_fn)(uint64_t *num_symbols, const char ***list);

static int call_register_claim_file(void *fn, claim_file_fn h) { return ((register_claim_file_fn)fn)(h); }
static int call_register_all_symbols_read(void *fn, all_symbols_read_fn h) { return ((register_all_symbols_read_fn)fn)(h); }
static int call_register_cleanup(void *fn, cleanup_fn h) { return ((register_cleanup_fn)fn)(h); }
static int call_register_new_input(void *fn, new_input_fn h) { return ((register_new_input_fn)fn)(h); }
static int call_add_input_file(void *fn, const char *path) { return ((add_input_file_fn)fn)(path); }
static int call_add_input_library(void *fn, const char *name) { return ((add_input_library_fn)fn)(name); }
static int call_set_extra_library_path(void *fn, const char *path) { return ((set_extra_library_path_fn)fn)(path); }
static int call_message(void *fn, int level, const char *msg) { return ((message_fn)fn)(level, "%s", msg); }
static int call_get_wrap_symbols(void *fn, uint64_t *n, const char ***list) { return ((get_wrap_symbols_fn)fn)(n, list); }
*/
import "C"

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unsafe"

	"github.com/stephenrkell/xwrap-go/pluginapi"
	"github.com/stephenrkell/xwrap-go/xwrap"
)

// global is the process-wide plugin instance: spec.md §5 guarantees at
// most one of these exists per driver process.
var global struct {
	adapter *pluginapi.Adapter
	orch    *xwrap.Orchestrator
}

func logf(format string, args ...any) {
	if global.adapter != nil && global.adapter.Ops.Message != nil {
		global.adapter.Ops.Message(format, args...)
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// readOwnArgv recovers the driver's own argv from /proc/self/cmdline. This
// process is the driver itself (the plugin runs inside ld's address space),
// so os.Args is not meaningful here -- the Go runtime embedded in a
// c-shared object never observed the host's real argc/argv at start-up.
// /proc/self/cmdline gives the kernel's own record of it directly, which is
// both simpler and more robust than replicating the C implementation's
// stack-layout walk back from environ (that walk's helper, relf.h's
// get_auxv_via_environ, is not present in this repo to ground precisely).
func readOwnArgv() ([]string, error) {
	data, err := os.ReadFile("/proc/self/cmdline")
	if err != nil {
		return nil, err
	}
	parts := strings.Split(strings.TrimRight(string(data), "\x00"), "\x00")
	if len(parts) == 1 && parts[0] == "" {
		return nil, nil
	}
	return parts, nil
}

//export onload
func onload(tv *C.struct_ld_plugin_tv) C.int {
	pluginapi.DelayStartupIfRequested(func(seconds int) { time.Sleep(time.Duration(seconds) * time.Second) })

	a := pluginapi.NewAdapter()
	global.adapter = a

	entrySize := unsafe.Sizeof(*tv)
	for p := unsafe.Pointer(tv); ; p = unsafe.Pointer(uintptr(p) + entrySize) {
		entry := (*C.struct_ld_plugin_tv)(p)
		tag := C.enum_ld_plugin_tag(entry.tv_tag)
		if tag == C.LDPT_NULL {
			break
		}

		u := (*C.union_ld_plugin_tv_u)(unsafe.Pointer(&entry.tv_u))
		switch tag {
		case C.LDPT_API_VERSION:
			a.Dispatch(pluginapi.TagAPIVersion, "", int64(*(*C.int)(unsafe.Pointer(u))))
		case C.LDPT_LINKER_OUTPUT:
			a.Dispatch(pluginapi.TagOutputKind, "", int64(*(*C.int)(unsafe.Pointer(u))))
		case C.LDPT_OPTION:
			a.Dispatch(pluginapi.TagPluginOpt, C.GoString(*(**C.char)(unsafe.Pointer(u))), 0)
		case C.LDPT_OUTPUT_NAME:
			a.Dispatch(pluginapi.TagOutputName, C.GoString(*(**C.char)(unsafe.Pointer(u))), 0)

		case C.LDPT_REGISTER_CLAIM_FILE_HOOK:
			fn := *(*unsafe.Pointer)(unsafe.Pointer(u))
			C.call_register_claim_file(fn, C.claim_file_fn(C.goClaimFile))
		case C.LDPT_REGISTER_ALL_SYMBOLS_READ_HOOK:
			fn := *(*unsafe.Pointer)(unsafe.Pointer(u))
			C.call_register_all_symbols_read(fn, C.all_symbols_read_fn(C.goAllSymbolsRead))
		case C.LDPT_REGISTER_CLEANUP_HOOK:
			fn := *(*unsafe.Pointer)(unsafe.Pointer(u))
			C.call_register_cleanup(fn, C.cleanup_fn(C.goCleanup))
		case C.LDPT_REGISTER_NEW_INPUT_HOOK:
			fn := *(*unsafe.Pointer)(unsafe.Pointer(u))
			C.call_register_new_input(fn, C.new_input_fn(C.goNewInput))

		case C.LDPT_ADD_INPUT_FILE:
			fn := *(*unsafe.Pointer)(unsafe.Pointer(u))
			a.Ops.AddInputFile = func(path string) error {
				cs := C.CString(path)
				defer C.free(unsafe.Pointer(cs))
				if C.call_add_input_file(fn, cs) != C.LDPS_OK {
					return fmt.Errorf("add_input_file(%s) failed", path)
				}
				return nil
			}
		case C.LDPT_ADD_INPUT_LIBRARY:
			fn := *(*unsafe.Pointer)(unsafe.Pointer(u))
			a.Ops.AddInputLibrary = func(name string) error {
				cs := C.CString(name)
				defer C.free(unsafe.Pointer(cs))
				if C.call_add_input_library(fn, cs) != C.LDPS_OK {
					return fmt.Errorf("add_input_library(%s) failed", name)
				}
				return nil
			}
		case C.LDPT_SET_EXTRA_LIBRARY_PATH:
			fn := *(*unsafe.Pointer)(unsafe.Pointer(u))
			a.Ops.SetExtraLibraryPath = func(path string) error {
				cs := C.CString(path)
				defer C.free(unsafe.Pointer(cs))
				if C.call_set_extra_library_path(fn, cs) != C.LDPS_OK {
					return fmt.Errorf("set_extra_library_path(%s) failed", path)
				}
				return nil
			}
		case C.LDPT_MESSAGE:
			fn := *(*unsafe.Pointer)(unsafe.Pointer(u))
			a.Ops.Message = func(format string, args ...any) {
				cs := C.CString(fmt.Sprintf(format, args...))
				defer C.free(unsafe.Pointer(cs))
				C.call_message(fn, 1, cs)
			}
		case C.LDPT_GET_WRAP_SYMBOLS:
			fn := *(*unsafe.Pointer)(unsafe.Pointer(u))
			a.Ops.GetWrapSymbols = func() ([]string, error) {
				var n C.uint64_t
				var list **C.char
				if C.call_get_wrap_symbols(fn, &n, &list) != C.LDPS_OK {
					return nil, fmt.Errorf("get_wrap_symbols failed")
				}
				out := make([]string, 0, int(n))
				base := unsafe.Pointer(list)
				for i := 0; i < int(n); i++ {
					p := *(**C.char)(unsafe.Pointer(uintptr(base) + uintptr(i)*unsafe.Sizeof(list)))
					out = append(out, C.GoString(p))
				}
				return out, nil
			}

		default:
			logf("xwrap-ldplugin: ignoring unrecognized transfer vector tag %d", int(tag))
		}
	}

	argv, err := readOwnArgv()
	if err != nil || len(argv) == 0 {
		logf("xwrap-ldplugin: could not recover driver argv: %v", err)
		return C.LDPS_ERR
	}
	a.Job.Argv0 = argv[0]
	a.Job.Argv = argv[1:]

	global.orch = xwrap.NewOrchestrator(a)
	a.RegisterCleanup(global.orch.Cleanup)

	if err := global.orch.Run(); err != nil {
		logf("xwrap-ldplugin: %v", err)
		return C.LDPS_ERR
	}
	return C.LDPS_OK
}

//export goClaimFile
func goClaimFile(file *C.struct_ld_plugin_input_file, claimed *C.int) C.int {
	in := pluginapi.Input{
		Name:   C.GoString(file.name),
		Offset: int64(file.offset),
		Fd:     int(file.fd),
	}
	ok, err := global.adapter.ClaimFile(in)
	if err != nil {
		logf("xwrap-ldplugin: claim_file(%s): %v", in.Name, err)
		return C.LDPS_ERR
	}
	if ok {
		*claimed = 1
	}
	return C.LDPS_OK
}

//export goAllSymbolsRead
func goAllSymbolsRead() C.int {
	if err := global.adapter.AllSymbolsRead(); err != nil {
		logf("xwrap-ldplugin: all_symbols_read: %v", err)
		return C.LDPS_ERR
	}
	return C.LDPS_OK
}

//export goCleanup
func goCleanup() C.int {
	global.adapter.Cleanup()
	return C.LDPS_OK
}

//export goNewInput
func goNewInput(file *C.struct_ld_plugin_input_file) C.int {
	in := pluginapi.Input{
		Name:   C.GoString(file.name),
		Offset: int64(file.offset),
		Fd:     int(file.fd),
	}
	if err := global.adapter.NewInput(in); err != nil {
		logf("xwrap-ldplugin: new_input(%s): %v", in.Name, err)
		return C.LDPS_ERR
	}
	return C.LDPS_OK
}

func main() {}
