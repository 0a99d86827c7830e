//go:build windows

// Command clink-module is the editor module injected into a target
// shell process. It is built with -buildmode=c-shared and exports
// ClinkInit, which takes a JSON-encoded inject.Options blob, and
// ClinkShutdown; inject.Inject only loads the module and does not call
// ClinkInit. ClinkInit opens settings, diagnostics, history, the match
// pipeline and the line-editor adapter and builds a hook engine, but it
// installs no hook, so the host's console read is not redirected.
package main

/*
#include <stdint.h>
#include <windows.h>

static HMODULE clink_own_module(void) {
	HMODULE h = NULL;
	GetModuleHandleExW(
		GET_MODULE_HANDLE_EX_FLAG_FROM_ADDRESS | GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT,
		(LPCWSTR)&clink_own_module, &h);
	return h;
}
*/
import "C"

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/clinkgo/clink/internal/diag"
	"github.com/clinkgo/clink/internal/generators"
	"github.com/clinkgo/clink/internal/hook"
	"github.com/clinkgo/clink/internal/history"
	"github.com/clinkgo/clink/internal/inject"
	"github.com/clinkgo/clink/internal/lineeditor"
	"github.com/clinkgo/clink/internal/match"
	"github.com/clinkgo/clink/internal/script"
	"github.com/clinkgo/clink/internal/settings"
	"github.com/clinkgo/clink/internal/shellsession"
)

// moduleState is the live session created by ClinkInit and torn down
// by ClinkShutdown; a module instance serves exactly one host process.
type moduleState struct {
	settings *settings.Store
	diag     *diag.Log
	history  *history.DB
	scripts  *script.Registry
	pipeline *match.Pipeline
	hooks    *hook.Engine
	session  *shellsession.Session
	editor   *lineeditor.Session
}

var (
	stateMu sync.Mutex
	state   *moduleState
)

//export ClinkInit
func ClinkInit(optionsJSON *C.char) C.int32_t {
	raw := C.GoString(optionsJSON)

	var opts inject.Options
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		fmt.Fprintf(os.Stderr, "clink-module: decode options: %v\n", err)
		return -1
	}

	st, err := initialize(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clink-module: init failed: %v\n", err)
		return -1
	}

	stateMu.Lock()
	state = st
	stateMu.Unlock()
	return 0
}

//export ClinkShutdown
func ClinkShutdown() C.int32_t {
	stateMu.Lock()
	st := state
	state = nil
	stateMu.Unlock()

	if st == nil {
		return 0
	}
	shutdown(st)
	return 0
}

func initialize(opts inject.Options) (*moduleState, error) {
	profile := opts.ProfilePath
	if profile == "" {
		return nil, fmt.Errorf("no profile path supplied")
	}

	sstore, err := settings.Open(profile + `\clink_settings`)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	dlog, err := diag.Open(profile + `\clink_diag.db`)
	if err != nil {
		sstore.Close()
		return nil, fmt.Errorf("diag: %w", err)
	}

	pid := uint32(os.Getpid())
	sessions := shellsession.NewRegistry(0)
	sess := sessions.Open(pid, os.Args[0], profile)

	hopts := history.Options{
		Shared:      sstore.GetBool("history.shared", false),
		IgnoreSpace: sstore.GetBool("history.ignore_space", true),
		DupeMode:    history.ParseDupeMode(sstore.Get("history.dupe_mode", "erase_prev")),
		MaxLines:    sstore.GetInt("history.max_lines", history.DefaultMaxHistory),
	}
	hdb, err := history.Open(profile, pid, hopts, dlog.Reporter("history"))
	if err != nil {
		dlog.Close()
		sstore.Close()
		return nil, fmt.Errorf("history: %w", err)
	}

	scripts := script.NewRegistry()

	pipeline := match.NewPipeline()
	pipeline.CaseFold = sstore.GetBool("match.case_fold", true)
	pipeline.TranslateSlashes = sstore.GetBool("match.translate_slashes", true)
	pipeline.OnFault(func(err error) {
		sess.IncGeneratorFault()
		dlog.Record("match", "generator_fault", err.Error())
	})
	pipeline.Registry.Register(generators.NewScript(scripts), generators.ScriptPriority)
	pipeline.Registry.Register(generators.NewFilesystem(pipeline.CaseFold), generators.FilesystemPriority)

	hooks, err := newHookEngine()
	if err != nil {
		hdb.Close(false)
		dlog.Close()
		sstore.Close()
		return nil, fmt.Errorf("hook: %w", err)
	}

	editor, err := lineeditor.Open(lineeditor.Options{
		Prompt:   "",
		Pipeline: pipeline,
		History:  hdb,
		ANSI:     sstore.GetBool("lineeditor.ansi", true),
	})
	if err != nil {
		dlog.Record("lineeditor", "attach_skipped", err.Error())
	}

	dlog.Record("injection", "injection_attempted", "pid="+fmt.Sprint(pid))

	return &moduleState{
		settings: sstore,
		diag:     dlog,
		history:  hdb,
		scripts:  scripts,
		pipeline: pipeline,
		hooks:    hooks,
		session:  sess,
		editor:   editor,
	}, nil
}

func newHookEngine() (*hook.Engine, error) {
	mod := windows.Handle(uintptr(unsafe.Pointer(C.clink_own_module())))
	return hook.NewEngine(mod)
}

func shutdown(st *moduleState) {
	if st.editor != nil {
		st.editor.Close()
	}
	st.history.Close(true)
	st.diag.Record("injection", "module_shutdown", "")
	st.diag.Close()
	st.settings.Close()
}

func main() {}
