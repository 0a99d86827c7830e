//go:build windows

package hook

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// TrapRegistry is the process-wide vectored exception handler that backs
// install_deferred_trap: register a first-chance fault handler matched by
// faulting address; on match, perform repair + continue. Abstracted here
// as a single handler multiplexing over all installed traps by address,
// since Windows only lets a module register a small number of these
// handlers sensibly.
type TrapRegistry struct {
	mu      sync.Mutex
	traps   map[uintptr]*trapEntry
	handle  uintptr
	started bool
}

type trapEntry struct {
	inst       *Installed
	onFirstUse func()
}

const (
	exceptionContinueExecution = 0xffffffff
	exceptionContinueSearch    = 0
	exceptionBreakpoint        = 0x80000003
)

// exceptionPointers mirrors the fields of EXCEPTION_POINTERS/EXCEPTION_RECORD
// this handler actually reads: the exception code and the faulting address.
type exceptionPointers struct {
	ExceptionRecord *exceptionRecord
	ContextRecord   uintptr
}

type exceptionRecord struct {
	ExceptionCode        uint32
	ExceptionFlags       uint32
	ExceptionRecord      uintptr
	ExceptionAddress     uintptr
	NumberParameters     uint32
	ExceptionInformation [15]uintptr
}

func NewTrapRegistry() *TrapRegistry {
	return &TrapRegistry{traps: map[uintptr]*trapEntry{}}
}

// ensureStarted installs the vectored handler once, lazily, on first trap added.
func (r *TrapRegistry) ensureStarted() {
	if r.started {
		return
	}
	cb := windows.NewCallback(func(p *exceptionPointers) uintptr {
		return r.handle1(p)
	})
	windows.AddVectoredExceptionHandler(1, cb)
	r.started = true
}

func (r *TrapRegistry) handle1(p *exceptionPointers) uintptr {
	if p == nil || p.ExceptionRecord == nil {
		return exceptionContinueSearch
	}
	if p.ExceptionRecord.ExceptionCode != exceptionBreakpoint {
		return exceptionContinueSearch
	}
	addr := p.ExceptionRecord.ExceptionAddress

	r.mu.Lock()
	entry, ok := r.traps[addr]
	if ok {
		delete(r.traps, addr)
	}
	r.mu.Unlock()
	if !ok {
		return exceptionContinueSearch
	}

	// (a) restore original byte.
	_ = withWritable(addr, 1, func() error {
		*(*byte)(unsafe.Pointer(addr)) = entry.inst.trapByte
		return nil
	})
	// (b) install the real hook batch.
	entry.onFirstUse()
	// (c)/(d) resume execution at the restored instruction.
	return exceptionContinueExecution
}

// AddTrap registers inst (already byte-patched by InstallDeferredTrap) so
// the shared handler repairs it and calls onFirstUse on first fault.
func (r *TrapRegistry) AddTrap(inst *Installed, onFirstUse func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureStarted()
	r.traps[inst.PatchedAt] = &trapEntry{inst: inst, onFirstUse: onFirstUse}
}
