//go:build windows

package hook

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/clinkgo/clink/internal/pe"
)

// NewEngine builds an engine bound to the hook module's own loaded image,
// needed so IAT strategies can also patch the hook module's own import
// slot to the original function (the reciprocal-patch step).
func NewEngine(ownBase windows.Handle) (*Engine, error) {
	img, err := pe.OpenLocal(pe.ModuleHandleToBase(ownBase))
	if err != nil {
		return nil, fmt.Errorf("hook: open own image: %w", err)
	}
	return &Engine{ownImage: img}, nil
}

func currentProcess() windows.Handle { return windows.CurrentProcess() }

// withWritable relaxes protection on the page(s) covering addr/size, runs
// fn, restores the previous protection, matching hook.cpp's
// get_region_info/set_region_write_state RAII pattern.
func withWritable(addr uintptr, size uintptr, fn func() error) error {
	var old uint32
	if err := windows.VirtualProtect(addr, size, windows.PAGE_EXECUTE_READWRITE, &old); err != nil {
		return fmt.Errorf("hook: VirtualProtect(relax) at %#x: %w", addr, err)
	}
	ferr := fn()
	var unused uint32
	_ = windows.VirtualProtect(addr, size, old, &unused)
	return ferr
}

func writePointer(slot uintptr, value uintptr) error {
	return withWritable(slot, unsafe.Sizeof(value), func() error {
		*(*uintptr)(unsafe.Pointer(slot)) = value
		return nil
	})
}

func flushInstructionCache() {
	_ = windows.FlushInstructionCache(currentProcess(), nil, 0)
}

// InstallIAT implements the iat_by_name and iat_by_address strategies.
func (e *Engine) InstallIAT(target *pe.Image, d Descriptor) (*Installed, error) {
	var slot uintptr
	var ok bool
	switch d.Strategy {
	case IATByName:
		slot, ok = target.FindImportSlot(d.TargetModule, d.TargetSymbol)
	case IATByAddress:
		mod, err := windows.LoadLibrary(d.TargetModule)
		if err != nil {
			return nil, fmt.Errorf("%w: load %s: %v", ErrTargetNotFound, d.TargetModule, err)
		}
		addr, aerr := windows.GetProcAddress(mod, d.TargetSymbol)
		if aerr != nil {
			return nil, fmt.Errorf("%w: resolve %s: %v", ErrTargetNotFound, d.TargetSymbol, aerr)
		}
		slot, ok = target.FindImportSlotByAddress(addr)
	default:
		return nil, fmt.Errorf("hook: InstallIAT called with strategy %s", d.Strategy)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, e.describe(d))
	}

	prev := *(*uintptr)(unsafe.Pointer(slot))
	if err := writePointer(slot, d.Fn); err != nil {
		return nil, err
	}

	inst := &Installed{Descriptor: d, TargetSlot: slot, PrevAddr: prev}

	// Patch our own IAT entry for the same symbol to the previous value so
	// code inside the hook can call through the normal symbol instead of
	// recursing back into itself.
	if ownSlot, ok := e.ownImage.FindImportSlot(d.TargetModule, d.TargetSymbol); ok {
		if err := writePointer(ownSlot, prev); err == nil {
			inst.OwnSlot = ownSlot
		}
	}

	flushInstructionCache()
	return inst, nil
}

// allocationGranularity mirrors SYSTEM_INFO.dwAllocationGranularity, always
// 64 KiB on Windows; used by trampoline placement the way alloc_trampoline
// does.
const allocationGranularity = 64 * 1024

// allocTrampoline finds an executable page near hint, the way
// alloc_trampoline walks backward from the target's allocation base.
func allocTrampoline(hint uintptr) (uintptr, error) {
	for i := 0; i < 64; i++ {
		var mbi windows.MemoryBasicInformation
		if err := windows.VirtualQuery(hint, &mbi, unsafe.Sizeof(mbi)); err != nil {
			hint -= allocationGranularity
			continue
		}
		allocBase := uintptr(mbi.AllocationBase)
		if allocBase == 0 {
			allocBase = hint
		}
		trampPage := allocBase - allocationGranularity

		addr, err := windows.VirtualAlloc(trampPage, 4096, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE)
		if err == nil {
			return addr, nil
		}
		hint = trampPage
	}
	return 0, ErrTrampolineAllocFailed
}

func readBytes(addr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// InstallInlineJump implements the inline_jump strategy: locate and
// relocate the target's prologue into a trampoline, then punch a relative
// jump into the target.
func (e *Engine) InstallInlineJump(toHook uintptr, hookFn uintptr) (*Installed, error) {
	toHook = resolveIndirectStub(toHook)

	prolog := binary.LittleEndian.Uint32(readBytes(toHook, 4))
	length := instructionLength(prolog, amd64Tags)
	if length == 0 {
		return nil, fmt.Errorf("%w: prolog %08x at %#x", ErrUnrecognizedPrologue, prolog, toHook)
	}

	tramp, err := allocTrampoline(toHook)
	if err != nil {
		return nil, err
	}

	origBytes := append([]byte(nil), readBytes(toHook, length)...)

	write := tramp
	if err := withWritable(write, 64, func() error {
		for i := 0; i < length; i++ {
			*(*byte)(unsafe.Pointer(write + uintptr(i))) = origBytes[i]
		}
		write += uintptr(length)
		// Relocate a relative jmp found in the copied prologue, exactly as
		// write_trampoline_in does for a leading 0xe9.
		if origBytes[0] == 0xe9 {
			disp := int32(binary.LittleEndian.Uint32(origBytes[1:5]))
			oldIP := int64(toHook) + int64(length)
			newIP := int64(write)
			newDisp := int32(int64(disp) + oldIP - newIP)
			binary.LittleEndian.PutUint32(readBytes(write-4, 4), uint32(newDisp))
		}
		rel := writeRelJmp(write, toHook+uintptr(length))
		copy(readBytes(write, 5), rel[:])
		write += 5
		return nil
	}); err != nil {
		return nil, err
	}

	// Patch the target: requires 5 bytes of nop/int3 padding before toHook
	// to hold a long jump to the trampoline's absolute-jump block; toHook's
	// own first 2 bytes become a short jump back to that long jump. This
	// two-hop shape (rather than a single patch at toHook) is what lets a
	// 64-bit hook address be reached from code that may sit further than a
	// rel32 away.
	patch := toHook - 5
	preceding := append([]byte(nil), readBytes(patch, 5)...)
	if !nopOrInt3Slide(preceding) {
		return nil, fmt.Errorf("%w: no nop/int3 slide before %#x", ErrUnrecognizedPrologue, toHook)
	}

	absJmpAt := write // the FF25+abs64 block lives at the trampoline's current write cursor
	if err := withWritable(write, 14, func() error {
		inst := readBytes(write, 2+4+8)
		binary.LittleEndian.PutUint16(inst, 0x25ff) // jmp qword ptr [rip+0]
		binary.LittleEndian.PutUint32(inst[2:], 0)
		binary.LittleEndian.PutUint64(inst[6:], uint64(hookFn))
		return nil
	}); err != nil {
		return nil, err
	}

	if err := withWritable(patch, 7, func() error {
		rel := writeRelJmp(patch, absJmpAt)
		copy(readBytes(patch, 5), rel[:])
		binary.LittleEndian.PutUint16(readBytes(toHook, 2), 0xf9eb) // jmp $-7, back to patch
		return nil
	}); err != nil {
		return nil, err
	}

	flushInstructionCache()

	return &Installed{
		Descriptor:   Descriptor{Strategy: InlineJump, Fn: hookFn},
		TrampolineAt: tramp,
		// The patch spans the 5 padding bytes before toHook plus the
		// prologue, so Uninstall restores both.
		PatchedAt: patch,
		OrigBytes: append(preceding, origBytes...),
	}, nil
}

// resolveIndirectStub implements follow_jump: if toHook is itself an
// `FF 25 <rel32>` RIP-relative indirect jump stub, resolve to its real
// destination instead of hooking the stub.
func resolveIndirectStub(toHook uintptr) uintptr {
	b := readBytes(toHook, 6)
	if len(b) < 6 {
		return toHook
	}
	imm := int32(binary.LittleEndian.Uint32(b[2:6]))
	dest, ok := followJump(b[0], b[1], imm, toHook+6, func(effAddr uintptr) (uintptr, bool) {
		ptr := *(*uintptr)(unsafe.Pointer(effAddr))
		return ptr, true
	})
	if !ok {
		return toHook
	}
	return dest
}

// Uninstall reverses an install, restoring the pre-install bytes/pointer
// verbatim.
func (e *Engine) Uninstall(inst *Installed) error {
	switch inst.Descriptor.Strategy {
	case IATByName, IATByAddress:
		if err := writePointer(inst.TargetSlot, inst.PrevAddr); err != nil {
			return err
		}
		if inst.OwnSlot != 0 {
			_ = writePointer(inst.OwnSlot, inst.PrevAddr)
		}
	case InlineJump:
		if err := withWritable(inst.PatchedAt, uintptr(len(inst.OrigBytes)), func() error {
			copy(readBytes(inst.PatchedAt, len(inst.OrigBytes)), inst.OrigBytes)
			return nil
		}); err != nil {
			return err
		}
	case DeferredTrap:
		if inst.trapInstalled {
			if err := withWritable(inst.PatchedAt, 1, func() error {
				*(*byte)(unsafe.Pointer(inst.PatchedAt)) = inst.trapByte
				return nil
			}); err != nil {
				return err
			}
		}
	}
	flushInstructionCache()
	return nil
}

const int3Opcode = 0xcc

// InstallDeferredTrap overwrites the target's first byte with int3 and
// records enough to restore it; the actual vectored-exception-handler
// registration lives in trap_windows.go since it is process-global.
func (e *Engine) InstallDeferredTrap(addr uintptr) (*Installed, error) {
	orig := *(*byte)(unsafe.Pointer(addr))
	if err := withWritable(addr, 1, func() error {
		*(*byte)(unsafe.Pointer(addr)) = int3Opcode
		return nil
	}); err != nil {
		return nil, err
	}
	return &Installed{
		Descriptor:    Descriptor{Strategy: DeferredTrap},
		PatchedAt:     addr,
		trapByte:      orig,
		trapInstalled: true,
	}, nil
}
