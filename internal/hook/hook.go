// Package hook implements the editor's in-process hook engine: IAT patching
// by name or address, inline-jump trampolines, and deferred-trap
// (illegal-instruction) installs.
package hook

import (
	"errors"
	"fmt"

	"github.com/clinkgo/clink/internal/pe"
)

// Strategy selects how a hook redirects a function.
type Strategy int

const (
	IATByName Strategy = iota
	IATByAddress
	InlineJump
	DeferredTrap
)

func (s Strategy) String() string {
	switch s {
	case IATByName:
		return "iat_by_name"
	case IATByAddress:
		return "iat_by_address"
	case InlineJump:
		return "inline_jump"
	case DeferredTrap:
		return "deferred_trap"
	default:
		return "unknown"
	}
}

// Descriptor identifies a hook.
type Descriptor struct {
	TargetModule string
	TargetSymbol string
	Fn           uintptr
	Strategy     Strategy
}

// Installed records everything needed to reverse an install.
type Installed struct {
	Descriptor    Descriptor
	TargetSlot    uintptr // IAT slot address, for iat_* strategies
	OwnSlot       uintptr // this module's own IAT slot for the same symbol
	PrevAddr      uintptr // previous value at TargetSlot/OwnSlot
	TrampolineAt  uintptr // for InlineJump: the allocated trampoline page
	PatchedAt     uintptr // for InlineJump/DeferredTrap: the address patched in the target
	OrigBytes     []byte  // original bytes overwritten at PatchedAt
	trapByte      byte
	trapInstalled bool
}

var (
	ErrTargetNotFound        = errors.New("hook: target_not_found")
	ErrUnrecognizedPrologue  = errors.New("hook: unrecognized_prologue")
	ErrUnsupportedPlatform   = errors.New("hook: unsupported on this platform")
	ErrAlreadyInstalled      = errors.New("hook: already installed")
	ErrTrampolineAllocFailed = errors.New("hook: trampoline allocation failed")
)

// asmTag is one row of the prologue-recognition table ported from
// hook.cpp's get_instruction_length, keyed by architecture.
type asmTag struct {
	expected uint32
	mask     uint32
	length   int // 0 means "derive from mask via maskSize"
}

var amd64Tags = []asmTag{
	{0x38ec8348, 0xffffffff, 0}, // sub rsp, 38h
	{0x0000f3ff, 0x0000ffff, 0}, // push rbx
	{0x00005340, 0x0000ffff, 0}, // push rbx
	{0x00dc8b4c, 0x00ffffff, 0}, // mov r11, rsp
	{0x0000b848, 0x0000f8ff, 10}, // mov reg64, imm64
	{0x000000e9, 0x000000ff, 5},  // jmp addr32
}

var x86Tags = []asmTag{
	{0x0000ff8b, 0x0000ffff, 0}, // mov edi, edi
	{0x000000e9, 0x000000ff, 5}, // jmp addr32
}

// maskSize returns the number of set bytes in a little-endian byte mask,
// ported from hook.cpp's get_mask_size bit trick.
func maskSize(mask uint32) int {
	mask &= 0x01010101
	mask += mask >> 16
	mask += mask >> 8
	return int(mask & 0x0f)
}

// instructionLength looks up how many bytes of prologue must be relocated
// into the trampoline, matching get_instruction_length's table scan.
func instructionLength(prolog uint32, tags []asmTag) int {
	for _, t := range tags {
		if t.expected != prolog&t.mask {
			continue
		}
		if t.length != 0 {
			return t.length
		}
		return maskSize(t.mask)
	}
	return 0
}

// followJump detects a `FF /4` indirect-jump stub (the only opcode form
// clink's hook targets present) and resolves its destination: when the
// bytes about to be patched are themselves an indirect jump (common for
// imported functions routed through a thunk), the real target lies one
// hop further out.
// imm is the 4-byte displacement following the 2-byte opcode; followJump
// adds it to rip (RIP-relative addressing, as on amd64) and passes that
// effective address to resolveAbs, which reads the pointer stored there.
// The x86 absolute disp32 form is not handled.
func followJump(opcode, modrm byte, imm int32, rip uintptr, resolveAbs func(uintptr) (uintptr, bool)) (dest uintptr, followed bool) {
	if opcode != 0xff {
		return 0, false
	}
	if modrm&070 != 040 {
		return 0, false
	}
	if modrm&007 != 5 {
		return 0, false
	}
	return resolveAbs(rip + uintptr(imm))
}

// writeRelJmp encodes a 5-byte `jmp rel32` at writeAt targeting dest,
// returning the bytes to write (ported from write_rel_jmp).
func writeRelJmp(writeAt, dest uintptr) [5]byte {
	disp := int32(int64(dest) - int64(writeAt) - 5)
	var out [5]byte
	out[0] = 0xe9
	out[1] = byte(disp)
	out[2] = byte(disp >> 8)
	out[3] = byte(disp >> 16)
	out[4] = byte(disp >> 24)
	return out
}

// nopOrInt3Slide reports whether all 5 bytes preceding toHook are 0x90 (nop)
// or 0xcc (int3), the padding convention write_trampoline_out relies on
// before it is safe to punch a short jump back into that space.
func nopOrInt3Slide(preceding []byte) bool {
	if len(preceding) != 5 {
		return false
	}
	for _, b := range preceding {
		if b != 0x90 && b != 0xcc {
			return false
		}
	}
	return true
}

// Engine installs and reverses hooks. The platform-specific files supply
// memory read/write/protect/alloc primitives; this file holds the
// architecture table logic shared by both.
type Engine struct {
	ownImage *pe.Image
}

func (e *Engine) describe(d Descriptor) string {
	return fmt.Sprintf("%s!%s via %s", d.TargetModule, d.TargetSymbol, d.Strategy)
}
