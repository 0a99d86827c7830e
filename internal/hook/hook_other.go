//go:build !windows

package hook

import "github.com/clinkgo/clink/internal/pe"

// On non-Windows platforms every entry point reports unsupported rather
// than compiling real memory-patching code: there is no cross-platform
// equivalent of the IAT/inline-jump/trap strategies this package implements.

func NewEngine(ownBase uintptr) (*Engine, error) {
	return nil, ErrUnsupportedPlatform
}

func (e *Engine) InstallIAT(target *pe.Image, d Descriptor) (*Installed, error) {
	return nil, ErrUnsupportedPlatform
}

func (e *Engine) InstallInlineJump(toHook uintptr, hookFn uintptr) (*Installed, error) {
	return nil, ErrUnsupportedPlatform
}

func (e *Engine) InstallDeferredTrap(addr uintptr) (*Installed, error) {
	return nil, ErrUnsupportedPlatform
}

func (e *Engine) Uninstall(inst *Installed) error {
	return ErrUnsupportedPlatform
}
