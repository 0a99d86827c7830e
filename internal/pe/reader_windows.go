//go:build windows

package pe

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// LocalReader reads directly out of the current process's address space.
type LocalReader struct{}

func (LocalReader) ReadAt(addr uintptr, n int) ([]byte, error) {
	buf := make([]byte, n)
	src := unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
	copy(buf, src)
	return buf, nil
}

// RemoteReader reads another process's address space via ReadProcessMemory.
type RemoteReader struct {
	Process windows.Handle
}

func (r RemoteReader) ReadAt(addr uintptr, n int) ([]byte, error) {
	buf := make([]byte, n)
	var read uintptr
	err := windows.ReadProcessMemory(r.Process, addr, &buf[0], uintptr(n), &read)
	if err != nil {
		return nil, fmt.Errorf("pe: ReadProcessMemory at %#x: %w", addr, err)
	}
	if int(read) != n {
		return buf[:read], nil
	}
	return buf, nil
}

// OpenLocal parses the module currently mapped at base in this process.
func OpenLocal(base uintptr) (*Image, error) {
	return Parse(LocalReader{}, base)
}

// OpenRemote parses a module mapped at base inside process.
func OpenRemote(process windows.Handle, base uintptr) (*Image, error) {
	return Parse(RemoteReader{Process: process}, base)
}

// ModuleHandleToBase converts a Windows HMODULE to its base address; on
// Windows HMODULE already *is* the base address, but the conversion makes
// the call sites read like the syscall pattern they're performing.
func ModuleHandleToBase(h windows.Handle) uintptr { return uintptr(h) }
