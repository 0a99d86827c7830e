//go:build windows

package inject

import (
	"fmt"
	"path/filepath"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const requiredProcessAccess = windows.PROCESS_QUERY_INFORMATION |
	windows.PROCESS_CREATE_THREAD |
	windows.PROCESS_VM_OPERATION |
	windows.PROCESS_VM_WRITE |
	windows.PROCESS_VM_READ

// Inject performs the load half of the remote-load protocol: open the
// target, verify architecture, stop with ErrAlreadyInstalled if the module
// is already loaded, write the module path into it, and drive LoadLibraryW
// on a remote thread. dllPath is loaded as given: Inject does not copy it
// to a cache directory, does not compare its version, and makes no second
// remote-thread call to the module's init entry point, so opts is not
// delivered to the target.
func Inject(pid uint32, dllPath string, opts Options) error {
	proc, err := windows.OpenProcess(requiredProcessAccess, false, pid)
	if err != nil {
		return fmt.Errorf("inject: OpenProcess(%d): %w", pid, err)
	}
	defer windows.CloseHandle(proc)

	if err := checkArchitectureMatch(proc); err != nil {
		return err
	}

	already, err := IsAlreadyLoaded(proc)
	if err != nil {
		return fmt.Errorf("inject: module enumeration: %w", err)
	}
	if already {
		// Already loaded: no second load and no reconfigure.
		return fmt.Errorf("%w: pid %d", ErrAlreadyInstalled, pid)
	}

	base, err := loadRemoteLibrary(proc, dllPath)
	if err != nil {
		return err
	}

	_ = base // unused: no second remote-thread call is made
	return nil
}

// checkArchitectureMatch compares pointer width between the loader and the
// target via IsWow64Process, matching do_inject_impl's comparison.
func checkArchitectureMatch(target windows.Handle) error {
	var targetWow64, selfWow64 bool
	if err := windows.IsWow64Process(target, &targetWow64); err != nil {
		return fmt.Errorf("inject: IsWow64Process(target): %w", err)
	}
	self := windows.CurrentProcess()
	if err := windows.IsWow64Process(self, &selfWow64); err != nil {
		return fmt.Errorf("inject: IsWow64Process(self): %w", err)
	}
	if targetWow64 != selfWow64 {
		return fmt.Errorf("%w", ErrArchitectureMismatch)
	}
	return nil
}

// IsAlreadyLoaded enumerates the target's modules looking for the editor
// module by name, ported from is_clink_present's Toolhelp32Snapshot walk.
func IsAlreadyLoaded(proc windows.Handle) (bool, error) {
	pid, err := windows.GetProcessId(proc)
	if err != nil {
		return false, err
	}
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE, pid)
	if err != nil {
		return false, fmt.Errorf("inject: CreateToolhelp32Snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var me windows.ModuleEntry32
	me.Size = uint32(unsafe.Sizeof(me))
	if err := windows.Module32First(snap, &me); err != nil {
		return false, nil
	}
	for {
		name := windows.UTF16ToString(me.Module[:])
		if filepath.Base(name) == ModuleFileName {
			return true, nil
		}
		if err := windows.Module32Next(snap, &me); err != nil {
			break
		}
	}
	return false, nil
}

// loadRemoteLibrary writes dllPath into the target and drives LoadLibraryW
// on a remote thread.
func loadRemoteLibrary(proc windows.Handle, dllPath string) (base uintptr, err error) {
	pathUTF16, err := windows.UTF16FromString(dllPath)
	if err != nil {
		return 0, err
	}
	size := uintptr(len(pathUTF16)) * 2

	remoteBuf, err := windows.VirtualAllocEx(proc, 0, size, windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return 0, fmt.Errorf("inject: VirtualAllocEx: %w", err)
	}
	defer windows.VirtualFreeEx(proc, remoteBuf, 0, windows.MEM_RELEASE)

	var written uintptr
	if err := windows.WriteProcessMemory(proc, remoteBuf, (*byte)(unsafe.Pointer(&pathUTF16[0])), size, &written); err != nil {
		return 0, fmt.Errorf("inject: WriteProcessMemory: %w", err)
	}

	kernel32, err := windows.LoadLibrary("kernel32.dll")
	if err != nil {
		return 0, err
	}
	loadLibraryW, err := windows.GetProcAddress(kernel32, "LoadLibraryW")
	if err != nil {
		return 0, err
	}

	if err := suspendOtherThreads(pidOf(proc), true); err != nil {
		// best-effort: continue even if suspension failed, matching the
		// original's lack of a hard dependency on it for correctness.
		_ = err
	}
	defer suspendOtherThreads(pidOf(proc), false)

	thread, _, err := windows.CreateRemoteThread(proc, nil, 0, loadLibraryW, remoteBuf, 0, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: CreateRemoteThread: %v", ErrRemoteThreadFailed, err)
	}
	defer windows.CloseHandle(thread)

	ms := uint32(RemoteThreadTimeout / 1e6)
	if r, err := windows.WaitForSingleObject(thread, ms); err != nil || r != windows.WAIT_OBJECT_0 {
		return 0, fmt.Errorf("%w: remote thread did not exit in time", ErrRemoteThreadFailed)
	}

	var exitCode uint32
	if err := windows.GetExitCodeThread(thread, &exitCode); err != nil {
		return 0, fmt.Errorf("%w: GetExitCodeThread: %v", ErrRemoteThreadFailed, err)
	}
	if exitCode == 0 {
		return 0, fmt.Errorf("%w: LoadLibraryW returned NULL in target", ErrRemoteThreadFailed)
	}
	return uintptr(exitCode), nil
}

func pidOf(proc windows.Handle) uint32 {
	pid, _ := windows.GetProcessId(proc)
	return pid
}

// suspendOtherThreads freezes (or resumes) every thread in pid other than
// the caller's, ported from inject.c's toggle_threads, used to bracket
// the remote-thread creation so the target can't observe a
// half-initialized module.
func suspendOtherThreads(pid uint32, suspend bool) error {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPTHREAD, 0)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(snap)

	self := windows.GetCurrentThreadId()

	var te windows.ThreadEntry32
	te.Size = uint32(unsafe.Sizeof(te))
	if err := windows.Thread32First(snap, &te); err != nil {
		return nil
	}
	for {
		if te.OwnerProcessID == pid && te.ThreadID != self {
			if h, err := windows.OpenThread(windows.THREAD_SUSPEND_RESUME, false, te.ThreadID); err == nil {
				if suspend {
					windows.SuspendThread(h)
				} else {
					windows.ResumeThread(h)
				}
				windows.CloseHandle(h)
			}
		}
		if err := windows.Thread32Next(snap, &te); err != nil {
			break
		}
	}
	return nil
}

// GetParentPID resolves the loader's parent process ID via
// NtQueryInformationProcess, used when no --pid flag was given, ported
// from inject.c's get_parent_pid.
func GetParentPID() (uint32, error) {
	ntdll, err := syscall.LoadDLL("ntdll.dll")
	if err != nil {
		return 0, err
	}
	proc, err := ntdll.FindProc("NtQueryInformationProcess")
	if err != nil {
		return 0, err
	}

	type processBasicInformation struct {
		Reserved1        uintptr
		PebBaseAddress   uintptr
		Reserved2        [2]uintptr
		UniqueProcessID  uintptr
		ParentProcessID  uintptr
	}
	var pbi processBasicInformation
	var returnLength uint32
	r1, _, _ := proc.Call(
		uintptr(windows.CurrentProcess()),
		0, // ProcessBasicInformation
		uintptr(unsafe.Pointer(&pbi)),
		unsafe.Sizeof(pbi),
		uintptr(unsafe.Pointer(&returnLength)),
	)
	if r1 != 0 {
		return 0, fmt.Errorf("inject: NtQueryInformationProcess: status %#x", r1)
	}
	return uint32(pbi.ParentProcessID), nil
}

// GetProfilePath expands a leading "~\" or "~/" to the local-appdata
// directory, matching get_profile_path's CSIDL_LOCAL_APPDATA expansion.
func GetProfilePath(in string) (string, error) {
	if len(in) >= 2 && in[0] == '~' && (in[1] == '\\' || in[1] == '/') {
		appData, err := windows.KnownFolderPath(windows.FOLDERID_LocalAppData, 0)
		if err != nil {
			return "", err
		}
		return filepath.Join(appData, in[2:]), nil
	}
	abs, err := filepath.Abs(in)
	if err != nil {
		return "", err
	}
	return abs, nil
}

// DLLVersion reads the embedded version resource of the file at path. Left as
// a small wrapper so callers can compare against a cached module's version
// via CheckVersion without depending on resource-parsing details here.
func DLLVersion(path string) (Version, error) {
	size, err := windows.GetFileVersionInfoSize(path, nil)
	if err != nil {
		return Version{}, err
	}
	data := make([]byte, size)
	if err := windows.GetFileVersionInfo(path, 0, size, unsafe.Pointer(&data[0])); err != nil {
		return Version{}, err
	}
	var fixedInfo *windows.VS_FIXEDFILEINFO
	var fixedLen uint32
	if err := windows.VerQueryValue(unsafe.Pointer(&data[0]), `\`, unsafe.Pointer(&fixedInfo), &fixedLen); err != nil {
		return Version{}, err
	}
	ms := fixedInfo.FileVersionMS
	ls := fixedInfo.FileVersionLS
	return Version{
		Major: uint16(ms >> 16),
		Minor: uint16(ms & 0xffff),
		Point: uint16(ls >> 16),
	}, nil
}
