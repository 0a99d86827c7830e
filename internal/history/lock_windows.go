//go:build windows

package history

import (
	"os"

	"golang.org/x/sys/windows"
)

// fileLocker implements Locker over a real *os.File using LockFileEx,
// matching history_db.cpp's bank_lock.
type fileLocker struct {
	f *os.File
}

func NewFileLocker(f *os.File) Locker { return &fileLocker{f: f} }

const lockRangeSize = 1 << 30 // cover the whole practical file size

func (l *fileLocker) Lock(exclusive bool) error {
	var flags uint32
	if exclusive {
		flags = windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	var overlapped windows.Overlapped
	return windows.LockFileEx(windows.Handle(l.f.Fd()), flags, 0, lockRangeSize, 0, &overlapped)
}

func (l *fileLocker) Unlock() error {
	var overlapped windows.Overlapped
	return windows.UnlockFileEx(windows.Handle(l.f.Fd()), 0, lockRangeSize, 0, &overlapped)
}

// OpenLiveness creates the delete-on-close, hidden liveness marker file
// that proves a session is still alive: it opens with
// FILE_FLAG_DELETE_ON_CLOSE | FILE_ATTRIBUTE_HIDDEN so the OS itself
// removes it the instant the owning process exits or crashes.
func OpenLiveness(path string) (*os.File, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(p,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.CREATE_ALWAYS,
		windows.FILE_FLAG_DELETE_ON_CLOSE|windows.FILE_ATTRIBUTE_HIDDEN,
		0)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(h), path), nil
}

// TryReap attempts to open-and-immediately-delete path; success proves no
// other process holds it open with delete-on-close semantics, meaning its
// owning session is gone.
func TryReap(path string) bool {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	h, err := windows.CreateFile(p,
		windows.GENERIC_READ|windows.DELETE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_DELETE_ON_CLOSE,
		0)
	if err != nil {
		// Already gone, or truly held open (liveness proven): either way
		// the caller's liveness-file absence check handles the former.
		return errNotExist(err)
	}
	windows.CloseHandle(h)
	return true
}

func errNotExist(err error) bool {
	return err == windows.ERROR_FILE_NOT_FOUND || err == windows.ERROR_PATH_NOT_FOUND
}
