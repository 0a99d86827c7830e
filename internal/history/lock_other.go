//go:build !windows

package history

import (
	"errors"
	"os"
)

// ErrUnsupportedPlatform is returned by the OS-lock-dependent entry points
// on non-Windows builds; the real database needs LockFileEx/delete-on-close
// semantics this package does not emulate elsewhere.
var ErrUnsupportedPlatform = errors.New("history: unsupported on this platform")

type fileLocker struct{}

func NewFileLocker(f *os.File) Locker { return &fileLocker{} }

func (l *fileLocker) Lock(exclusive bool) error { return ErrUnsupportedPlatform }
func (l *fileLocker) Unlock() error             { return ErrUnsupportedPlatform }

func OpenLiveness(path string) (*os.File, error) { return nil, ErrUnsupportedPlatform }

func TryReap(path string) bool { return false }
