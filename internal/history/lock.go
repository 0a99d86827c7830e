package history

import "fmt"

// Locker is a whole-file OS range lock (LockFileEx-style), shared (reader)
// or exclusive (writer).
type Locker interface {
	Lock(exclusive bool) error
	Unlock() error
}

// lockBoth acquires master then session, in that fixed order, always.
// Taking them in the opposite order anywhere in the codebase is a
// deadlock waiting to happen. session may be nil when operating in
// shared mode, where there is no session bank at all.
func lockBoth(master, session Locker, exclusive bool) (unlock func(), err error) {
	if err := master.Lock(exclusive); err != nil {
		return nil, fmt.Errorf("history: lock master: %w", err)
	}
	if session == nil {
		return func() { _ = master.Unlock() }, nil
	}
	if err := session.Lock(exclusive); err != nil {
		_ = master.Unlock()
		return nil, fmt.Errorf("history: lock session: %w", err)
	}
	return func() {
		_ = session.Unlock()
		_ = master.Unlock()
	}, nil
}
