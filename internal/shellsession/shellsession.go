// Package shellsession tracks the shells attached to a running module:
// one Session per injected process, keyed by a UUID that serves as the
// session's "=clink.id" value, carrying liveness and the
// counters clink info reports. Adapted from session.Manager's
// UUID-keyed record shape, with the chat-message/provider bookkeeping
// dropped since a shell session has no conversation to persist.
package shellsession

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stats holds the counters Registry.Stats reports for `clink info`.
type Stats struct {
	HooksInstalled  int
	HistoryAppends  int
	HistoryCompacts int
	GeneratorFaults int
}

// Session is one shell process's bookkeeping record.
type Session struct {
	ID         string // the =clink.id value
	PID        uint32
	Exe        string // path to the host shell executable
	HistoryDir string // history bank directory for this session
	StartedAt  time.Time
	lastSeen   time.Time

	mu    sync.Mutex
	stats Stats
}

// Touch records that the session is still alive.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
}

// LastSeen returns the last time Touch was called.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Alive reports whether the session has been touched within maxAge.
func (s *Session) Alive(maxAge time.Duration) bool {
	return time.Since(s.LastSeen()) < maxAge
}

// IncHooksInstalled, IncHistoryAppend, IncHistoryCompact and
// IncGeneratorFault update the session's counters. The hook engine,
// history.DB and match.Pipeline never reference Session; cmd/clink-module
// bumps IncGeneratorFault from the pipeline's OnFault callback.
func (s *Session) IncHooksInstalled()  { s.bump(func(st *Stats) { st.HooksInstalled++ }) }
func (s *Session) IncHistoryAppend()   { s.bump(func(st *Stats) { st.HistoryAppends++ }) }
func (s *Session) IncHistoryCompact()  { s.bump(func(st *Stats) { st.HistoryCompacts++ }) }
func (s *Session) IncGeneratorFault()  { s.bump(func(st *Stats) { st.GeneratorFaults++ }) }

func (s *Session) bump(f func(*Stats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.stats)
}

// StatsSnapshot returns a snapshot of the session's counters.
func (s *Session) StatsSnapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Registry tracks every Session known to the current process, indexed
// by both ID and PID so Open can recover an existing record for a PID
// that re-attaches (e.g. after a module reload) instead of minting a
// fresh identity.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Session
	byPID    map[uint32]*Session
	maxIdle  time.Duration
}

// NewRegistry builds an empty Registry. maxIdle governs Alive/Reap;
// a Session not touched within maxIdle is considered dead.
func NewRegistry(maxIdle time.Duration) *Registry {
	if maxIdle <= 0 {
		maxIdle = 10 * time.Minute
	}
	return &Registry{
		byID:    map[string]*Session{},
		byPID:   map[uint32]*Session{},
		maxIdle: maxIdle,
	}
}

// Open assigns or recovers the Session for pid. A second injection
// into the same PID (module reload, re-exec) returns the existing
// record rather than minting a new =clink.id.
func (r *Registry) Open(pid uint32, exe, historyDir string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.byPID[pid]; ok {
		s.Touch()
		return s
	}

	s := &Session{
		ID:         uuid.New().String(),
		PID:        pid,
		Exe:        exe,
		HistoryDir: historyDir,
		StartedAt:  time.Now(),
		lastSeen:   time.Now(),
	}
	r.byID[s.ID] = s
	r.byPID[pid] = s
	return s
}

// Get looks up a Session by its =clink.id value.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// Close removes a session's bookkeeping, called when its shell exits.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("shellsession: %q not registered", id)
	}
	delete(r.byID, id)
	delete(r.byPID, s.PID)
	return nil
}

// Reap drops every session not touched within the registry's maxIdle,
// returning the IDs it removed.
func (r *Registry) Reap() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dead []string
	for id, s := range r.byID {
		if !s.Alive(r.maxIdle) {
			dead = append(dead, id)
			delete(r.byID, id)
			delete(r.byPID, s.PID)
		}
	}
	return dead
}

// List returns every live session, in no particular order.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Stats returns the named session's counters for `clink info`.
func (r *Registry) Stats(id string) (Stats, error) {
	s, ok := r.Get(id)
	if !ok {
		return Stats{}, fmt.Errorf("shellsession: %q not registered", id)
	}
	return s.StatsSnapshot(), nil
}
