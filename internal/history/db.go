package history

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// newLocker, openLiveness and tryReap are indirected through package
// variables (rather than called directly) so the platform-independent
// portions of DB's logic can be exercised under a fake Locker/liveness
// implementation in tests, while production code always runs the real
// Windows-backed ones from lock_windows.go.
var (
	newLocker    = NewFileLocker
	openLiveness = OpenLiveness
	tryReap      = TryReap
)

// Clock supplies the time/tick/pid triple used to generate concurrency
// tags; overridable so tag generation is deterministic in tests, mirroring
// generate_new_tag's GetTickCount/time() calls.
type Clock interface {
	Now() (unixTime, tick uint32)
}

type systemClock struct{ start time.Time }

func (c systemClock) Now() (uint32, uint32) {
	now := time.Now()
	return uint32(now.Unix()), uint32(now.Sub(c.start).Milliseconds())
}

// DB is one session's view of the history database.
type DB struct {
	dir    string
	names  FileNames
	opts   Options
	pid    uint32
	clock  Clock
	disamb tagDisambiguator

	master   *os.File
	session  *os.File
	removals *os.File
	liveness io.Closer

	masterLock  Locker
	sessionLock Locker

	masterTag Tag
	onEvent   func(event string, detail string)
}

// Open materializes bank files, attaches or creates the concurrency tag,
// reaps orphaned sessions, and (unless Shared) opens a session bank.
func Open(dir string, pid uint32, opts Options, onEvent func(string, string)) (*DB, error) {
	if onEvent == nil {
		onEvent = func(string, string) {}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	names := ComputeFileNames(dir, "clink_history", pid)

	db := &DB{
		dir:     dir,
		names:   names,
		opts:    opts,
		pid:     pid,
		clock:   systemClock{start: time.Time{}},
		onEvent: onEvent,
	}

	master, err := os.OpenFile(names.MasterLines, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	db.master = master
	db.masterLock = newLocker(master)

	if err := db.ensureTag(); err != nil {
		master.Close()
		return nil, err
	}

	if err := db.reap(); err != nil {
		onEvent("history_reap_failed", err.Error())
	}

	if opts.Shared {
		return db, nil
	}

	// The ".local" lines path only applies when the master bank is disabled
	// entirely, which this DB always keeps enabled; ordinary non-shared
	// sessions use SessionLines.
	session, err := os.OpenFile(names.SessionLines, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		master.Close()
		return nil, err
	}
	db.session = session
	db.sessionLock = newLocker(session)

	// The removals file backs deferred deletion of master-bank entries
	// (see Remove), which only a non-shared session ever needs: a shared
	// session deletes master entries in place instead. DupeMode governs
	// Append's own dupe handling and has no bearing on this.
	if !opts.Shared {
		removals, err := os.OpenFile(names.Removals, os.O_RDWR|os.O_CREATE, 0o600)
		if err != nil {
			session.Close()
			master.Close()
			return nil, err
		}
		db.removals = removals
	}

	liveness, err := openLiveness(names.Liveness)
	if err == nil {
		db.liveness = liveness
	}
	// A liveness-open failure (e.g. unsupported platform) is not fatal: the
	// session simply becomes un-reapable by others until process exit,
	// matching the original's best-effort logging rather than abort.

	return db, nil
}

// ensureTag attaches the master bank's concurrency tag: if the file is
// non-empty but its first line is not a valid tag, exclusively lock and
// rewrite with a fresh tag, preserving other lines (a compaction-like
// pass). If the file is empty, just install a tag.
func (db *DB) ensureTag() error {
	if err := db.masterLock.Lock(true); err != nil {
		return fmt.Errorf("%w: %v", ErrLockedContention, err)
	}
	defer db.masterLock.Unlock()

	if _, err := db.master.Seek(0, io.SeekStart); err != nil {
		return err
	}
	it := NewLineIter(db.master)
	first, err := it.Next()
	if err == io.EOF {
		return db.installFreshTag(nil)
	}
	if err != nil {
		return err
	}
	if IsTagLine(first.Raw) {
		if tag, perr := ParseTag(trimEOL(first.Raw)); perr == nil {
			db.masterTag = tag
			return nil
		}
	}

	// Corrupt or missing tag: rewrite, preserving subsequent entries
	// verbatim. The first line itself was supposed to be the tag slot and
	// is never a real entry, so only what follows it is retained.
	db.onEvent("history_ctag_recovered", db.names.MasterLines)
	if _, err := db.master.Seek(int64(len(first.Raw)), io.SeekStart); err != nil {
		return err
	}
	result, err := Compact(db.master, nil, CompactOptions{})
	if err != nil {
		return err
	}
	return db.installFreshTag(result.Kept)
}

func (db *DB) installFreshTag(keep []string) error {
	tag := db.newTag()
	if err := db.master.Truncate(0); err != nil {
		return err
	}
	if _, err := db.master.Seek(0, io.SeekStart); err != nil {
		return err
	}
	w := tag.String() + "\n"
	for _, l := range keep {
		w += l + "\n"
	}
	if _, err := db.master.WriteString(w); err != nil {
		return err
	}
	db.masterTag = tag
	return nil
}

func (db *DB) newTag() Tag {
	unixTime, tick := db.clock.Now()
	return GenerateTag(unixTime, tick, db.pid, db.disamb.next())
}

// activeBank returns which bank new appends target: master if Shared,
// else session.
func (db *DB) activeBank() Bank {
	if db.opts.Shared {
		return BankMaster
	}
	return BankSession
}

// Append adds line, honoring ignore_space and dupe_mode.
func (db *DB) Append(line string) (AppendResult, error) {
	if shouldIgnore(line, db.opts.IgnoreSpace) {
		return SkippedEmpty, nil
	}
	if len(line) > MaxEntryLength {
		return 0, ErrEntryTooLong
	}

	unlock, err := lockBoth(db.masterLock, db.sessionLock, true)
	if err != nil {
		return 0, err
	}
	defer unlock()

	target := db.activeFile()

	if db.opts.IOPerLine && db.activeBank() == BankMaster {
		if err := db.reloadMasterTag(); err != nil {
			return 0, err
		}
	}

	switch db.opts.DupeMode {
	case DupeIgnore:
		if exists, err := db.lineExists(target, line); err != nil {
			return 0, err
		} else if exists {
			return SkippedDuplicate, nil
		}
	case DupeErasePrev:
		if err := db.tombstoneMatching(target, line); err != nil {
			return 0, err
		}
	}

	if _, err := target.Seek(0, io.SeekEnd); err != nil {
		return 0, err
	}
	if _, err := target.WriteString(line + "\n"); err != nil {
		return 0, err
	}
	if db.opts.IOPerLine {
		if err := target.Sync(); err != nil {
			return 0, err
		}
	}
	return Added, nil
}

// reloadMasterTag re-reads the master bank's first line and refreshes
// db.masterTag if a sibling session has rewritten it (via Compact) since
// this DB was opened. Append already rescans the whole bank for dupe
// handling on every call, so lines written by siblings are always visible;
// this only keeps the in-memory tag from going stale. It is gated on
// IOPerLine so that a session which wants each line to land (and become
// visible to siblings) before the next one is appended pays this extra
// read, matching the original's per-line reload-then-save history mode
// rather than the default batched behavior.
func (db *DB) reloadMasterTag() error {
	if _, err := db.master.Seek(0, io.SeekStart); err != nil {
		return err
	}
	it := NewLineIter(db.master)
	first, err := it.Next()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	if !IsTagLine(first.Raw) {
		return nil
	}
	if tag, perr := ParseTag(trimEOL(first.Raw)); perr == nil {
		db.masterTag = tag
	}
	return nil
}

func (db *DB) activeFile() *os.File {
	if db.activeBank() == BankMaster {
		return db.master
	}
	return db.session
}

func (db *DB) lineExists(f *os.File, line string) (bool, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	it := NewLineIter(f)
	for {
		l, err := it.Next()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if IsTombstoned(l.Raw) {
			continue
		}
		if VisibleText(l.Raw) == line {
			return true, nil
		}
	}
}

// tombstoneMatching overwrites the first byte of every prior occurrence of
// line with the sentinel, implementing the erase_prev dupe mode.
func (db *DB) tombstoneMatching(f *os.File, line string) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	it := NewLineIter(f)
	var offsets []uint32
	for {
		l, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if IsTombstoned(l.Raw) {
			continue
		}
		if VisibleText(l.Raw) == line {
			offsets = append(offsets, l.Offset)
		}
	}
	for _, off := range offsets {
		if _, err := f.WriteAt([]byte{Sentinel}, int64(off)); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes a single entry, immediately if the bank is the session
// bank (or shared mode), deferred via the removals file otherwise.
func (db *DB) Remove(id LineID) error {
	unlock, err := lockBoth(db.masterLock, db.sessionLock, true)
	if err != nil {
		return err
	}
	defer unlock()

	if id.BankOf() == BankMaster && !db.opts.Shared {
		if db.removals == nil {
			return fmt.Errorf("history: no removals file open for deferred delete")
		}
		if _, err := db.removals.Seek(0, io.SeekEnd); err != nil {
			return err
		}
		_, err := fmt.Fprintf(db.removals, "%d\n", id.Offset())
		return err
	}

	var f *os.File
	if id.BankOf() == BankMaster {
		f = db.master
	} else {
		f = db.session
	}
	_, err = f.WriteAt([]byte{Sentinel}, int64(id.Offset()))
	return err
}

// Entry is one record yielded by Iter.
type Entry struct {
	ID   LineID
	Line string
}

// Iter returns every visible entry, master first then session, applying
// the session's own removals against master.
func (db *DB) Iter() ([]Entry, error) {
	unlock, err := lockBoth(db.masterLock, db.sessionLock, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var removals RemovalSet
	if db.removals != nil {
		if _, err := db.removals.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		removals, err = ParseRemovals(db.removals)
		if err != nil {
			return nil, err
		}
	}

	var out []Entry
	if _, err := db.master.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	it := NewLineIter(db.master)
	for {
		l, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if l.Offset == 0 && IsTagLine(l.Raw) {
			continue
		}
		if IsTombstoned(l.Raw) {
			continue
		}
		if _, removed := removals[l.Offset]; removed {
			continue
		}
		id, err := NewLineID(l.Offset, BankMaster, true)
		if err != nil {
			continue
		}
		out = append(out, Entry{ID: id, Line: VisibleText(l.Raw)})
	}

	if db.session != nil {
		if _, err := db.session.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		sit := NewLineIter(db.session)
		for {
			l, err := sit.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			if IsTombstoned(l.Raw) {
				continue
			}
			id, err := NewLineID(l.Offset, BankSession, true)
			if err != nil {
				continue
			}
			out = append(out, Entry{ID: id, Line: VisibleText(l.Raw)})
		}
	}

	return out, nil
}

// Compact rewrites the master bank. It first folds any pending session
// removals into the in-memory removals set, then rewrites the file under a
// fresh tag. When force is false and nothing would be dropped, the file is
// left untouched and the tag is not re-stamped.
func (db *DB) Compact(force bool, unique bool) error {
	if err := db.masterLock.Lock(true); err != nil {
		return fmt.Errorf("%w: %v", ErrLockedContention, err)
	}
	defer db.masterLock.Unlock()

	removals, err := db.collectRemovals()
	if err != nil {
		return err
	}

	if _, err := db.master.Seek(0, io.SeekStart); err != nil {
		return err
	}
	maxLines := ClampMaxHistory(db.opts.MaxLines)
	result, err := Compact(db.master, removals, CompactOptions{MaxLines: maxLines, Unique: unique})
	if err != nil {
		return err
	}
	if !force && result.Dropped == 0 {
		return nil
	}
	if err := db.installFreshTag(result.Kept); err != nil {
		return err
	}
	if db.removals != nil {
		if err := db.removals.Truncate(0); err != nil {
			return err
		}
	}
	if err := db.truncateSiblingRemovals(); err != nil {
		db.onEvent("history_compact_truncate_failed", err.Error())
	}
	db.onEvent("history_compacted", fmt.Sprintf("dropped=%d kept=%d", result.Dropped, len(result.Kept)))
	return nil
}

// collectRemovals merges this session's own pending removals (if any) with
// every sibling session's *.removals file in db.dir, using the same
// directory-scan and prefix-matching pattern reap uses to find sibling bank
// files. Without this, a compaction only ever sees its own session's
// deferred deletions and a concurrent sibling's pending Remove would survive
// a force compact.
func (db *DB) collectRemovals() (RemovalSet, error) {
	merged := RemovalSet{}

	if db.removals != nil {
		if _, err := db.removals.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		rs, err := ParseRemovals(db.removals)
		if err != nil {
			return nil, err
		}
		for off, v := range rs {
			merged[off] = v
		}
	}

	entries, err := os.ReadDir(db.dir)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(db.names.MasterLines) + "_"
	ownRemovals := filepath.Base(db.names.Removals)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base) || !strings.HasSuffix(name, ".removals") {
			continue
		}
		if name == ownRemovals {
			continue
		}
		if err := mergeRemovalsFile(filepath.Join(db.dir, name), merged); err != nil {
			db.onEvent("history_compact_scan_failed", name+": "+err.Error())
		}
	}
	return merged, nil
}

func mergeRemovalsFile(path string, merged RemovalSet) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	rs, err := ParseRemovals(f)
	if err != nil {
		return err
	}
	for off, v := range rs {
		merged[off] = v
	}
	return nil
}

// truncateSiblingRemovals clears every sibling session's removals file once
// its contents have been folded into a force compact, so the same deferred
// deletion is not reapplied (harmlessly, but wastefully) by a later compact.
func (db *DB) truncateSiblingRemovals() error {
	entries, err := os.ReadDir(db.dir)
	if err != nil {
		return err
	}
	base := filepath.Base(db.names.MasterLines) + "_"
	ownRemovals := filepath.Base(db.names.Removals)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base) || !strings.HasSuffix(name, ".removals") {
			continue
		}
		if name == ownRemovals {
			continue
		}
		f, err := os.OpenFile(filepath.Join(db.dir, name), os.O_WRONLY, 0o600)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		err = f.Truncate(0)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Clear discards every entry in both banks, leaving only a fresh
// concurrency tag in the master bank.
func (db *DB) Clear() error {
	if err := db.masterLock.Lock(true); err != nil {
		return fmt.Errorf("%w: %v", ErrLockedContention, err)
	}
	defer db.masterLock.Unlock()

	if err := db.installFreshTag(nil); err != nil {
		return err
	}
	if db.removals != nil {
		if err := db.removals.Truncate(0); err != nil {
			return err
		}
	}
	if db.session != nil {
		if err := db.session.Truncate(0); err != nil {
			return err
		}
	}
	db.onEvent("history_cleared", "")
	return nil
}

// reap scans the directory for orphaned session files left behind by
// processes that exited without closing cleanly.
func (db *DB) reap() error {
	entries, err := os.ReadDir(db.dir)
	if err != nil {
		return err
	}
	base := filepath.Base(db.names.MasterLines) + "_"
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base) {
			continue
		}
		if strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".removals") {
			continue
		}
		livenessPath := filepath.Join(db.dir, name+"~")
		if !tryReap(livenessPath) {
			continue // still alive
		}
		full := filepath.Join(db.dir, name)
		if strings.HasSuffix(name, ".local") {
			// .local session files are always just deleted, never folded
			// into master.
			os.Remove(full)
			os.Remove(full + ".removals")
			continue
		}
		if err := db.foldOrphan(full); err != nil {
			db.onEvent("history_reap_failed", full+": "+err.Error())
			continue
		}
		os.Remove(full)
		os.Remove(full + ".removals")
	}
	return nil
}

func (db *DB) foldOrphan(orphanPath string) error {
	orphan, err := os.Open(orphanPath)
	if err != nil {
		return err
	}
	defer orphan.Close()

	it := NewLineIter(orphan)
	var lines []string
	for {
		l, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if IsTombstoned(l.Raw) {
			continue
		}
		lines = append(lines, VisibleText(l.Raw))
	}

	if _, err := db.master.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := db.master.WriteString(l + "\n"); err != nil {
			return err
		}
	}

	removalsPath := orphanPath + ".removals"
	if rf, err := os.Open(removalsPath); err == nil {
		defer rf.Close()
		set, err := ParseRemovals(rf)
		if err == nil {
			if _, err := db.master.Seek(0, io.SeekStart); err == nil {
				mit := NewLineIter(db.master)
				for {
					l, err := mit.Next()
					if err == io.EOF {
						break
					}
					if err != nil {
						break
					}
					if _, ok := set[l.Offset]; ok && !IsTombstoned(l.Raw) {
						db.master.WriteAt([]byte{Sentinel}, int64(l.Offset))
					}
				}
			}
		}
	}
	return nil
}

// Close releases the liveness file (and, with it, this session's claim on
// its bank), optionally compacting first.
func (db *DB) Close(compactFirst bool) error {
	if compactFirst {
		if err := db.Compact(true, false); err != nil {
			db.onEvent("history_close_compact_failed", err.Error())
		}
	}
	if db.liveness != nil {
		db.liveness.Close()
	}
	if db.removals != nil {
		db.removals.Close()
	}
	if db.session != nil {
		db.session.Close()
	}
	return db.master.Close()
}
