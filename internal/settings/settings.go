// Package settings implements the flat key=value settings file consulted
// by the editor: a file watched for external edits (via fsnotify) with
// typed accessors and an in-process change-notification channel.
package settings

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Descriptor documents one recognized setting: its default and a short
// description. `clink set` with no arguments lists each known name with
// its current value or default; the description is not printed.
type Descriptor struct {
	Name        string
	Default     string
	Description string
}

// KnownSettings is the built-in catalog of settings this editor
// recognizes, used for documentation and for filling in defaults that
// the settings file itself is silent on.
var KnownSettings = []Descriptor{
	{"history.max_lines", "50000", "maximum number of history entries retained"},
	{"history.dupe_mode", "erase_prev", "add | ignore | erase_prev"},
	{"history.ignore_space", "true", "ignore lines beginning with whitespace"},
	{"history.shared", "false", "use a single shared bank across all sessions"},
	{"match.case_fold", "true", "fold dash/underscore and case when matching"},
	{"match.translate_slashes", "true", "normalize path separators in matches"},
	{"lineeditor.ansi", "true", "enable ANSI escape sequence output"},
	{"update.auto_check", "false", "check for a newer release whenever clink info runs"},
}

// Store holds the parsed contents of a settings file plus a watcher that
// reloads on external writes (e.g. an editor or `clink set` invocation
// from another process).
type Store struct {
	path string

	mu     sync.RWMutex
	values map[string]string

	watchers []func(name string)

	ctx    context.Context
	cancel context.CancelFunc
}

// Open reads path (creating an empty file if absent) and starts watching
// it for external changes. Call Close to stop the watcher.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("settings: mkdir: %w", err)
	}
	if f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o600); err == nil {
		f.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{path: path, values: map[string]string{}, ctx: ctx, cancel: cancel}

	if err := s.reload(); err != nil && !os.IsNotExist(err) {
		cancel()
		return nil, err
	}

	if err := s.watch(); err != nil {
		// A watcher failure is not fatal: the store still works, it just
		// won't notice edits made by another process until next Open.
		_ = err
	}

	return s, nil
}

func (s *Store) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-s.ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := s.reload(); err == nil {
						s.notifyAll()
					}
				}
			case <-watcher.Errors:
				// Ignore transient watch errors; the next successful event
				// still reloads the current file contents.
			}
		}
	}()
	return nil
}

// reload re-reads the file from disk, replacing the in-memory map.
func (s *Store) reload() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		s.mu.Lock()
		s.values = map[string]string{}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	next := map[string]string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		next[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.values = next
	s.mu.Unlock()
	return nil
}

// OnChange registers fn to run (by name, not matched to a single key)
// whenever the file is reloaded after an external write.
func (s *Store) OnChange(fn func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *Store) notifyAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.watchers {
		go fn("*")
	}
}

// Get returns the raw string value for name, or def if unset.
func (s *Store) Get(name, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[name]; ok {
		return v
	}
	return def
}

// GetBool parses name as a boolean ("true"/"1" are true), defaulting to
// def on an unset or unparseable value.
func (s *Store) GetBool(name string, def bool) bool {
	v, ok := s.lookup(name)
	if !ok {
		return def
	}
	switch v {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return def
}

// GetInt parses name as a decimal integer, defaulting to def on an unset
// or unparseable value.
func (s *Store) GetInt(name string, def int) int {
	v, ok := s.lookup(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *Store) lookup(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set writes name=value, persisting the whole file and updating the
// in-memory map immediately (without waiting for the watcher to fire on
// our own write).
func (s *Store) Set(name, value string) error {
	s.mu.Lock()
	s.values[name] = value
	snapshot := make(map[string]string, len(s.values))
	for k, v := range s.values {
		snapshot[k] = v
	}
	s.mu.Unlock()

	return writeAll(s.path, snapshot)
}

// All returns a copy of every currently-set key/value pair.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func writeAll(path string, values map[string]string) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(f, "%s=%s\n", k, values[k]); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Close stops the file watcher.
func (s *Store) Close() error {
	s.cancel()
	return nil
}
