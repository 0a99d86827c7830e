// Package lineeditor bridges match.Pipeline and history.DB to
// github.com/chzyer/readline, the external line-editing collaborator
// that actually renders the prompt and reads keystrokes. Session.Readline
// reads one edited line; no code in this repository installs a
// console-read hook that calls it.
package lineeditor

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"

	"github.com/clinkgo/clink/internal/history"
	"github.com/clinkgo/clink/internal/match"
)

// ansiEscape matches a CSI escape sequence: ESC '[' followed by parameter
// and intermediate bytes, terminated by a final byte in 0x40-0x7E.
var ansiEscape = regexp.MustCompile("\x1b\\[[0-9;?]*[A-Za-z]")

// ansiStrippingWriter removes ANSI escape sequences from every write,
// used in place of the console's raw stdout when lineeditor.ansi is
// disabled.
type ansiStrippingWriter struct {
	w io.Writer
}

func newAnsiStrippingWriter(w io.Writer) *ansiStrippingWriter {
	return &ansiStrippingWriter{w: w}
}

func (a *ansiStrippingWriter) Write(p []byte) (int, error) {
	stripped := ansiEscape.ReplaceAll(p, nil)
	if _, err := a.w.Write(stripped); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Completer adapts a match.Pipeline to readline.AutoCompleter.
type Completer struct {
	pipeline *match.Pipeline
}

// NewCompleter wraps pipeline for use as a readline.AutoCompleter.
func NewCompleter(pipeline *match.Pipeline) *Completer {
	return &Completer{pipeline: pipeline}
}

// Do implements readline.AutoCompleter: it calls the pipeline with the
// full line and cursor offset, then returns each candidate as the
// suffix readline should append to the already-typed word, per
// readline's own Do contract.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	s := string(line)
	set := c.pipeline.Generate(s, pos)
	matches := set.Matches()
	if len(matches) == 0 {
		return nil, 0
	}

	word := match.WordAt(s, pos)
	wordLen := len([]rune(word))

	suffixes := make([][]rune, 0, len(matches))
	for _, m := range matches {
		text := m.Text
		if m.Meta.DisplayOverride != "" {
			text = m.Meta.DisplayOverride
		}
		runes := []rune(text)
		if wordLen <= len(runes) && strings.HasPrefix(strings.ToLower(text), strings.ToLower(word)) {
			suffixes = append(suffixes, runes[wordLen:])
		} else {
			suffixes = append(suffixes, runes)
		}
	}
	return suffixes, wordLen
}

// Session owns a readline.Instance configured to read completions from
// a match.Pipeline and seed its in-memory history from a history.DB.
type Session struct {
	rl  *readline.Instance
	db  *history.DB
}

// Options configures Open.
type Options struct {
	Prompt   string
	Pipeline *match.Pipeline
	History  *history.DB
	// ANSI enables ANSI escape sequence output (coloring, cursor
	// movement beyond plain backspacing). When false, escape sequences
	// readline would otherwise emit are stripped before they reach the
	// console.
	ANSI bool
}

// Open builds a readline.Instance wired to opts.Pipeline for tab
// completion and preloaded from opts.History for up-arrow recall. It
// refuses to attach when stdout is not a real console.
func Open(opts Options) (*Session, error) {
	if !isatty.IsTerminal(uintptr(1)) && !isatty.IsCygwinTerminal(uintptr(1)) {
		return nil, fmt.Errorf("lineeditor: stdout is not a console, refusing to attach")
	}

	cfg := &readline.Config{
		Prompt:          opts.Prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	}
	if !opts.ANSI {
		cfg.Stdout = newAnsiStrippingWriter(os.Stdout)
	}
	if opts.Pipeline != nil {
		cfg.AutoComplete = NewCompleter(opts.Pipeline)
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, fmt.Errorf("lineeditor: %w", err)
	}

	s := &Session{rl: rl, db: opts.History}
	if opts.History != nil {
		s.seedHistory()
	}
	return s, nil
}

// seedHistory replays the on-disk history into readline's in-memory
// ring so up-arrow recall works from the first keystroke, standing in
// for Config.HistoryFile since history.DB owns the bank files itself.
func (s *Session) seedHistory() {
	lines, err := s.db.Iter()
	if err != nil {
		return
	}
	for _, e := range lines {
		s.rl.SaveHistory(e.Line)
	}
}

// Readline reads one line, recording it to the history database on
// success. Returns io.EOF on EOF and readline.ErrInterrupt on Ctrl-C,
// matching readline's own sentinel values so callers can reuse its
// switch-on-error idiom directly.
func (s *Session) Readline() (string, error) {
	line, err := s.rl.Readline()
	if err != nil {
		return "", err
	}
	if s.db != nil && strings.TrimSpace(line) != "" {
		_, _ = s.db.Append(line)
	}
	return line, nil
}

// Close releases the underlying readline.Instance.
func (s *Session) Close() error {
	return s.rl.Close()
}
