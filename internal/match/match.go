// Package match implements the completion pipeline: a priority-ordered
// generator registry, match set assembly with longest-common-denominator
// computation, and quoting/slash-translation/case-folding post-processing.
package match

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrGeneratorFault marks a generator that panicked or returned an error;
// the pipeline treats such a generator as having contributed no matches
// and continues with the rest of the registry.
var ErrGeneratorFault = errors.New("match.generator_fault")

// Delimiters is the fixed word-boundary set: whitespace and the shell
// metacharacters that end a word being completed.
const Delimiters = " \t<>|=;&"

// SuffixPolicy controls what, if anything, is appended to an accepted
// match.
type SuffixPolicy int

const (
	NoSuffix SuffixPolicy = iota
	DirectorySuffix          // append the path separator for directories
)

// Meta carries per-match metadata alongside its text.
type Meta struct {
	IsDirectory     bool
	DisplayOverride string
	Suffix          SuffixPolicy
}

// Match pairs a candidate string with its metadata.
type Match struct {
	Text string
	Meta Meta
}

// Set is the pipeline's output: an insertion-ordered, string-unique
// collection of matches plus a computed LCD.
type Set struct {
	order []string
	byKey map[string]Match
	LCD   string
}

// NewSet builds an empty set.
func NewSet() *Set {
	return &Set{byKey: map[string]Match{}}
}

// Add inserts m, ignoring a duplicate match string (uniqueness is by match
// string); the case mapping policy is honored when comparing keys so "-"
// and "_" fold together for matching only, while display keeps the
// original text.
func (s *Set) Add(m Match, caseFold bool) {
	key := m.Text
	if caseFold {
		key = foldDashUnderscore(strings.ToLower(key))
	}
	if _, exists := s.byKey[key]; exists {
		return
	}
	s.byKey[key] = m
	s.order = append(s.order, key)
}

// Matches returns the set in insertion order.
func (s *Set) Matches() []Match {
	out := make([]Match, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k])
	}
	return out
}

// Len reports how many distinct matches are present.
func (s *Set) Len() int { return len(s.order) }

// foldDashUnderscore treats '-' and '_' as the same character for
// case-insensitive matching; display retains the original character.
func foldDashUnderscore(s string) string {
	return strings.NewReplacer("-", "_").Replace(s)
}

// ComputeLCD returns the longest string that is a prefix, under caseFold,
// of every match.
func ComputeLCD(matches []Match, caseFold bool) string {
	if len(matches) == 0 {
		return ""
	}
	key := func(s string) string {
		if caseFold {
			return foldDashUnderscore(strings.ToLower(s))
		}
		return s
	}
	lcd := matches[0].Text
	lcdKey := key(lcd)
	for _, m := range matches[1:] {
		mk := key(m.Text)
		n := commonPrefixLen(lcdKey, mk)
		lcd = lcd[:n]
		lcdKey = lcdKey[:n]
	}
	return lcd
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Context is the narrow capability struct passed to each generator
// invocation: it hands a generator only the line, cursor and current
// word, never a back-pointer to the owning editor.
type Context struct {
	Line   string
	Cursor int
	Word   string // substring from the last word boundary to Cursor
}

// WordAt computes the word being completed.
func WordAt(line string, cursor int) string {
	if cursor > len(line) {
		cursor = len(line)
	}
	start := strings.LastIndexAny(line[:cursor], Delimiters)
	return line[start+1 : cursor]
}

// Result is what a Generator returns: either it declined (None==true) or
// it contributed a set of matches, optionally exclusively (stopping any
// lower-priority generator from running).
type Result struct {
	None      bool
	Matches   []Match
	Exclusive bool
}

// None is the canonical "did not apply" result.
func None() Result { return Result{None: true} }

// Generator is one unit in the match pipeline.
type Generator interface {
	Generate(ctx Context) (Result, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx Context) (Result, error)

func (f GeneratorFunc) Generate(ctx Context) (Result, error) { return f(ctx) }

type registryEntry struct {
	gen      Generator
	priority int
}

// Registry is the ordered collection of (generator, priority) entries.
// Lower priority numbers run first.
type Registry struct {
	entries []registryEntry
}

// Register adds a generator at the given priority.
func (r *Registry) Register(g Generator, priority int) {
	r.entries = append(r.entries, registryEntry{gen: g, priority: priority})
	sort.SliceStable(r.entries, func(i, j int) bool { return r.entries[i].priority < r.entries[j].priority })
}

// DisplayFilter replaces the default display strings for a set of match
// texts; it must return a slice the same length as its input.
type DisplayFilter func(texts []string) ([]string, error)

// Pipeline ties a Registry to match post-processing.
type Pipeline struct {
	Registry         *Registry
	CaseFold         bool
	TranslateSlashes bool // normalize path separators in directory/slash-bearing matches
	QuoteChars       string // characters that force quoting, e.g. ` "'&|<>`
	Filter           DisplayFilter
	onFault          func(err error)
}

// NewPipeline builds a pipeline with a fresh, empty registry.
func NewPipeline() *Pipeline {
	return &Pipeline{Registry: &Registry{}, TranslateSlashes: true, QuoteChars: " \t\"'&|<>()"}
}

// OnFault installs a callback invoked whenever a generator or the display
// filter faults, for diagnostics logging.
func (p *Pipeline) OnFault(fn func(err error)) { p.onFault = fn }

func (p *Pipeline) logFault(err error) {
	if p.onFault != nil {
		p.onFault(err)
	}
}

// Generate runs every registered generator in priority order, honoring
// exclusivity, then applies post-processing.
func (p *Pipeline) Generate(line string, cursor int) *Set {
	ctx := Context{Line: line, Cursor: cursor, Word: WordAt(line, cursor)}
	set := NewSet()

	for _, e := range p.Registry.entries {
		res, err := p.safeGenerate(e.gen, ctx)
		if err != nil {
			p.logFault(err)
			continue
		}
		if res.None {
			continue
		}
		for _, m := range res.Matches {
			set.Add(m, p.CaseFold)
		}
		if res.Exclusive {
			break
		}
	}

	p.postProcess(set, line)
	return set
}

// safeGenerate treats a panicking generator the same as one returning an
// error: both count as contributing no matches.
func (p *Pipeline) safeGenerate(g Generator, ctx Context) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: generator panicked: %v", ErrGeneratorFault, r)
		}
	}()
	res, err = g.Generate(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrGeneratorFault, err)
	}
	return
}

// postProcess applies slash translation and quoting; case mapping is
// already folded in via CaseFold threaded through LCD/Add.
func (p *Pipeline) postProcess(set *Set, line string) {
	if p.TranslateSlashes {
		sep := detectSeparator(line)
		for _, k := range set.order {
			m := set.byKey[k]
			if m.Meta.IsDirectory || strings.ContainsAny(m.Text, `/\`) {
				m.Text = translateSeparators(m.Text, sep)
				set.byKey[k] = m
			}
		}
	}

	matches := set.Matches()
	set.LCD = ComputeLCD(matches, p.CaseFold)

	if needsQuoting(set.LCD, p.QuoteChars) {
		set.LCD = `"` + set.LCD
		if set.Len() == 1 {
			set.LCD += `"`
		}
	}
}

// detectSeparator: if the user typed /, all matches use /; otherwise the
// platform-native separator.
func detectSeparator(line string) byte {
	if strings.ContainsRune(line, '/') {
		return '/'
	}
	return filepath.Separator
}

func translateSeparators(s string, sep byte) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return rune(sep)
		}
		return r
	}, s)
}

func needsQuoting(lcd string, quoteChars string) bool {
	return quoteChars != "" && strings.ContainsAny(lcd, quoteChars)
}

// DefaultDisplay falls back to bare basename plus "/" suffix for
// directories; used whenever a display filter is absent or faults.
func DefaultDisplay(m Match) string {
	base := filepath.Base(m.Text)
	if m.Meta.IsDirectory {
		return base + "/"
	}
	return base
}

// ApplyFilter runs the display filter, falling back to DefaultDisplay on
// fault or length mismatch.
func (p *Pipeline) ApplyFilter(matches []Match) []string {
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	if p.Filter == nil {
		out := make([]string, len(matches))
		for i, m := range matches {
			out[i] = DefaultDisplay(m)
		}
		return out
	}
	display, err := p.Filter(texts)
	if err != nil || len(display) != len(matches) {
		if err != nil {
			p.logFault(err)
		}
		out := make([]string, len(matches))
		for i, m := range matches {
			out[i] = DefaultDisplay(m)
		}
		return out
	}
	return display
}
