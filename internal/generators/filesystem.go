// Package generators provides the built-in match.Generator
// implementations the editor module registers against its
// match.Pipeline: filesystem path completion, and a script-backed
// adapter that defers to whichever internal/script.Evaluator is
// currently selected. Grounded on the original's dll/rl line editor
// completion hookup plus the directory/filename listing every Clink
// profile gets for free, with no script loaded.
package generators

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/clinkgo/clink/internal/match"
)

// FilesystemPriority is the priority the filesystem generator registers
// at: it is the fallback every other generator can pre-empt by
// returning an Exclusive result first.
const FilesystemPriority = 100

// Filesystem lists directory entries whose name has the current word as
// a (optionally case-folded) prefix, the baseline completion behavior a
// shell-line editor provides even with no scripts loaded.
type Filesystem struct {
	// CaseFold additionally matches entries case-insensitively; the
	// pipeline itself re-folds for Set membership, but Filesystem still
	// needs its own fold to decide which directory entries qualify.
	CaseFold bool
}

// NewFilesystem builds a Filesystem generator.
func NewFilesystem(caseFold bool) *Filesystem {
	return &Filesystem{CaseFold: caseFold}
}

// Generate implements match.Generator.
func (f *Filesystem) Generate(ctx match.Context) (match.Result, error) {
	dir, prefix := splitWord(ctx.Word)

	listDir := dir
	if listDir == "" {
		listDir = "."
	}
	entries, err := os.ReadDir(listDir)
	if err != nil {
		// A directory that doesn't exist or can't be read simply
		// contributes nothing; it is not a generator fault.
		return match.None(), nil
	}

	needle := prefix
	if f.CaseFold {
		needle = strings.ToLower(needle)
	}

	var matches []match.Match
	for _, e := range entries {
		name := e.Name()
		candidate := name
		if f.CaseFold {
			candidate = strings.ToLower(candidate)
		}
		if !strings.HasPrefix(candidate, needle) {
			continue
		}

		full := name
		if dir != "" {
			full = dir + string(filepath.Separator) + name
		}

		isDir := e.IsDir()
		meta := match.Meta{IsDirectory: isDir}
		if isDir {
			meta.Suffix = match.DirectorySuffix
		}
		matches = append(matches, match.Match{Text: full, Meta: meta})
	}

	if len(matches) == 0 {
		return match.None(), nil
	}
	return match.Result{Matches: matches}, nil
}

// splitWord divides a word being completed into its directory portion
// (possibly empty, meaning the working directory) and the filename
// prefix to match against that directory's listing.
func splitWord(word string) (dir, prefix string) {
	idx := strings.LastIndexAny(word, `/\`)
	if idx < 0 {
		return "", word
	}
	return word[:idx], word[idx+1:]
}
