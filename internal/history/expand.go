package history

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoExpansionMatch is returned when a `!`-reference names no history
// entry, matching the original's history->expand failure case.
var ErrNoExpansionMatch = errors.New("history.no_expansion_match")

// Expand performs Bash-style "bang history" substitution against line,
// using entries (oldest first, as returned by DB.Iter) as the candidate
// history. It supports `!!` (last command), `!n` / `!-n` (absolute and
// relative references) and `!prefix` (most recent line starting with
// prefix); `^old^new` quick-substitution is not implemented.
//
// mode governs whether a `!` found inside quotes is inert, matching the
// expand_mode setting: ExpandOff disables substitution entirely,
// ExpandOn always expands, and the "not_in_*_quotes" modes skip bangs
// found inside the named quote style.
func Expand(line string, entries []Entry, mode ExpandMode) (string, error) {
	if mode == ExpandOff {
		return line, nil
	}

	var out strings.Builder
	inSingle, inDouble := false, false

	for i := 0; i < len(line); i++ {
		c := line[i]

		switch c {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
			out.WriteByte(c)
			continue
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
			out.WriteByte(c)
			continue
		}

		if c != '!' || i+1 >= len(line) {
			out.WriteByte(c)
			continue
		}

		if quotedBangIsInert(mode, inSingle, inDouble) {
			out.WriteByte(c)
			continue
		}

		ref, width, ok := parseReference(line[i+1:])
		if !ok {
			out.WriteByte(c)
			continue
		}

		match, err := resolveReference(ref, entries)
		if err != nil {
			return "", err
		}
		out.WriteString(match)
		i += width
	}

	return out.String(), nil
}

// quotedBangIsInert reports whether a `!` at the current quote state
// should be left untouched rather than treated as an expansion sigil.
func quotedBangIsInert(mode ExpandMode, inSingle, inDouble bool) bool {
	switch mode {
	case ExpandNotInSingleQuotes:
		return inSingle
	case ExpandNotInDoubleQuotes:
		return inDouble
	case ExpandNotInAnyQuotes:
		return inSingle || inDouble
	default: // ExpandOn
		return false
	}
}

// reference is a parsed `!`-form, not yet resolved against history.
type reference struct {
	kind   referenceKind
	number int
	prefix string
}

type referenceKind int

const (
	refBang referenceKind = iota
	refAbsolute
	refRelative
	refPrefix
)

// parseReference reads the text immediately following a `!` and returns
// the parsed reference plus how many bytes of rest it consumed.
func parseReference(rest string) (reference, int, bool) {
	if rest == "" {
		return reference{}, 0, false
	}

	if rest[0] == '!' {
		return reference{kind: refBang}, 1, true
	}

	if rest[0] == '-' {
		j := 1
		for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
			j++
		}
		if j == 1 {
			return reference{}, 0, false
		}
		n, err := strconv.Atoi(rest[1:j])
		if err != nil {
			return reference{}, 0, false
		}
		return reference{kind: refRelative, number: n}, j, true
	}

	if rest[0] >= '0' && rest[0] <= '9' {
		j := 0
		for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
			j++
		}
		n, err := strconv.Atoi(rest[:j])
		if err != nil {
			return reference{}, 0, false
		}
		return reference{kind: refAbsolute, number: n}, j, true
	}

	// !prefix: runs until whitespace or another '!'.
	j := 0
	for j < len(rest) && rest[j] != ' ' && rest[j] != '\t' && rest[j] != '!' {
		j++
	}
	if j == 0 {
		return reference{}, 0, false
	}
	return reference{kind: refPrefix, prefix: rest[:j]}, j, true
}

func resolveReference(ref reference, entries []Entry) (string, error) {
	switch ref.kind {
	case refBang:
		if len(entries) == 0 {
			return "", fmt.Errorf("%w: !!", ErrNoExpansionMatch)
		}
		return entries[len(entries)-1].Line, nil

	case refAbsolute:
		idx := ref.number - 1
		if idx < 0 || idx >= len(entries) {
			return "", fmt.Errorf("%w: !%d", ErrNoExpansionMatch, ref.number)
		}
		return entries[idx].Line, nil

	case refRelative:
		idx := len(entries) - ref.number
		if idx < 0 || idx >= len(entries) {
			return "", fmt.Errorf("%w: !-%d", ErrNoExpansionMatch, ref.number)
		}
		return entries[idx].Line, nil

	case refPrefix:
		for i := len(entries) - 1; i >= 0; i-- {
			if strings.HasPrefix(entries[i].Line, ref.prefix) {
				return entries[i].Line, nil
			}
		}
		return "", fmt.Errorf("%w: !%s", ErrNoExpansionMatch, ref.prefix)
	}
	return "", fmt.Errorf("%w: unrecognized reference", ErrNoExpansionMatch)
}
