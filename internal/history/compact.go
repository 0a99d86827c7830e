package history

import "io"

// RemovalSet is a set of master-bank byte offsets to treat as deleted,
// parsed from a session's removals file.
type RemovalSet map[uint32]struct{}

// ParseRemovals reads "<decimal-offset>\n" records; offsets equal to zero
// are ignored.
func ParseRemovals(r io.Reader) (RemovalSet, error) {
	set := RemovalSet{}
	it := NewLineIter(r)
	for {
		line, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		text := VisibleText(line.Raw)
		if text == "" {
			continue
		}
		var n uint32
		for _, c := range text {
			if c < '0' || c > '9' {
				n = 0
				break
			}
			n = n*10 + uint32(c-'0')
		}
		if n != 0 {
			set[n] = struct{}{}
		}
	}
	return set, nil
}

// CompactResult is the outcome of running Compact.
type CompactResult struct {
	Kept    []string // retained entry text, in final order
	NewTag  Tag
	Dropped int
}

// CompactOptions parameterizes the trim/dedupe stages of the algorithm.
type CompactOptions struct {
	MaxLines int  // 0 means unlimited
	Unique   bool
}

// Compact reads every non-tombstoned, non-removed, non-tag line in
// order, then trims to MaxLines (dropping the oldest) and folds to
// last-occurrence-only if Unique. The caller is responsible for holding
// the exclusive lock beforehand and for truncating/rewriting the file
// with the result afterward.
func Compact(r io.Reader, removals RemovalSet, opts CompactOptions) (CompactResult, error) {
	var kept []string
	var collected int

	it := NewLineIter(r)
	for {
		line, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return CompactResult{}, err
		}
		if IsTagLine(line.Raw) && line.Offset == 0 {
			continue
		}
		if IsTombstoned(line.Raw) {
			collected++
			continue
		}
		if _, removed := removals[line.Offset]; removed {
			collected++
			continue
		}
		kept = append(kept, VisibleText(line.Raw))
	}

	dropped := collected

	if opts.MaxLines > 0 && len(kept) > opts.MaxLines {
		drop := len(kept) - opts.MaxLines
		dropped += drop
		kept = kept[drop:]
	}

	if opts.Unique {
		kept, dropped = dedupeKeepLast(kept, dropped)
	}

	return CompactResult{Kept: kept, Dropped: dropped}, nil
}

// dedupeKeepLast reduces to the last occurrence of each distinct line
// while preserving relative order.
func dedupeKeepLast(lines []string, dropped int) ([]string, int) {
	lastIdx := make(map[string]int, len(lines))
	for i, l := range lines {
		lastIdx[l] = i
	}
	out := make([]string, 0, len(lastIdx))
	for i, l := range lines {
		if lastIdx[l] == i {
			out = append(out, l)
		} else {
			dropped++
		}
	}
	return out, dropped
}

// ShouldAutoCompact reports whether the tombstone/removal count crosses
// the automatic threshold: max(max_lines, 2500).
func ShouldAutoCompact(tombstoneCount, maxLines int) bool {
	threshold := maxLines
	if threshold < 2500 {
		threshold = 2500
	}
	return tombstoneCount > threshold
}
