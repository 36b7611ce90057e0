package privacy

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// span is a half-open byte range [start, end)
type span struct {
	start, end int
}

// Redact replaces every rule match in text with a session placeholder.
//
// Overlapping detections are carved up deterministically: matches are visited
// rightmost-start first (longest first on equal starts) and each one only
// claims the characters no earlier-visited match has claimed, so no character
// is replaced twice and no placeholder is ever split.
func Redact(text string, patterns *PatternSet, session *Session) Result {
	if text == "" || patterns == nil || session == nil {
		return Result{Text: text}
	}

	found, timedOut := findMatches(text, patterns)
	if len(found) == 0 {
		return Result{Text: text, TimedOut: timedOut}
	}

	planned := resolveOverlaps(text, found)
	if len(planned) == 0 {
		return Result{Text: text, TimedOut: timedOut}
	}

	// planned is ordered by descending start
	for i := range planned {
		planned[i].Placeholder = session.GetOrCreatePlaceholder(planned[i].Original, planned[i].Category)
	}

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for i := len(planned) - 1; i >= 0; i-- {
		m := planned[i]
		b.WriteString(text[cursor:m.Start])
		b.WriteString(m.Placeholder)
		cursor = m.End
	}
	b.WriteString(text[cursor:])

	return Result{Text: b.String(), Matches: planned, TimedOut: timedOut}
}

// findMatches collects keyword occurrences followed by regex occurrences,
// dropping any whose exact text is excluded. It also returns the categories
// of regex rules whose search timed out somewhere in text.
func findMatches(text string, patterns *PatternSet) ([]Match, []string) {
	var found []Match
	var timedOut []string

	for _, rule := range patterns.Keywords {
		needle := rule.Value
		if needle == "" {
			continue
		}
		for idx := 0; idx <= len(text); {
			pos := strings.Index(text[idx:], needle)
			if pos < 0 {
				break
			}
			start := idx + pos
			end := start + len(needle)
			idx = end
			if patterns.Excluded(needle) {
				continue
			}
			found = append(found, Match{Start: start, End: end, Original: needle, Category: rule.Category})
		}
	}

	if len(patterns.Regex) == 0 {
		return found, nil
	}

	offsets := runeOffsets(text)
	for _, rule := range patterns.Regex {
		complete := eachMatch(rule.re, text, offsets, func(start, end int) {
			original := text[start:end]
			if patterns.Excluded(original) {
				return
			}
			found = append(found, Match{Start: start, End: end, Original: original, Category: rule.Category})
		})
		if !complete && !slices.Contains(timedOut, rule.Category) {
			timedOut = append(timedOut, rule.Category)
		}
	}

	return found, timedOut
}

// resolveOverlaps turns raw, possibly overlapping matches into disjoint
// planned substitutions ordered by descending start.
func resolveOverlaps(text string, found []Match) []Match {
	slices.SortStableFunc(found, func(a, b Match) int {
		if a.Start != b.Start {
			return b.Start - a.Start
		}
		return b.End - a.End
	})

	var planned []Match
	var covered []span
	for _, m := range found {
		for _, seg := range subtractCovered(span{m.Start, m.End}, covered) {
			if seg.start < 0 || seg.end > len(text) || seg.start >= seg.end {
				continue
			}
			planned = append(planned, Match{
				Start:    seg.start,
				End:      seg.end,
				Original: text[seg.start:seg.end],
				Category: m.Category,
			})
			covered = insertCovered(covered, seg)
		}
	}

	slices.SortStableFunc(planned, func(a, b Match) int {
		return b.Start - a.Start
	})
	return planned
}

// subtractCovered returns the parts of s not inside any covered span.
// covered must be sorted and merged.
func subtractCovered(s span, covered []span) []span {
	if s.start >= s.end {
		return nil
	}

	var out []span
	cur := s.start
	for _, c := range covered {
		if c.end <= cur {
			continue
		}
		if c.start >= s.end {
			break
		}
		if c.start > cur {
			out = append(out, span{cur, min(c.start, s.end)})
		}
		if c.end >= s.end {
			cur = s.end
			break
		}
		cur = max(cur, c.end)
	}
	if cur < s.end {
		out = append(out, span{cur, s.end})
	}
	return out
}

// insertCovered adds s to covered, keeping it sorted and merged
func insertCovered(covered []span, s span) []span {
	if s.start >= s.end {
		return covered
	}

	i, _ := slices.BinarySearchFunc(covered, s.start, func(c span, start int) int {
		if c.start <= start {
			return -1
		}
		return 1
	})
	covered = slices.Insert(covered, i, s)

	merged := covered[:0]
	for _, c := range covered {
		if n := len(merged); n > 0 && c.start <= merged[n-1].end {
			if c.end > merged[n-1].end {
				merged[n-1].end = c.end
			}
			continue
		}
		merged = append(merged, c)
	}
	return merged
}

// runeOffsets maps rune indexes, as reported by regexp2, to byte offsets.
// The final element is len(text).
func runeOffsets(text string) []int {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}

// eachMatch calls fn with the byte range of every non-empty match of re.
// A search that times out resumes after the next run of whitespace, so one
// pathological token cannot hide the matches that follow it. It reports
// false when any part of text was skipped that way.
func eachMatch(re *regexp2.Regexp, text string, offsets []int, fn func(start, end int)) bool {
	if re == nil {
		return true
	}

	complete := true
	from := 0 // rune index the current search started at
	m, err := re.FindStringMatch(text)
	for {
		if err != nil {
			complete = false
			from = skipToken(text, offsets, from)
			if from >= len(offsets)-1 {
				return complete
			}
			m, err = re.FindStringMatchStartingAt(text, offsets[from])
			continue
		}
		if m == nil {
			return complete
		}
		if m.Length > 0 {
			fn(offsets[m.Index], offsets[m.Index+m.Length])
		}
		from = m.Index + m.Length
		m, err = re.FindNextMatch(m)
	}
}

// skipToken returns the rune index just past the first whitespace run that
// follows from, or the rune count when there is none.
func skipToken(text string, offsets []int, from int) int {
	n := len(offsets) - 1
	isSpace := func(i int) bool {
		r, _ := utf8.DecodeRuneInString(text[offsets[i]:])
		return unicode.IsSpace(r)
	}

	i := from + 1
	for i < n && !isSpace(i) {
		i++
	}
	for i < n && isSpace(i) {
		i++
	}
	return i
}
