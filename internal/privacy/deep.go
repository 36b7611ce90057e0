package privacy

import (
	"reflect"
	"slices"
)

// nodeID identifies a composite value by its backing storage rather than its
// contents: a map header, or a slice's first element and length.
type nodeID struct {
	ptr uintptr
	n   int
}

// walker rewrites every string leaf reachable through []any, []string and
// map[string]any values. Anything else is opaque and left untouched.
type walker struct {
	rewrite func(string) string
	seen    map[nodeID]struct{}
}

// RedactDeep redacts every string inside value in place. Composite values are
// mutated; a top-level string is returned rewritten. The returned value should
// replace the argument.
func RedactDeep(value any, patterns *PatternSet, session *Session) any {
	out, _, _ := RedactDeepMatches(value, patterns, session)
	return out
}

// RedactDeepMatches is RedactDeep that also returns every substitution made,
// in traversal order, and the categories whose search timed out on any string.
func RedactDeepMatches(value any, patterns *PatternSet, session *Session) (any, []Match, []string) {
	if patterns == nil || session == nil {
		return value, nil, nil
	}
	var matches []Match
	var timedOut []string
	w := &walker{
		rewrite: func(s string) string {
			result := Redact(s, patterns, session)
			matches = append(matches, result.Matches...)
			for _, category := range result.TimedOut {
				if !slices.Contains(timedOut, category) {
					timedOut = append(timedOut, category)
				}
			}
			return result.Text
		},
		seen: make(map[nodeID]struct{}),
	}
	return w.walk(value), matches, timedOut
}

// RestoreDeep restores every placeholder inside value in place
func RestoreDeep(value any, session *Session) any {
	if session == nil {
		return value
	}
	w := &walker{
		rewrite: func(s string) string { return Restore(s, session) },
		seen:    make(map[nodeID]struct{}),
	}
	return w.walk(value)
}

func (w *walker) walk(value any) any {
	switch node := value.(type) {
	case string:
		return w.rewrite(node)
	case []any:
		if !w.visit(node) {
			return node
		}
		for i, v := range node {
			node[i] = w.walk(v)
		}
		return node
	case []string:
		if !w.visit(node) {
			return node
		}
		for i, v := range node {
			node[i] = w.rewrite(v)
		}
		return node
	case map[string]any:
		if !w.visit(node) {
			return node
		}
		for k, v := range node {
			node[k] = w.walk(v)
		}
		return node
	default:
		return value
	}
}

// visit marks a composite as seen, reporting false if it already was
func (w *walker) visit(node any) bool {
	rv := reflect.ValueOf(node)
	if rv.IsNil() {
		return false
	}
	id := nodeID{ptr: rv.Pointer()}
	if rv.Kind() == reflect.Slice {
		if rv.Len() == 0 {
			return false
		}
		id.n = rv.Len()
	}

	if _, ok := w.seen[id]; ok {
		return false
	}
	w.seen[id] = struct{}{}
	return true
}
