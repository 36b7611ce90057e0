package privacy

import (
	"strings"
	"sync"

	"github.com/dlclark/regexp2"
)

const tokenShape = `[A-Za-z0-9_]+?_[a-fA-F0-9]{12}(?:_[0-9]+)?__`

// recognizer holds the scanning and whole-token forms of a prefix's shape
type recognizer struct {
	scan  *regexp2.Regexp
	exact *regexp2.Regexp
}

var recognizers sync.Map // prefix -> *recognizer

func recognizerFor(prefix string) *recognizer {
	if cached, ok := recognizers.Load(prefix); ok {
		return cached.(*recognizer)
	}

	quoted := regexp2.Escape(prefix)
	rec := &recognizer{
		scan:  regexp2.MustCompile(quoted+tokenShape, regexp2.ECMAScript),
		exact: regexp2.MustCompile(`^`+quoted+tokenShape+`$`, regexp2.ECMAScript),
	}
	rec.scan.MatchTimeout = matchTimeout
	rec.exact.MatchTimeout = matchTimeout

	actual, _ := recognizers.LoadOrStore(prefix, rec)
	return actual.(*recognizer)
}

// PlaceholderRecognizer returns a matcher for the token shape produced by
// sessions using prefix: <prefix><CATEGORY>_<12 hex>[_N]__
//
// The category run is lazy so that two placeholders written back to back are
// recognized separately instead of as one long unknown token.
func PlaceholderRecognizer(prefix string) *regexp2.Regexp {
	return recognizerFor(prefix).scan
}

// Restore swaps placeholders in text back to their original values.
// Placeholders unknown to the session are left as they are.
func Restore(text string, session *Session) string {
	if text == "" || session == nil {
		return text
	}
	if !strings.Contains(text, session.Prefix()) {
		return text
	}

	rec := recognizerFor(session.Prefix())

	var b strings.Builder
	cursor := 0
	eachMatch(rec.scan, text, runeOffsets(text), func(start, end int) {
		if start < cursor {
			return
		}
		original, end, ok := rec.resolve(text, start, end, session)
		if !ok {
			return
		}
		if cursor == 0 {
			b.Grow(len(text))
		}
		b.WriteString(text[cursor:start])
		b.WriteString(original)
		cursor = end
	})

	if cursor == 0 {
		return text
	}
	b.WriteString(text[cursor:])
	return b.String()
}

// resolve looks up the shortest token at start and, when the session does not
// know it, each longer token at the same start. A category may itself end in
// an underscore followed by twelve hex digits, which the shortest form cuts
// off.
func (rec *recognizer) resolve(text string, start, end int, session *Session) (string, int, bool) {
	if original, ok := session.Lookup(text[start:end]); ok {
		return original, end, true
	}

	limit := end
	for limit < len(text) && isTokenByte(text[limit]) {
		limit++
	}
	for e := end + 1; e <= limit; e++ {
		if !strings.HasSuffix(text[:e], tokenSuffix) {
			continue
		}
		candidate := text[start:e]
		if ok, err := rec.exact.MatchString(candidate); err != nil || !ok {
			continue
		}
		if original, ok := session.Lookup(candidate); ok {
			return original, e, true
		}
	}
	return "", end, false
}

func isTokenByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
