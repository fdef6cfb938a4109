package transform

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// importPattern finds import( and import followed by a comment. The
// lookbehind stands in for an ASCII word boundary; \s is Unicode
// whitespace, plus the BOM that ECMAScript also counts as whitespace.
var importPattern = regexp2.MustCompile(`(?<![A-Za-z0-9_])import[\s\uFEFF]*(?:\(|//|/\*)`, regexp2.None)

// RejectHTMLComments refuses sources containing "<!--" or "-->", which
// the engine may treat as single-line comments.
func RejectHTMLComments(s State) (State, error) {
	idx := -1
	for _, marker := range []string{"<!--", "-->"} {
		if i := strings.Index(s.Source, marker); i >= 0 && (idx < 0 || i < idx) {
			idx = i
		}
	}
	if idx >= 0 {
		return State{}, &RejectedSourceError{
			Reason: ReasonHTMLComment,
			Line:   strings.Count(s.Source[:idx], "\n") + 1,
		}
	}
	return s, nil
}

// RejectImportExpressions refuses sources containing something that looks
// like a dynamic import expression.
func RejectImportExpressions(s State) (State, error) {
	m, err := importPattern.FindStringMatch(s.Source)
	if err != nil {
		return State{}, err
	}
	if m != nil {
		// match offsets are in runes
		prefix := []rune(s.Source)[:m.Index]
		return State{}, &RejectedSourceError{
			Reason: ReasonImportExpression,
			Line:   strings.Count(string(prefix), "\n") + 1,
		}
	}
	return s, nil
}
