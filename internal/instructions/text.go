// Package instructions turns raw phase instruction text into the final text
// handed to the agent: document tokens are substituted and plan-file and
// project context sections appended.
package instructions

import (
	"regexp"
	"slices"
	"strings"
)

// tokenPattern matches substitution markers such as $DESIGN_DOC.
var tokenPattern = regexp.MustCompile(`\$[A-Z][A-Z0-9_]*`)

// Text is raw instruction text. It is either StaticText or TemplatedText.
type Text interface {
	// Raw returns the text before substitution.
	Raw() string
	isText()
}

// StaticText contains no substitution markers.
type StaticText string

func (s StaticText) Raw() string { return string(s) }
func (StaticText) isText()       {}

// TemplatedText contains one or more $TOKEN markers.
type TemplatedText struct {
	Body   string
	Tokens []string // distinct, in order of first appearance
}

func (t TemplatedText) Raw() string { return t.Body }
func (TemplatedText) isText()       {}

// Parse classifies raw instruction text.
func Parse(raw string) Text {
	matches := tokenPattern.FindAllString(raw, -1)
	if len(matches) == 0 {
		return StaticText(raw)
	}
	var tokens []string
	for _, m := range matches {
		if !slices.Contains(tokens, m) {
			tokens = append(tokens, m)
		}
	}
	return TemplatedText{Body: raw, Tokens: tokens}
}

// Join concatenates texts with sep, skipping empty parts, and re-parses the result.
func Join(sep string, parts ...Text) Text {
	raws := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == nil {
			continue
		}
		if r := strings.TrimSpace(p.Raw()); r != "" {
			raws = append(raws, r)
		}
	}
	return Parse(strings.Join(raws, sep))
}
