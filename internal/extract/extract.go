// Package extract pulls the action block out of a model completion.
package extract

import (
	"regexp"
)

const (
	DefaultOpen  = "<code>"
	DefaultClose = "</code>"
)

// Extractor finds the first block between Open and Close. When no such block
// exists it falls back to the first fenced markdown block, if enabled.
type Extractor struct {
	re    *regexp.Regexp
	fence bool
}

var fenceRe = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\n?(.*?)```")

func New(open, close string, fenceFallback bool) *Extractor {
	return &Extractor{
		re:    regexp.MustCompile("(?s)" + regexp.QuoteMeta(open) + "(.*?)" + regexp.QuoteMeta(close)),
		fence: fenceFallback,
	}
}

var defaultExtractor = New(DefaultOpen, DefaultClose, false)

// ActionBlock returns the text inside the first <code>...</code> pair of text,
// or "" when there is none.
func ActionBlock(text string) string {
	return defaultExtractor.Extract(text)
}

func (e *Extractor) Extract(text string) string {
	if m := e.re.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if e.fence {
		if m := fenceRe.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}
