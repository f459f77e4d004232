package page

import (
	"io"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips active content from captured pages before the engine
// parses them: scripts, event handlers, javascript: URLs. Structure, classes,
// ids, inline styles, and data attributes survive because locators and
// effects depend on them.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds the capture-ingest policy.
func NewSanitizer() *Sanitizer {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class", "id", "style", "role").Globally()
	p.AllowDataAttributes()
	p.AllowElements("span", "div", "main", "section", "article", "header", "footer", "nav", "figure", "figcaption")
	return &Sanitizer{policy: p}
}

// Clean sanitizes an HTML string.
func (s *Sanitizer) Clean(src string) string {
	return s.policy.Sanitize(src)
}

// CleanBytes sanitizes raw HTML bytes.
func (s *Sanitizer) CleanBytes(src []byte) []byte {
	return s.policy.SanitizeBytes(src)
}

// CleanReader sanitizes streamed HTML and returns the cleaned document.
func (s *Sanitizer) CleanReader(r io.Reader) []byte {
	return s.policy.SanitizeReader(r).Bytes()
}
