// Package markdown cleans and validates markdown an agent emits before
// it is persisted as an AnalysisResult.Summary. Adapted near-verbatim
// from the teacher's pkg/core/utils/markdown.go CleanMarkdown/
// ValidateMarkdown, repurposed from rendering filing markdown to
// gatekeeping agent-generated summaries.
package markdown

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/text"
)

// thinkBlock matches a model's hidden-reasoning trace. spec.md §4.10
// requires every agent answer to have these stripped before persisting
// or returning it to a client, regardless of whether the call used
// think=true or think=false.
var thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)

// StripThink removes any <think>...</think> reasoning blocks a model
// emitted inline in its answer. An unterminated trailing <think> (the
// call was cut off mid-reasoning) is dropped to end of string rather
// than left to leak into the answer.
func StripThink(input string) string {
	stripped := thinkBlock.ReplaceAllString(input, "")
	if idx := strings.Index(stripped, "<think>"); idx != -1 {
		stripped = stripped[:idx]
	}
	return strings.TrimSpace(stripped)
}

// Clean strips hidden-reasoning blocks, conversational filler, and
// outer code-fence wrapping so the stored summary is pure Markdown.
func Clean(input string) string {
	cleaned := strings.TrimSpace(StripThink(input))

	if strings.HasPrefix(cleaned, "```markdown") && strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```markdown")
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	} else if strings.HasPrefix(cleaned, "```") && strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	return cleaned
}

// Valid reports whether input parses as Markdown at all. Goldmark's
// parser returns a document for any input, so Valid returns true for
// every string; it does not reject raw JSON or other non-prose blobs.
func Valid(input string) bool {
	parser := goldmark.DefaultParser()
	reader := text.NewReader([]byte(input))
	doc := parser.Parse(reader)
	return doc != nil
}
