/**
 * Text Post-Processor
 *
 * Joins page texts with page markers, normalizes whitespace, repairs a
 * few digit/letter confusions and renders the result as Markdown, plain
 * text or HTML.
 */

package textproc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/adverant/nexus/scanocr-worker/internal/types"
)

var (
	spaceRuns   = regexp.MustCompile(` +`)
	blankRuns   = regexp.MustCompile(`\n\s*\n\s*\n`)
	pageMarker  = regexp.MustCompile(`(?m)^=== Page (\d+) ===$`)
	markerLines = regexp.MustCompile(`(?m)^=== Page \d+ ===\s*`)
)

// CleanOptions controls Clean
type CleanOptions struct {
	// PageMarkers prefixes every page with "=== Page N ==="
	PageMarkers bool
	// FixConfusions repairs O/o and l/I between two digits
	FixConfusions bool
}

// PageMarker returns the marker line of a 1-based page number
func PageMarker(n int) string {
	return fmt.Sprintf("=== Page %d ===", n)
}

// Clean assembles page texts into one normalized document text
func Clean(pages []types.PageResult, opts CleanOptions) string {
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if opts.PageMarkers {
			b.WriteString(PageMarker(p.PageNumber))
			b.WriteString("\n\n")
		}
		b.WriteString(p.RecognizedText)
	}
	return CleanText(b.String(), opts.FixConfusions)
}

// CleanText collapses space runs, reduces blank-line runs to one blank line,
// optionally fixes confusions and trims every line
func CleanText(text string, fixConfusions bool) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	if fixConfusions {
		text = FixConfusions(text)
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// FixConfusions replaces O and o with 0, and l and I with 1, when the
// letter sits between two digits. Letters elsewhere are left alone.
func FixConfusions(text string) string {
	runes := []rune(text)
	changed := false
	for i := 1; i < len(runes)-1; i++ {
		if !unicode.IsDigit(runes[i-1]) || !unicode.IsDigit(runes[i+1]) {
			continue
		}
		switch runes[i] {
		case 'O', 'o':
			runes[i], changed = '0', true
		case 'l', 'I':
			runes[i], changed = '1', true
		}
	}
	if !changed {
		return text
	}
	return string(runes)
}

// PageSection is the text of one page recovered from a cleaned document
type PageSection struct {
	Number int
	Text   string
}

// SplitPages splits cleaned text at page markers. Text without markers is
// returned as one section with Number 0.
func SplitPages(cleaned string) []PageSection {
	locs := pageMarker.FindAllStringSubmatchIndex(cleaned, -1)
	if len(locs) == 0 {
		return []PageSection{{Number: 0, Text: strings.TrimSpace(cleaned)}}
	}

	sections := make([]PageSection, 0, len(locs))
	for i, loc := range locs {
		n, _ := strconv.Atoi(cleaned[loc[2]:loc[3]])
		end := len(cleaned)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections = append(sections, PageSection{Number: n, Text: strings.TrimSpace(cleaned[loc[1]:end])})
	}
	return sections
}

// Sections returns the cleaned text of each page. A document with pages is
// split from its PageResults, so recognized text that looks like a marker
// stays page content; CleanedText is split only when Pages is empty. A
// single page yields one section numbered 0.
func Sections(doc *types.DocumentResult) []PageSection {
	if len(doc.Pages) == 0 {
		return SplitPages(doc.CleanedText)
	}
	fix := doc.Metadata.ConfigSummary.FixConfusions
	if len(doc.Pages) == 1 {
		return []PageSection{{Number: 0, Text: CleanText(doc.Pages[0].RecognizedText, fix)}}
	}
	sections := make([]PageSection, 0, len(doc.Pages))
	for _, p := range doc.Pages {
		sections = append(sections, PageSection{Number: p.PageNumber, Text: CleanText(p.RecognizedText, fix)})
	}
	return sections
}

// StripMarkers removes page marker lines
func StripMarkers(cleaned string) string {
	return strings.TrimSpace(markerLines.ReplaceAllString(cleaned, ""))
}
