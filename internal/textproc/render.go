package textproc

import (
	"bytes"
	"fmt"
	"html"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// OutputFormat is the serialization of a converted document
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "md"
	FormatText     OutputFormat = "txt"
	FormatHTML     OutputFormat = "html"
)

// ParseFormat accepts md, markdown, txt, text or html. Empty means Markdown.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "html":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unknown output format %q (want md, txt or html)", s)
}

// Extension is the file extension including the dot
func (f OutputFormat) Extension() string {
	return "." + string(f)
}

// MarkdownOptions controls the Markdown layout
type MarkdownOptions struct {
	Title           string
	IncludeMetadata bool
	PageHeaders     bool
	Separator       string
	ProcessingInfo  bool
}

// DefaultMarkdownOptions enables every block with a horizontal-rule separator
func DefaultMarkdownOptions() MarkdownOptions {
	return MarkdownOptions{
		IncludeMetadata: true,
		PageHeaders:     true,
		Separator:       "---",
		ProcessingInfo:  true,
	}
}

const timestampLayout = "2006-01-02 15:04:05"

var printer = message.NewPrinter(language.English)

// RenderMarkdown lays out a document as Markdown. Pages get their own
// section only when the document has more than one; empty pages are left out.
func RenderMarkdown(doc *types.DocumentResult, opts MarkdownOptions) string {
	var b strings.Builder
	meta := doc.Metadata

	title := opts.Title
	if title == "" {
		title = titleFor(meta.SourceFile)
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if opts.IncludeMetadata {
		b.WriteString("## Document Info\n\n")
		if meta.SourceFile != "" {
			fmt.Fprintf(&b, "- **File**: %s\n", meta.SourceFile)
		}
		if meta.SourceSize > 0 {
			fmt.Fprintf(&b, "- **Size**: %.2f MB\n", float64(meta.SourceSize)/(1024*1024))
		}
		fmt.Fprintf(&b, "- **Pages**: %d\n", meta.TotalPages)
		if !meta.ProcessingTimestamp.IsZero() {
			fmt.Fprintf(&b, "- **Processed**: %s\n", meta.ProcessingTimestamp.Format(timestampLayout))
		}
		b.WriteString("\n")
	}

	sections := Sections(doc)
	if len(sections) == 1 && sections[0].Number == 0 {
		if sections[0].Text != "" {
			b.WriteString(sections[0].Text)
			b.WriteString("\n\n")
		}
	} else {
		for _, s := range sections {
			if s.Text == "" {
				continue
			}
			if opts.PageHeaders {
				fmt.Fprintf(&b, "## Page %d\n\n", s.Number)
			}
			b.WriteString(s.Text)
			b.WriteString("\n\n")
			if opts.Separator != "" {
				b.WriteString(opts.Separator)
				b.WriteString("\n\n")
			}
		}
	}

	if opts.ProcessingInfo {
		b.WriteString("## Processing Info\n\n")
		b.WriteString(printer.Sprintf("- **Characters**: %d\n", DocumentCharCount(doc)))
		if degraded := doc.DegradedPages(); len(degraded) > 0 {
			fmt.Fprintf(&b, "- **Pages without text**: %s\n", joinInts(degraded))
		}
		if meta.ProcessingTime > 0 {
			fmt.Fprintf(&b, "- **Processing time**: %s\n", meta.ProcessingTime.Round(time.Millisecond))
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// RenderText returns the cleaned text without any decoration
func RenderText(doc *types.DocumentResult) string {
	return doc.CleanedText + "\n"
}

// RenderHTML renders the Markdown layout to a standalone HTML page
func RenderHTML(doc *types.DocumentResult, opts MarkdownOptions) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var body bytes.Buffer
	if err := md.Convert([]byte(RenderMarkdown(doc, opts)), &body); err != nil {
		return "", fmt.Errorf("failed to render html: %w", err)
	}

	title := opts.Title
	if title == "" {
		title = titleFor(doc.Metadata.SourceFile)
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(title))
	b.WriteString("</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

// Render serializes doc in the requested format
func Render(doc *types.DocumentResult, format OutputFormat, opts MarkdownOptions) ([]byte, error) {
	switch format {
	case FormatMarkdown, "":
		return []byte(RenderMarkdown(doc, opts)), nil
	case FormatText:
		return []byte(RenderText(doc)), nil
	case FormatHTML:
		out, err := RenderHTML(doc, opts)
		if err != nil {
			return nil, err
		}
		return []byte(out), nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

// CharCount is the number of characters of cleaned text, markers excluded
func CharCount(cleaned string) int {
	return utf8.RuneCountInString(StripMarkers(cleaned))
}

// DocumentCharCount is CharCount computed from the page sections of doc
func DocumentCharCount(doc *types.DocumentResult) int {
	if len(doc.Pages) == 0 {
		return CharCount(doc.CleanedText)
	}
	var texts []string
	for _, s := range Sections(doc) {
		if s.Text != "" {
			texts = append(texts, s.Text)
		}
	}
	return utf8.RuneCountInString(strings.Join(texts, "\n\n"))
}

func titleFor(sourceFile string) string {
	if sourceFile == "" {
		return "document"
	}
	name := filepath.Base(sourceFile)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
