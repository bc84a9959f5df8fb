package textproc

import (
	"strings"
	"testing"
	"time"

	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pages(texts ...string) []types.PageResult {
	out := make([]types.PageResult, len(texts))
	for i, t := range texts {
		out[i] = types.PageResult{PageNumber: i + 1, RecognizedText: t}
	}
	return out
}

func TestCleanTextCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "a b\n\nc", CleanText("a   b\n\n\n\nc", false))
	assert.Equal(t, "a\n\nb", CleanText("a\n  \n \t\n\nb", false))
	assert.Equal(t, "x\ny", CleanText("  x  \r\n  y  ", false))
	assert.Equal(t, "", CleanText("", true))
}

func TestFixConfusionsIsContextAware(t *testing.T) {
	assert.Equal(t, "2019 and 1000", FixConfusions("20l9 and 10o0"))
	assert.Equal(t, "Order 1 of 2", FixConfusions("Order 1 of 2"))
	assert.Equal(t, "hello World", FixConfusions("hello World"))
	assert.Equal(t, "3101", FixConfusions("3I01"))
	assert.Equal(t, "O1", FixConfusions("O1"))
}

func TestCleanConfusionSwitch(t *testing.T) {
	raw := pages("Invoice 20l9 Total")

	assert.Equal(t, "Invoice 2019 Total", Clean(raw, CleanOptions{FixConfusions: true}))
	assert.Equal(t, "Invoice 20l9 Total", Clean(raw, CleanOptions{}))
}

func TestCleanWithMarkersAndSplit(t *testing.T) {
	cleaned := Clean(pages("first  page", "", "third\n\n\n\npage"), CleanOptions{PageMarkers: true})

	assert.Equal(t, "=== Page 1 ===\n\nfirst page\n\n=== Page 2 ===\n\n=== Page 3 ===\n\nthird\n\npage", cleaned)

	sections := SplitPages(cleaned)
	require.Len(t, sections, 3)
	assert.Equal(t, PageSection{Number: 1, Text: "first page"}, sections[0])
	assert.Equal(t, PageSection{Number: 2, Text: ""}, sections[1])
	assert.Equal(t, PageSection{Number: 3, Text: "third\n\npage"}, sections[2])

	assert.Equal(t, "first page\n\nthird\n\npage", StripMarkers(cleaned))
	assert.Equal(t, len([]rune("first page\n\nthird\n\npage")), CharCount(cleaned))
}

func TestSplitPagesWithoutMarkers(t *testing.T) {
	assert.Equal(t, []PageSection{{Number: 0, Text: "just text"}}, SplitPages(" just text \n"))
}

func TestSinglePageMarkdownRoundTrip(t *testing.T) {
	doc := &types.DocumentResult{
		Pages:       pages("Hello   world"),
		CleanedText: Clean(pages("Hello   world"), CleanOptions{}),
		Metadata:    types.Metadata{SourceFile: "report.pdf", TotalPages: 1},
	}

	md := RenderMarkdown(doc, DefaultMarkdownOptions())

	assert.True(t, strings.HasPrefix(md, "# report\n\n"))
	assert.Equal(t, 1, strings.Count(md, "Hello world"))
	assert.NotContains(t, md, "---")
	assert.NotContains(t, md, "## Page")
	assert.Contains(t, md, "- **Characters**: 11\n")
}

func TestMultiPageMarkdown(t *testing.T) {
	ps := pages("one", "", "three")
	ps[1].Degraded = true
	doc := &types.DocumentResult{
		Pages:       ps,
		CleanedText: Clean(ps, CleanOptions{PageMarkers: true}),
		Metadata: types.Metadata{
			SourceFile:          "scans/contract.v2.pdf",
			SourceSize:          3 * 1024 * 1024 / 2,
			TotalPages:          3,
			ProcessingTimestamp: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
			ProcessingTime:      1500 * time.Millisecond,
		},
	}

	md := RenderMarkdown(doc, DefaultMarkdownOptions())

	assert.True(t, strings.HasPrefix(md, "# contract.v2\n\n## Document Info\n\n"))
	assert.Contains(t, md, "- **Size**: 1.50 MB\n")
	assert.Contains(t, md, "- **Processed**: 2024-05-01 09:30:00\n")
	assert.Contains(t, md, "## Page 1\n\none\n\n---\n\n## Page 3\n\nthree\n\n---\n\n")
	assert.NotContains(t, md, "## Page 2")
	assert.Contains(t, md, "- **Pages without text**: 2\n")
	assert.Contains(t, md, "- **Processing time**: 1.5s\n")
	assert.NotContains(t, md, "=== Page")
}

func TestMarkerLikePageTextStaysOnItsPage(t *testing.T) {
	ps := pages("intro", "quoted:\n=== Page 9 ===\nend")
	doc := &types.DocumentResult{
		Pages:       ps,
		CleanedText: Clean(ps, CleanOptions{PageMarkers: true}),
		Metadata:    types.Metadata{SourceFile: "log.pdf", TotalPages: 2},
	}

	assert.Equal(t, []PageSection{
		{Number: 1, Text: "intro"},
		{Number: 2, Text: "quoted:\n=== Page 9 ===\nend"},
	}, Sections(doc))
	assert.Equal(t, len("intro")+2+len("quoted:\n=== Page 9 ===\nend"), DocumentCharCount(doc))

	md := RenderMarkdown(doc, DefaultMarkdownOptions())
	assert.Contains(t, md, "## Page 2\n\nquoted:\n=== Page 9 ===\nend\n\n---\n\n")
	assert.NotContains(t, md, "## Page 9")
}

func TestSectionsFromSinglePageApplyConfusionSetting(t *testing.T) {
	doc := &types.DocumentResult{Pages: pages("  l2O3  ")}
	assert.Equal(t, []PageSection{{Number: 0, Text: "l2O3"}}, Sections(doc))

	doc.Metadata.ConfigSummary.FixConfusions = true
	assert.Equal(t, []PageSection{{Number: 0, Text: "l203"}}, Sections(doc))
}

func TestCharacterCountUsesThousandsSeparator(t *testing.T) {
	text := strings.Repeat("x", 1234)
	doc := &types.DocumentResult{CleanedText: text}

	md := RenderMarkdown(doc, MarkdownOptions{ProcessingInfo: true, Title: "t"})

	assert.True(t, strings.HasPrefix(md, "# t\n\nx"))
	assert.Contains(t, md, "- **Characters**: 1,234\n")
}

func TestRenderFormats(t *testing.T) {
	doc := &types.DocumentResult{CleanedText: "plain <b>text</b>", Metadata: types.Metadata{SourceFile: "a&b.pdf"}}

	txt, err := Render(doc, FormatText, DefaultMarkdownOptions())
	require.NoError(t, err)
	assert.Equal(t, "plain <b>text</b>\n", string(txt))

	md, err := Render(doc, FormatMarkdown, DefaultMarkdownOptions())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(md), "# a&b\n"))

	html, err := Render(doc, FormatHTML, DefaultMarkdownOptions())
	require.NoError(t, err)
	assert.Contains(t, string(html), "<title>a&amp;b</title>")
	assert.Contains(t, string(html), "<h1>a&amp;b</h1>")
	assert.Contains(t, string(html), "<h2>Processing Info</h2>")

	_, err = Render(doc, OutputFormat("pdf"), DefaultMarkdownOptions())
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": FormatMarkdown, "Markdown": FormatMarkdown, "text": FormatText, "HTML": FormatHTML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("docx")
	assert.Error(t, err)
	assert.Equal(t, ".txt", FormatText.Extension())
}
