package loader

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"

	"policyrag/internal/domain"
)

// MarkdownExtractor renders markdown to HTML and keeps only the text nodes.
// If rendering or parsing fails it falls back to StripMarkdown.
type MarkdownExtractor struct {
	md goldmark.Markdown
}

func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{md: goldmark.New()}
}

func (e *MarkdownExtractor) Format() domain.Format { return domain.FormatMarkdown }

func (e *MarkdownExtractor) Extract(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read markdown file: %w", err)
	}
	src, err := decodeText(data)
	if err != nil {
		return "", err
	}

	text, err := e.render(src)
	if err != nil {
		return StripMarkdown(src), nil
	}
	return text, nil
}

func (e *MarkdownExtractor) render(src string) (string, error) {
	var html bytes.Buffer
	if err := e.md.Convert([]byte(src), &html); err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(&html)
	if err != nil {
		return "", err
	}
	return doc.Text(), nil
}

var (
	mdFencedCode = regexp.MustCompile("(?s)```.*?```")
	mdHeader     = regexp.MustCompile(`#{1,6}\s+`)
	mdBold       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	mdItalic     = regexp.MustCompile(`\*(.*?)\*`)
	mdInlineCode = regexp.MustCompile("`(.*?)`")
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	mdListMarker = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
)

// StripMarkdown removes markdown syntax with plain pattern rewriting: header
// markers, emphasis, inline and fenced code, link targets and list markers.
func StripMarkdown(src string) string {
	text := mdFencedCode.ReplaceAllString(src, "")
	text = mdHeader.ReplaceAllString(text, "")
	text = mdBold.ReplaceAllString(text, "$1")
	text = mdItalic.ReplaceAllString(text, "$1")
	text = mdInlineCode.ReplaceAllString(text, "$1")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdListMarker.ReplaceAllString(text, "")
	return text
}
