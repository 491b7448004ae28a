package loader

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"policyrag/internal/domain"
)

// PDFExtractor extracts text page by page. Pages that fail to decode are
// skipped rather than failing the whole document.
type PDFExtractor struct{}

func (PDFExtractor) Format() domain.Format { return domain.FormatPDF }

func (PDFExtractor) Extract(path string) (text string, err error) {
	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	var content strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, perr := page.GetPlainText(nil)
		if perr != nil {
			continue
		}
		if content.Len() > 0 {
			content.WriteString("\n")
		}
		content.WriteString(pageText)
	}

	return content.String(), nil
}
