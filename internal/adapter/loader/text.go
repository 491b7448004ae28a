package loader

import (
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"policyrag/internal/domain"
)

// TextExtractor reads plain text files. Bytes that are not valid UTF-8 are
// decoded as ISO-8859-1, which maps every byte to a rune.
type TextExtractor struct{}

func (TextExtractor) Format() domain.Format { return domain.FormatText }

func (TextExtractor) Extract(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}
	return decodeText(data)
}

func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode latin-1 text: %w", err)
	}
	return string(decoded), nil
}
