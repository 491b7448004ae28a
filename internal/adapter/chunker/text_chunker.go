package chunker

import (
	"errors"
	"fmt"
	"strings"

	"policyrag/internal/domain"
)

// sentenceLookback is how far before a window end a period may sit and
// still be used as the cut point.
const sentenceLookback = 100

var ErrInvalidWindow = errors.New("invalid chunk window")

// TextChunker splits normalized document text into overlapping character
// windows that prefer to end on a sentence boundary.
type TextChunker struct {
	size    int
	overlap int
}

func NewTextChunker(size, overlap int) (*TextChunker, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return &TextChunker{size: size, overlap: overlap}, nil
}

func validateWindow(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: size %d must be positive", ErrInvalidWindow, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidWindow, overlap, size)
	}
	return nil
}

// Chunk splits doc into chunks stamped with "<filename>_chunk_<i>" ids.
func (c *TextChunker) Chunk(doc domain.RawDocument) []domain.Chunk {
	if strings.TrimSpace(doc.Content) == "" {
		return nil
	}

	texts := chunkRunes([]rune(doc.Content), c.size, c.overlap)
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			Content:        text,
			SourceFilename: doc.Filename,
			SourcePath:     doc.SourcePath,
			ChunkID:        ChunkID(doc.Filename, i),
			ChunkIndex:     i,
			TotalChunks:    len(texts),
		}
	}
	return chunks
}

func ChunkID(filename string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", filename, index)
}

// ChunkText splits text into windows of at most size characters where
// consecutive windows share overlap characters. A text no longer than size
// comes back unchanged as the only chunk.
func ChunkText(text string, size, overlap int) ([]string, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return chunkRunes([]rune(text), size, overlap), nil
}

func chunkRunes(r []rune, size, overlap int) []string {
	n := len(r)
	if n <= size {
		return []string{string(r)}
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + size
		if end < n {
			if cut := lastPeriod(r, start, end); cut >= start && cut > end-sentenceLookback {
				end = cut + 1
			}
		} else {
			end = n
		}

		if chunk := strings.TrimSpace(string(r[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// lastPeriod returns the index of the last '.' in r[from:to], or -1.
func lastPeriod(r []rune, from, to int) int {
	for i := to - 1; i >= from; i-- {
		if r[i] == '.' {
			return i
		}
	}
	return -1
}
