package usecase

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyrag/internal/adapter/fs"
	"policyrag/internal/adapter/loader"
	"policyrag/internal/domain"
)

func newTestIngest() *IngestUseCase {
	walker := fs.NewWalker([]string{"**/*.md", "**/*.txt"}, []string{"drafts/**"}, nil)
	return NewIngestUseCase(loader.NewLoader(walker, 2, nil), nil)
}

func TestProcessDocumentsForRAG(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a_long.txt"), strings.Repeat("Policy text without breaks ", 100))
	writeFile(t, filepath.Join(dir, "b_short.md"), "# Short\n\nOne paragraph.")
	writeFile(t, filepath.Join(dir, "drafts", "wip.md"), "Not published yet.")
	writeFile(t, filepath.Join(dir, "empty.txt"), "  ")

	chunks, err := newTestIngest().ProcessDocumentsForRAG(context.Background(), dir, 1000, 200)
	require.NoError(t, err)

	files := map[string]int{}
	for _, c := range chunks {
		files[c.SourceFilename]++
		assert.Less(t, c.ChunkIndex, c.TotalChunks)
		assert.LessOrEqual(t, len([]rune(c.Content)), 1000)
	}
	assert.Equal(t, map[string]int{"a_long.txt": 4, "b_short.md": 1}, files)

	// Documents come in walk order and chunks in position order.
	assert.Equal(t, "a_long.txt_chunk_0", chunks[0].ChunkID)
	assert.Equal(t, "a_long.txt_chunk_3", chunks[3].ChunkID)
	assert.Equal(t, "b_short.md_chunk_0", chunks[4].ChunkID)
}

func TestProcessDocumentsForRAG_InvalidWindow(t *testing.T) {
	_, err := newTestIngest().ProcessDocumentsForRAG(context.Background(), t.TempDir(), 100, 100)
	assert.Error(t, err)
}

func TestProcessFile_DisplayName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload-3f9a.txt")
	writeFile(t, path, strings.Repeat("x", 900))

	doc, chunks, err := newTestIngest().ProcessFile(path, "Remote Work Policy", 800, 200)
	require.NoError(t, err)
	assert.Equal(t, "Remote Work Policy", doc.Filename)
	assert.Equal(t, domain.FormatText, doc.Format)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Remote Work Policy_chunk_1", chunks[1].ChunkID)
	assert.Equal(t, path, chunks[0].SourcePath)
}

func TestProcessFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.md")
	writeFile(t, path, "\n\n")

	_, _, err := newTestIngest().ProcessFile(path, "", 800, 200)
	assert.ErrorIs(t, err, loader.ErrEmptyText)
}
