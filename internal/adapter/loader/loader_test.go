package loader

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyrag/internal/adapter/fs"
	"policyrag/internal/domain"
)

func write(t *testing.T, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func writeDOCX(t *testing.T, path string, body string) string {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create(docxBodyPart)
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func newTestLoader() *Loader {
	return NewLoader(fs.NewWalker([]string{"**/*"}, nil, nil), 2, nil)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "Hello world. Ok!", Normalize("  Hello\n\t world.   Ok!  "))
	assert.Equal(t, "Cost 100 per day (max)", Normalize("Cost $100 per day (max)"))
	assert.Equal(t, "a b", Normalize("a*#b"))
	assert.Equal(t, "", Normalize(" \n\t "))
	assert.Equal(t, "café naïve", Normalize("café naïve"))
}

func TestStripMarkdown(t *testing.T) {
	src := "# Title\n\nSome **bold** and *italic* with `code`.\n\n```\nfenced()\n```\n- item one\n* item two\nSee [the handbook](http://x/y)."
	got := Normalize(StripMarkdown(src))
	assert.Equal(t, "Title Some bold and italic with code. item one item two See the handbook.", got)
}

func TestTextExtractor_Latin1Fallback(t *testing.T) {
	dir := t.TempDir()
	// "café" in ISO-8859-1 is not valid UTF-8.
	path := write(t, filepath.Join(dir, "notes.txt"), []byte{'c', 'a', 'f', 0xE9})

	text, err := TextExtractor{}.Extract(path)
	require.NoError(t, err)
	assert.Equal(t, "café", text)
}

func TestMarkdownExtractor(t *testing.T) {
	dir := t.TempDir()
	path := write(t, filepath.Join(dir, "leave.md"), []byte("# Leave Policy\n\nEmployees get **20 days** of [annual leave](https://hr/leave)."))

	text, err := NewMarkdownExtractor().Extract(path)
	require.NoError(t, err)
	assert.Equal(t, "Leave Policy Employees get 20 days of annual leave.", Normalize(text))
}

func TestDOCXExtractor(t *testing.T) {
	dir := t.TempDir()
	body := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Code of Conduct</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Treat colleagues </w:t></w:r><w:r><w:t>with dignity.</w:t></w:r></w:p>
<w:p></w:p>
</w:body>
</w:document>`
	path := writeDOCX(t, filepath.Join(dir, "conduct.docx"), body)

	text, err := DOCXExtractor{}.Extract(path)
	require.NoError(t, err)
	assert.Equal(t, "Code of Conduct\nTreat colleagues with dignity.", text)
}

func TestDOCXExtractor_NotAZip(t *testing.T) {
	path := write(t, filepath.Join(t.TempDir(), "broken.docx"), []byte("not a zip"))
	_, err := DOCXExtractor{}.Extract(path)
	assert.Error(t, err)
}

func TestPDFExtractor_PagesInOrder(t *testing.T) {
	text, err := PDFExtractor{}.Extract(filepath.Join("testdata", "two_pages.pdf"))
	require.NoError(t, err)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	assert.Equal(t, []string{
		"Employees may work from home with manager approval.",
		"Expense reports are due within 30 days.",
	}, lines)
}

func TestLoadFile_PDF(t *testing.T) {
	doc, err := newTestLoader().LoadFile(filepath.Join("testdata", "two_pages.pdf"))
	require.NoError(t, err)
	assert.Equal(t, domain.FormatPDF, doc.Format)
	assert.Equal(t, "two_pages.pdf", doc.Filename)
	assert.Equal(t, "Employees may work from home with manager approval. Expense reports are due within 30 days.", doc.Content)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader()

	raw := "Employees may work from home\nwith manager approval."
	path := write(t, filepath.Join(dir, "wfh.txt"), []byte(raw))
	doc, err := l.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Employees may work from home with manager approval.", doc.Content)
	assert.Equal(t, "wfh.txt", doc.Filename)
	assert.Equal(t, domain.FormatText, doc.Format)
	assert.Equal(t, int64(len(raw)), doc.ByteSize)

	_, err = l.LoadFile(write(t, filepath.Join(dir, "image.png"), []byte{1, 2, 3}))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = l.LoadFile(write(t, filepath.Join(dir, "blank.txt"), []byte("  \n ")))
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestLoadCorpus_SkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a_leave.md"), []byte("# Leave\n\nTwenty days."))
	write(t, filepath.Join(dir, "b_broken.pdf"), []byte("%PDF-garbage"))
	write(t, filepath.Join(dir, "c_empty.txt"), []byte(""))
	write(t, filepath.Join(dir, "d_photo.png"), []byte{0x89, 'P', 'N', 'G'})
	write(t, filepath.Join(dir, "nested", "e_expenses.txt"), []byte("Submit receipts within 30 days."))

	docs, err := newTestLoader().LoadCorpus(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a_leave.md", docs[0].Filename)
	assert.Equal(t, "Leave Twenty days.", docs[0].Content)
	assert.Equal(t, "e_expenses.txt", docs[1].Filename)
}

func TestLoadCorpus_MissingRoot(t *testing.T) {
	_, err := newTestLoader().LoadCorpus(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
