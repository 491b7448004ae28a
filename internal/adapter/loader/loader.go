// Package loader turns policy files into normalized plain text documents.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"policyrag/internal/domain"
	"policyrag/internal/logging"
	"policyrag/internal/port"
)

var (
	// ErrUnsupportedFormat is returned for files with no registered extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrEmptyText is returned when a file yields no text after normalization.
	ErrEmptyText = errors.New("no text content")
)

// Loader reads a corpus directory into RawDocuments.
type Loader struct {
	walker     port.FileWalker
	extractors map[string]port.Extractor
	workers    int
	logger     *zap.Logger
}

// NewLoader creates a loader with the standard extractor set keyed by file
// extension.
func NewLoader(walker port.FileWalker, workers int, logger *zap.Logger) *Loader {
	if workers <= 0 {
		workers = 1
	}
	md := NewMarkdownExtractor()
	return &Loader{
		walker: walker,
		extractors: map[string]port.Extractor{
			".pdf":      PDFExtractor{},
			".docx":     DOCXExtractor{},
			".md":       md,
			".markdown": md,
			".txt":      TextExtractor{},
		},
		workers: workers,
		logger:  logging.OrNop(logger),
	}
}

// Supported reports whether path has an extension the loader can extract.
func (l *Loader) Supported(path string) bool {
	_, ok := l.extractors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// LoadCorpus extracts every matching file under root. Files that cannot be
// read, are unsupported, or are empty are logged and skipped. Documents are
// returned in walk order.
func (l *Loader) LoadCorpus(ctx context.Context, root string) ([]domain.RawDocument, error) {
	files, err := l.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk corpus %s: %w", root, err)
	}

	slots := make([]*domain.RawDocument, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := l.LoadFile(f.Path)
			if err != nil {
				l.logger.Warn("skipping document", zap.String("path", f.Path), zap.Error(err))
				return nil
			}
			slots[i] = &doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	docs := make([]domain.RawDocument, 0, len(files))
	for _, d := range slots {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	l.logger.Info("corpus loaded",
		zap.String("root", root),
		zap.Int("files", len(files)),
		zap.Int("documents", len(docs)))
	return docs, nil
}

// LoadFile extracts and normalizes a single file.
func (l *Loader) LoadFile(path string) (domain.RawDocument, error) {
	ext := strings.ToLower(filepath.Ext(path))
	extractor, ok := l.extractors[ext]
	if !ok {
		return domain.RawDocument{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return domain.RawDocument{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	raw, err := extractor.Extract(path)
	if err != nil {
		return domain.RawDocument{}, err
	}
	content := Normalize(raw)
	if content == "" {
		return domain.RawDocument{}, ErrEmptyText
	}

	return domain.RawDocument{
		Content:    content,
		SourcePath: path,
		Filename:   filepath.Base(path),
		Format:     extractor.Format(),
		ByteSize:   info.Size(),
	}, nil
}

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:\-()]`)

// Normalize collapses whitespace, replaces characters outside letters,
// digits and basic punctuation with spaces, and trims.
func Normalize(text string) string {
	text = unsafeChars.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}
