package port

import "policyrag/internal/domain"

// Extractor pulls plain text out of one file format.
type Extractor interface {
	Extract(path string) (string, error)

	Format() domain.Format
}

type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}
