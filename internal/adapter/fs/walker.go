package fs

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"policyrag/internal/logging"
	"policyrag/internal/port"
)

// Walker lists corpus files under a root, filtered by doublestar patterns
// matched against slash-separated paths relative to the root.
type Walker struct {
	includes []string
	excludes []string
	logger   *zap.Logger
}

func NewWalker(includes, excludes []string, logger *zap.Logger) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
		logger:   logging.OrNop(logger),
	}
}

// Walk returns matching regular files in lexical order. Entries below root
// that cannot be read are logged and skipped; only an unreadable root is an
// error.
func (w *Walker) Walk(root string) ([]port.FileInfo, error) {
	var files []port.FileInfo

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return w.walkError(root, path, d, err)
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath != "." && w.shouldExclude(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		// Extension matching is case-insensitive so POLICY.PDF is picked up.
		matchPath := relPath[:len(relPath)-len(filepath.Ext(relPath))] + strings.ToLower(filepath.Ext(relPath))
		if !w.shouldInclude(matchPath) || w.shouldExclude(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			w.logger.Warn("skipping unreadable entry", zap.String("path", path), zap.Error(err))
			return nil
		}
		files = append(files, port.FileInfo{
			Path:    path,
			ModTime: info.ModTime().Unix(),
			Size:    info.Size(),
		})
		return nil
	})

	return files, err
}

// walkError decides how Walk continues after err on path: an unreadable
// root fails the walk, anything below it is skipped.
func (w *Walker) walkError(root, path string, d fs.DirEntry, err error) error {
	if path == root {
		return err
	}
	w.logger.Warn("skipping unreadable entry", zap.String("path", path), zap.Error(err))
	if d != nil && d.IsDir() {
		return filepath.SkipDir
	}
	return nil
}

func (w *Walker) shouldInclude(path string) bool {
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}
