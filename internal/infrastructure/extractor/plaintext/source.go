// Package plaintext reads a directory of text and markdown files as a corpus.
package plaintext

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

var supportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// DirSource loads every supported file under a root directory. Document ids
// are slash-separated paths relative to the root, and documents come back in
// id order so the corpus fingerprint is stable across machines.
type DirSource struct {
	root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

func (s *DirSource) Root() string {
	return s.root
}

func (s *DirSource) Load(ctx context.Context) ([]domain.Document, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "open corpus dir", err)
	}
	if !info.IsDir() {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "open corpus dir", fmt.Errorf("%s is not a directory", s.root))
	}

	var paths []string
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != s.root && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus dir: %w", err)
	}

	docs := make([]domain.Document, 0, len(paths))
	for _, path := range paths {
		text, err := extract(path)
		if err != nil {
			return nil, err
		}
		if text == "" {
			continue
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil, fmt.Errorf("relative path: %w", err)
		}
		docs = append(docs, domain.Document{ID: filepath.ToSlash(rel), Text: text})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Supported reports whether path has an extension the source reads.
func Supported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

func extract(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrInvalidInput, "read source document", fmt.Errorf("%s is not valid UTF-8 text", path))
	}
	return strings.TrimSpace(string(raw)), nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
