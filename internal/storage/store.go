// Package storage keeps uploaded artifacts (payment proofs, badge images) on
// local disk under stable /uploads/ URLs.
package storage

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const urlPrefix = "/uploads/"

var imageExts = map[string]bool{
	".jpeg": true, ".jpg": true, ".png": true, ".gif": true, ".webp": true,
}

type Store struct {
	baseDir string
	maxSize int64
}

func New(baseDir string, maxSize int64) *Store {
	return &Store{baseDir: baseDir, maxSize: maxSize}
}

func (s *Store) BaseDir() string { return s.baseDir }

// allowedExt reports whether the extension may be stored under the kind.
// Payment proofs accept PDFs in addition to images.
func allowedExt(kind, ext string) bool {
	if imageExts[ext] {
		return true
	}
	return kind == "payments" && ext == ".pdf"
}

// Save writes the blob under a unique name and returns its URL path.
func (s *Store) Save(kind, originalName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExt(kind, ext) {
		return "", fmt.Errorf("file type %q is not allowed", ext)
	}

	dir := filepath.Join(s.baseDir, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	name := fmt.Sprintf("%s-%d-%d%s", strings.TrimSuffix(kind, "s"), time.Now().UnixMilli(), rand.Int63n(1_000_000_000), ext)
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if written > s.maxSize {
		os.Remove(path)
		return "", fmt.Errorf("file exceeds maximum size of %d bytes", s.maxSize)
	}

	return urlPrefix + kind + "/" + name, nil
}

// Remove deletes the blob behind an /uploads/ URL. A missing file is not an
// error: replacement and deletion must be idempotent.
func (s *Store) Remove(url string) error {
	rel, ok := strings.CutPrefix(url, urlPrefix)
	if !ok || rel == "" {
		return nil
	}
	rel = filepath.Clean(rel)
	if strings.HasPrefix(rel, "..") {
		return fmt.Errorf("invalid upload path %q", url)
	}

	err := os.Remove(filepath.Join(s.baseDir, rel))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}
