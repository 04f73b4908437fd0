package sync

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// FileRecord describes one vault file in the local manifest.
type FileRecord struct {
	// RelPath is the slash-separated path relative to the vault root.
	RelPath string
	// ContentHash is the canonical SHA-256 of the file contents.
	ContentHash string
	// Tag is the provider-comparable content tag for the same bytes,
	// computed by the tagger passed to Scan.
	Tag        string
	ModifiedAt time.Time
}

// Scan walks the vault root and builds a manifest of every regular file,
// excluding hidden files and directories (any path component starting with
// a dot), conflict sidecars, and paths matching the ignore globs. The root
// is created if it does not exist yet. tagger computes the remote content
// tag for a file's bytes; pass HashContent when no provider tag is needed.
//
// Unreadable files are logged and skipped rather than failing the scan.
func Scan(root string, tagger func([]byte) string, ignore []string) ([]FileRecord, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating vault root %s: %w", root, err)
	}

	var records []FileRecord
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			slog.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if hasHiddenComponent(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() || strings.HasSuffix(rel, ".conflict") {
			return nil
		}
		if matchesAny(ignore, rel) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping unreadable file", "path", rel, "error", err)
			return nil
		}

		modified := time.Now()
		if info, err := d.Info(); err == nil {
			modified = info.ModTime()
		}

		records = append(records, FileRecord{
			RelPath:     rel,
			ContentHash: HashContent(data),
			Tag:         tagger(data),
			ModifiedAt:  modified,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning vault %s: %w", root, err)
	}
	return records, nil
}

// hasHiddenComponent reports whether any segment of the slash-separated
// relative path starts with a dot.
func hasHiddenComponent(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func matchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}
