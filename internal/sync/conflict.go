package sync

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Conflict resolution strategies accepted by Resolve.
const (
	KeepLocal  = "keep_local"
	KeepRemote = "keep_remote"
	KeepBoth   = "keep_both"
)

// ErrInvalidResolution is returned when Resolve is given a strategy other
// than keep_local, keep_remote or keep_both.
var ErrInvalidResolution = errors.New("invalid conflict resolution")

// ConflictPath returns the sidecar path for a vault file. The sidecar
// replaces the file's extension, so "notes/a.md" maps to
// "notes/a.conflict".
func ConflictPath(relPath string) string {
	ext := filepath.Ext(relPath)
	return strings.TrimSuffix(relPath, ext) + ".conflict"
}

// WriteConflict stores remote content in the sidecar for relPath, creating
// parent directories as needed.
func WriteConflict(root, relPath string, data []byte) error {
	path := filepath.Join(root, filepath.FromSlash(ConflictPath(relPath)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating conflict dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing conflict sidecar: %w", err)
	}
	return nil
}

// Resolve applies a resolution strategy to the conflict sidecar of relPath:
//
//   - keep_local discards the remote copy by deleting the sidecar.
//   - keep_remote replaces the local file with the sidecar contents.
//   - keep_both keeps the local file and renames the remote copy next to
//     it with a "_conflict" suffix, so "a.md" gains "a_conflict.md".
//
// Resolving a path with no sidecar is a no-op; the conflict may already
// have been resolved from another device.
func Resolve(root, relPath, resolution string) error {
	switch resolution {
	case KeepLocal, KeepRemote, KeepBoth:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidResolution, resolution)
	}

	local := filepath.Join(root, filepath.FromSlash(relPath))
	sidecar := filepath.Join(root, filepath.FromSlash(ConflictPath(relPath)))
	if _, err := os.Stat(sidecar); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("checking conflict sidecar: %w", err)
	}

	switch resolution {
	case KeepLocal:
		if err := os.Remove(sidecar); err != nil {
			return fmt.Errorf("removing conflict sidecar: %w", err)
		}
	case KeepRemote:
		if err := os.Rename(sidecar, local); err != nil {
			return fmt.Errorf("applying remote copy: %w", err)
		}
	case KeepBoth:
		ext := filepath.Ext(relPath)
		both := strings.TrimSuffix(local, ext) + "_conflict" + ext
		if err := os.Rename(sidecar, both); err != nil {
			return fmt.Errorf("keeping both copies: %w", err)
		}
	}
	return nil
}

// PendingConflicts returns the vault-relative paths of all conflict
// sidecars under root, sorted by directory walk order.
func PendingConflicts(root string) ([]string, error) {
	var pending []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
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
		if !d.IsDir() && strings.HasSuffix(rel, ".conflict") {
			pending = append(pending, rel)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing conflicts: %w", err)
	}
	return pending, nil
}
