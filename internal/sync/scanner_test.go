package sync

import (
	"os"
	"path/filepath"
	"testing"
)

func writeVaultFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func scanPaths(t *testing.T, root string, ignore []string) map[string]FileRecord {
	t.Helper()
	records, err := Scan(root, HashContent, ignore)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	byPath := make(map[string]FileRecord, len(records))
	for _, rec := range records {
		byPath[rec.RelPath] = rec
	}
	return byPath
}

func TestScanBuildsManifest(t *testing.T) {
	root := t.TempDir()
	writeVaultFile(t, root, "a.md", "alpha")
	writeVaultFile(t, root, "notes/b.md", "beta")

	byPath := scanPaths(t, root, nil)
	if len(byPath) != 2 {
		t.Fatalf("expected 2 records, got %d", len(byPath))
	}

	rec, ok := byPath["notes/b.md"]
	if !ok {
		t.Fatal("missing record for notes/b.md; relative paths must use forward slashes")
	}
	if rec.ContentHash != HashContent([]byte("beta")) {
		t.Errorf("wrong content hash for notes/b.md")
	}
	if rec.Tag != rec.ContentHash {
		t.Errorf("tagger output not recorded: tag %q, hash %q", rec.Tag, rec.ContentHash)
	}
	if rec.ModifiedAt.IsZero() {
		t.Error("expected modification time to be set")
	}
}

func TestScanExcludesHiddenPaths(t *testing.T) {
	root := t.TempDir()
	writeVaultFile(t, root, "a.md", "alpha")
	writeVaultFile(t, root, ".git/config", "secret")
	writeVaultFile(t, root, ".DS_Store", "junk")
	writeVaultFile(t, root, "notes/.hidden.md", "hidden")
	writeVaultFile(t, root, SyncConfigFile, "{}")

	byPath := scanPaths(t, root, nil)
	if len(byPath) != 1 {
		t.Errorf("expected only a.md, got %v", byPath)
	}
	if _, ok := byPath["a.md"]; !ok {
		t.Error("a.md should survive the scan")
	}
}

func TestScanExcludesConflictSidecars(t *testing.T) {
	root := t.TempDir()
	writeVaultFile(t, root, "a.md", "alpha")
	writeVaultFile(t, root, "a.conflict", "remote copy")

	byPath := scanPaths(t, root, nil)
	if _, ok := byPath["a.conflict"]; ok {
		t.Error("conflict sidecars must never be synced")
	}
	if len(byPath) != 1 {
		t.Errorf("expected 1 record, got %d", len(byPath))
	}
}

func TestScanIgnorePatterns(t *testing.T) {
	root := t.TempDir()
	writeVaultFile(t, root, "a.md", "alpha")
	writeVaultFile(t, root, "drafts/wip.md", "draft")

	byPath := scanPaths(t, root, []string{"drafts/**"})
	if _, ok := byPath["drafts/wip.md"]; ok {
		t.Error("ignored pattern should exclude drafts/wip.md")
	}
	if len(byPath) != 1 {
		t.Errorf("expected 1 record, got %d", len(byPath))
	}
}

func TestScanCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "new-vault")

	records, err := Scan(root, HashContent, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty manifest, got %d records", len(records))
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Error("expected scan to create the vault root")
	}
}
