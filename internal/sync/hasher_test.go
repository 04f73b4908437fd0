package sync

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashContent(t *testing.T) {
	// Known SHA256 hash of "hello"
	expected := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := HashContent([]byte("hello")); got != expected {
		t.Errorf("HashContent(\"hello\") = %q, want %q", got, expected)
	}
}

func TestHashContentDeterministic(t *testing.T) {
	content := []byte("test content")
	hash1 := HashContent(content)
	hash2 := HashContent(content)

	if hash1 != hash2 {
		t.Errorf("same content produced different hashes: %q != %q", hash1, hash2)
	}

	if different := HashContent([]byte("different content")); hash1 == different {
		t.Error("different content should produce different hash")
	}

	// SHA256 hex is 64 characters
	if len(hash1) != 64 {
		t.Errorf("hash length should be 64, got %d", len(hash1))
	}
}

func TestHashFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "test.txt")
	content := []byte("file content for hashing")
	if err := os.WriteFile(tmpFile, content, 0o644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	hash, err := HashFile(tmpFile)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	if expected := HashContent(content); hash != expected {
		t.Errorf("HashFile result %q doesn't match HashContent result %q", hash, expected)
	}
}

func TestHashFile_NotFound(t *testing.T) {
	if _, err := HashFile("/nonexistent/path/file.txt"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestHashFile_Empty(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(tmpFile, []byte{}, 0o644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	hash, err := HashFile(tmpFile)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	// SHA256 of empty input
	expected := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if hash != expected {
		t.Errorf("empty file hash = %q, want %q", hash, expected)
	}
}
