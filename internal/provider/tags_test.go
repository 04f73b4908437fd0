package provider

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

// Each backend's LocalTag must reproduce the content token its remote
// reports, so a local file can be compared against a listing without a
// transfer. Vectors are pinned so an algorithm change shows up immediately.

func TestS3LocalTag(t *testing.T) {
	p := &S3{}
	// Single-part ETag is the plain MD5 hex of the bytes.
	if got := p.LocalTag([]byte("hello")); got != "5d41402abc4b2a76b9719d911017c592" {
		t.Errorf("S3 tag = %q", got)
	}
}

func TestOneDriveLocalTag(t *testing.T) {
	p := NewOneDrive("tok")
	// Graph reports sha1Hash in uppercase hex.
	if got := p.LocalTag([]byte("hello")); got != "AAF4C61DDCC5E8A2DABEDE0F3B482CD9AEA9434D" {
		t.Errorf("OneDrive tag = %q", got)
	}
}

func TestGoogleDriveLocalTag(t *testing.T) {
	p := NewGoogleDrive("tok")
	if got := p.LocalTag([]byte("hello")); got != "5d41402abc4b2a76b9719d911017c592" {
		t.Errorf("GoogleDrive tag = %q", got)
	}
}

func TestPostgresLocalTag(t *testing.T) {
	p := &Postgres{}
	if got := p.LocalTag([]byte("hello")); got != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Errorf("Postgres tag = %q", got)
	}
}

func TestDropboxLocalTagSingleBlock(t *testing.T) {
	p := NewDropbox("tok")

	// For content under one block, the content hash is the SHA-256 of the
	// single block digest.
	data := []byte("hello")
	block := sha256.Sum256(data)
	final := sha256.Sum256(block[:])

	if got := p.LocalTag(data); got != hex.EncodeToString(final[:]) {
		t.Errorf("Dropbox tag = %q, want %q", got, hex.EncodeToString(final[:]))
	}
}

func TestDropboxLocalTagMultiBlock(t *testing.T) {
	p := NewDropbox("tok")

	// One full block plus one byte splits into two blocks.
	data := bytes.Repeat([]byte{0xab}, dropboxBlockSize+1)
	first := sha256.Sum256(data[:dropboxBlockSize])
	second := sha256.Sum256(data[dropboxBlockSize:])
	final := sha256.Sum256(append(first[:], second[:]...))

	if got := p.LocalTag(data); got != hex.EncodeToString(final[:]) {
		t.Errorf("Dropbox multi-block tag = %q, want %q", got, hex.EncodeToString(final[:]))
	}
}

func TestDropboxLocalTagEmpty(t *testing.T) {
	p := NewDropbox("tok")
	// Zero blocks: the final hash covers an empty digest list.
	empty := sha256.Sum256(nil)
	if got := p.LocalTag(nil); got != hex.EncodeToString(empty[:]) {
		t.Errorf("Dropbox empty tag = %q", got)
	}
}
