package watcher

import (
	"testing"
	"time"
)

func TestShouldIgnore(t *testing.T) {
	w, err := New(t.TempDir(), time.Millisecond, []string{".trash/**", "**/node_modules/**"})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	tests := []struct {
		rel  string
		want bool
	}{
		{"a.md", false},
		{"notes/b.md", false},
		{".git/config", true},
		{".DS_Store", true},
		{"notes/.hidden.md", true},
		{".sync_config.json", true},
		{"notes/a.conflict", true},
		{".trash/old.md", true},
		{"pkg/node_modules/x/y.js", true},
	}
	for _, tt := range tests {
		if got := w.shouldIgnore(tt.rel); got != tt.want {
			t.Errorf("shouldIgnore(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}
