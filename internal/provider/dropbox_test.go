package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeDropbox serves the subset of the Dropbox API the provider uses,
// backed by an in-memory object map keyed by remote path.
type fakeDropbox struct {
	objects map[string][]byte
}

func (f *fakeDropbox) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/2/files/list_folder", func(w http.ResponseWriter, r *http.Request) {
		if len(f.objects) == 0 {
			// No remote folder yet.
			w.WriteHeader(http.StatusConflict)
			return
		}
		var entries []map[string]any
		for path, data := range f.objects {
			entries = append(entries, map[string]any{
				".tag":            "file",
				"path_display":    path,
				"content_hash":    NewDropbox("").LocalTag(data),
				"server_modified": "2026-08-01T12:00:00Z",
			})
		}
		entries = append(entries, map[string]any{
			".tag":         "folder",
			"path_display": "/Azimuth/notes",
		})
		json.NewEncoder(w).Encode(map[string]any{"entries": entries, "has_more": false})
	})

	mux.HandleFunc("/2/files/upload", func(w http.ResponseWriter, r *http.Request) {
		var arg struct {
			Path string `json:"path"`
			Mode string `json:"mode"`
		}
		if err := json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if arg.Mode != "overwrite" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(r.Body)
		f.objects[arg.Path] = data
		json.NewEncoder(w).Encode(map[string]any{"path_display": arg.Path})
	})

	mux.HandleFunc("/2/files/download", func(w http.ResponseWriter, r *http.Request) {
		var arg struct {
			Path string `json:"path"`
		}
		json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg)
		data, ok := f.objects[arg.Path]
		if !ok {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.Write(data)
	})

	return mux
}

func newDropboxAgainst(t *testing.T, fake *fakeDropbox) *Dropbox {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	p := NewDropbox("test-token")
	p.apiURL = srv.URL
	p.contentURL = srv.URL
	return p
}

func TestDropboxList(t *testing.T) {
	fake := &fakeDropbox{objects: map[string][]byte{
		"/Azimuth/a.md":       []byte("alpha"),
		"/Azimuth/notes/b.md": []byte("beta"),
	}}
	p := newDropboxAgainst(t, fake)

	objects, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objects))
	}

	byKey := map[string]RemoteObject{}
	for _, obj := range objects {
		byKey[obj.Key] = obj
	}
	obj, ok := byKey["notes/b.md"]
	if !ok {
		t.Fatal("keys must be vault-relative, stripped of the remote root prefix")
	}
	if obj.ContentTag != p.LocalTag([]byte("beta")) {
		t.Errorf("content tag %q does not match LocalTag", obj.ContentTag)
	}
	if obj.Modified.IsZero() {
		t.Error("expected server_modified to be parsed")
	}
}

func TestDropboxListEmptyVault(t *testing.T) {
	p := newDropboxAgainst(t, &fakeDropbox{objects: map[string][]byte{}})

	objects, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("a vault that never synced should list as empty, got %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("expected empty listing, got %v", objects)
	}
}

func TestDropboxRoundTrip(t *testing.T) {
	fake := &fakeDropbox{objects: map[string][]byte{}}
	p := newDropboxAgainst(t, fake)
	ctx := context.Background()

	content := []byte("note body")
	if err := p.Upload(ctx, "notes/a.md", content); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if _, ok := fake.objects["/Azimuth/notes/a.md"]; !ok {
		t.Fatal("upload must target the remote root folder")
	}

	got, err := p.Download(ctx, "notes/a.md")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("downloaded %q, want %q", got, content)
	}
}

func TestDropboxAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p := NewDropbox("expired")
	p.apiURL = srv.URL
	p.contentURL = srv.URL

	err := p.Upload(context.Background(), "a.md", []byte("x"))
	if !errors.Is(err, ErrAuth) {
		t.Errorf("expected ErrAuth, got %v", err)
	}
}
