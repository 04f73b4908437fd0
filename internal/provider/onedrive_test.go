package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeGraph serves the subset of the Microsoft Graph drive API the provider
// uses. Objects are keyed by vault-relative path; one nested folder level is
// enough to exercise the recursive listing.
type fakeGraph struct {
	objects map[string][]byte
}

func (f *fakeGraph) handler() http.Handler {
	tag := NewOneDrive("")

	item := func(path string, data []byte) map[string]any {
		return map[string]any{
			"id":                   "id-" + path,
			"name":                 path[strings.LastIndex(path, "/")+1:],
			"lastModifiedDateTime": "2026-08-01T12:00:00Z",
			"file": map[string]any{
				"hashes": map[string]any{"sha1Hash": tag.LocalTag(data)},
			},
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		switch {
		case path == "/drive/root:/Azimuth:/children":
			if len(f.objects) == 0 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			var value []map[string]any
			folders := map[string]bool{}
			for key, data := range f.objects {
				if i := strings.Index(key, "/"); i >= 0 {
					folders[key[:i]] = true
					continue
				}
				value = append(value, item(key, data))
			}
			for name := range folders {
				value = append(value, map[string]any{
					"id":     "folder-" + name,
					"name":   name,
					"folder": map[string]any{},
				})
			}
			json.NewEncoder(w).Encode(map[string]any{"value": value})

		case strings.HasPrefix(path, "/drive/items/folder-") && strings.HasSuffix(path, "/children"):
			folder := strings.TrimSuffix(strings.TrimPrefix(path, "/drive/items/folder-"), "/children")
			var value []map[string]any
			for key, data := range f.objects {
				if strings.HasPrefix(key, folder+"/") {
					value = append(value, item(key, data))
				}
			}
			json.NewEncoder(w).Encode(map[string]any{"value": value})

		case strings.HasPrefix(path, "/drive/root:/Azimuth/") && strings.HasSuffix(path, ":/content"):
			key := strings.TrimSuffix(strings.TrimPrefix(path, "/drive/root:/Azimuth/"), ":/content")
			switch r.Method {
			case http.MethodPut:
				data, _ := io.ReadAll(r.Body)
				f.objects[key] = data
				w.WriteHeader(http.StatusCreated)
				json.NewEncoder(w).Encode(item(key, data))
			case http.MethodGet:
				data, ok := f.objects[key]
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.Write(data)
			}

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newOneDriveAgainst(t *testing.T, fake *fakeGraph) *OneDrive {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	p := NewOneDrive("test-token")
	p.baseURL = srv.URL
	return p
}

func TestOneDriveListRecursive(t *testing.T) {
	fake := &fakeGraph{objects: map[string][]byte{
		"a.md":       []byte("alpha"),
		"notes/b.md": []byte("beta"),
	}}
	p := newOneDriveAgainst(t, fake)

	objects, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects including the nested one, got %v", objects)
	}

	byKey := map[string]RemoteObject{}
	for _, obj := range objects {
		byKey[obj.Key] = obj
	}
	obj, ok := byKey["notes/b.md"]
	if !ok {
		t.Fatal("nested files must list with their folder prefix")
	}
	if obj.ContentTag != p.LocalTag([]byte("beta")) {
		t.Errorf("content tag %q does not match LocalTag", obj.ContentTag)
	}
}

func TestOneDriveListEmptyVault(t *testing.T) {
	p := newOneDriveAgainst(t, &fakeGraph{objects: map[string][]byte{}})

	objects, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("a vault that never synced should list as empty, got %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("expected empty listing, got %v", objects)
	}
}

func TestOneDriveRoundTrip(t *testing.T) {
	fake := &fakeGraph{objects: map[string][]byte{}}
	p := newOneDriveAgainst(t, fake)
	ctx := context.Background()

	content := []byte("note body")
	if err := p.Upload(ctx, "notes/a.md", content); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	got, err := p.Download(ctx, "notes/a.md")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("downloaded %q, want %q", got, content)
	}
}
