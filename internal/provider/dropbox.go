package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/imroc/req/v3"
)

// dropboxBlockSize is the block size of the Dropbox content-hash algorithm.
const dropboxBlockSize = 4 * 1024 * 1024

// Dropbox syncs against a Dropbox app folder. Remote paths are the
// vault-relative paths prefixed with the remote root folder; content tags
// are Dropbox content_hash values.
type Dropbox struct {
	http       *req.Client
	apiURL     string
	contentURL string
}

func NewDropbox(token string) *Dropbox {
	return &Dropbox{
		http:       newHTTPClient(token),
		apiURL:     "https://api.dropboxapi.com",
		contentURL: "https://content.dropboxapi.com",
	}
}

func (p *Dropbox) Name() string { return "dropbox" }

func (p *Dropbox) remotePath(relPath string) string {
	return "/" + remoteRoot + "/" + relPath
}

type dropboxEntry struct {
	Tag            string    `json:".tag"`
	PathDisplay    string    `json:"path_display"`
	ContentHash    string    `json:"content_hash"`
	ServerModified time.Time `json:"server_modified"`
}

type dropboxListResponse struct {
	Entries []dropboxEntry `json:"entries"`
	Cursor  string         `json:"cursor"`
	HasMore bool           `json:"has_more"`
}

func (p *Dropbox) List(ctx context.Context) ([]RemoteObject, error) {
	var objects []RemoteObject

	var page dropboxListResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"path": "/" + remoteRoot, "recursive": true}).
		SetSuccessResult(&page).
		Post(p.apiURL + "/2/files/list_folder")
	// A vault that has never synced has no remote folder yet.
	if err == nil && resp.StatusCode == http.StatusConflict {
		return nil, nil
	}
	if err := checkResp("dropbox", "list folder", resp, err); err != nil {
		return nil, err
	}

	for {
		for _, e := range page.Entries {
			if e.Tag != "file" {
				continue
			}
			key := strings.TrimPrefix(e.PathDisplay, "/"+remoteRoot+"/")
			objects = append(objects, RemoteObject{
				Key:        key,
				ContentTag: e.ContentHash,
				Modified:   e.ServerModified,
			})
		}
		if !page.HasMore {
			break
		}

		cursor := page.Cursor
		page = dropboxListResponse{}
		resp, err := p.http.R().
			SetContext(ctx).
			SetBody(map[string]any{"cursor": cursor}).
			SetSuccessResult(&page).
			Post(p.apiURL + "/2/files/list_folder/continue")
		if err := checkResp("dropbox", "list folder continue", resp, err); err != nil {
			return nil, err
		}
	}

	return objects, nil
}

func (p *Dropbox) Upload(ctx context.Context, relPath string, data []byte) error {
	arg, _ := json.Marshal(map[string]any{
		"path":       p.remotePath(relPath),
		"mode":       "overwrite",
		"autorename": false,
		"mute":       true,
	})

	resp, err := p.http.R().
		SetContext(ctx).
		SetHeader("Dropbox-API-Arg", string(arg)).
		SetContentType("application/octet-stream").
		SetBodyBytes(data).
		Post(p.contentURL + "/2/files/upload")
	return checkResp("dropbox", "upload "+relPath, resp, err)
}

func (p *Dropbox) Download(ctx context.Context, key string) ([]byte, error) {
	arg, _ := json.Marshal(map[string]any{"path": p.remotePath(key)})

	resp, err := p.http.R().
		SetContext(ctx).
		SetHeader("Dropbox-API-Arg", string(arg)).
		Post(p.contentURL + "/2/files/download")
	if err := checkResp("dropbox", "download "+key, resp, err); err != nil {
		return nil, err
	}
	return resp.ToBytes()
}

// LocalTag implements the Dropbox content-hash algorithm: SHA-256 of the
// concatenated SHA-256 digests of each 4 MiB block.
func (p *Dropbox) LocalTag(data []byte) string {
	var digests []byte
	for len(data) > 0 {
		n := min(len(data), dropboxBlockSize)
		sum := sha256.Sum256(data[:n])
		digests = append(digests, sum[:]...)
		data = data[n:]
	}
	final := sha256.Sum256(digests)
	return hex.EncodeToString(final[:])
}
