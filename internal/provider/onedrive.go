package provider

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/imroc/req/v3"
)

// OneDrive syncs against a folder in the user's OneDrive via the Microsoft
// Graph API. Remote paths use Graph's colon-delimited addressing under the
// remote root folder; content tags are Graph sha1Hash values.
type OneDrive struct {
	http    *req.Client
	baseURL string
}

func NewOneDrive(token string) *OneDrive {
	return &OneDrive{
		http:    newHTTPClient(token),
		baseURL: "https://graph.microsoft.com/v1.0",
	}
}

func (p *OneDrive) Name() string { return "onedrive" }

type driveItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LastModified time.Time `json:"lastModifiedDateTime"`
	File         *struct {
		Hashes struct {
			SHA1Hash string `json:"sha1Hash"`
		} `json:"hashes"`
	} `json:"file"`
	Folder *struct{} `json:"folder"`
}

type driveChildren struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// List walks the remote root folder recursively so that nested notebook
// directories are reported the same way the other providers report them.
func (p *OneDrive) List(ctx context.Context) ([]RemoteObject, error) {
	type level struct {
		url    string
		prefix string
	}

	var objects []RemoteObject
	pending := []level{{
		url: p.baseURL + "/drive/root:/" + remoteRoot + ":/children",
	}}

	for len(pending) > 0 {
		l := pending[0]
		pending = pending[1:]

		url := l.url
		for url != "" {
			var page driveChildren
			resp, err := p.http.R().
				SetContext(ctx).
				SetSuccessResult(&page).
				Get(url)
			// A vault that has never synced has no remote folder yet.
			if err == nil && resp.StatusCode == http.StatusNotFound && l.prefix == "" {
				return nil, nil
			}
			if err := checkResp("onedrive", "list children", resp, err); err != nil {
				return nil, err
			}

			for _, item := range page.Value {
				switch {
				case item.Folder != nil:
					pending = append(pending, level{
						url:    p.baseURL + "/drive/items/" + item.ID + "/children",
						prefix: l.prefix + item.Name + "/",
					})
				case item.File != nil:
					objects = append(objects, RemoteObject{
						Key:        l.prefix + item.Name,
						ContentTag: item.File.Hashes.SHA1Hash,
						Modified:   item.LastModified,
					})
				}
			}
			url = page.NextLink
		}
	}

	return objects, nil
}

func (p *OneDrive) Upload(ctx context.Context, relPath string, data []byte) error {
	url := p.baseURL + "/drive/root:/" + remoteRoot + "/" + escapePath(relPath) + ":/content"

	resp, err := p.http.R().
		SetContext(ctx).
		SetContentType("application/octet-stream").
		SetBodyBytes(data).
		Put(url)
	return checkResp("onedrive", "upload "+relPath, resp, err)
}

func (p *OneDrive) Download(ctx context.Context, key string) ([]byte, error) {
	url := p.baseURL + "/drive/root:/" + remoteRoot + "/" + escapePath(key) + ":/content"

	resp, err := p.http.R().
		SetContext(ctx).
		Get(url)
	if err := checkResp("onedrive", "download "+key, resp, err); err != nil {
		return nil, err
	}
	return resp.ToBytes()
}

// LocalTag returns the uppercase SHA-1 hex Graph reports as sha1Hash.
func (p *OneDrive) LocalTag(data []byte) string {
	sum := sha1.Sum(data)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
