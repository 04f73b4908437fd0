package provider

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/imroc/req/v3"
)

// GoogleDrive syncs against a single well-known folder in the user's Drive,
// created on demand. Drive has no real paths, so the vault-relative path is
// stored verbatim as the file name inside the folder; content tags are the
// md5Checksum values Drive reports.
type GoogleDrive struct {
	http      *req.Client
	baseURL   string
	uploadURL string

	folderID string
	fileIDs  map[string]string // vault-relative path -> Drive file ID
}

func NewGoogleDrive(token string) *GoogleDrive {
	return &GoogleDrive{
		http:      newHTTPClient(token),
		baseURL:   "https://www.googleapis.com",
		uploadURL: "https://www.googleapis.com/upload",
		fileIDs:   make(map[string]string),
	}
}

func (p *GoogleDrive) Name() string { return "googledrive" }

type driveFile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MD5Checksum  string    `json:"md5Checksum"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

type driveFileList struct {
	Files         []driveFile `json:"files"`
	NextPageToken string      `json:"nextPageToken"`
}

// ensureFolder locates the remote root folder, creating it if absent.
// This is the one backend needing a locate-or-create step before any
// list/upload/download can proceed.
func (p *GoogleDrive) ensureFolder(ctx context.Context) error {
	if p.folderID != "" {
		return nil
	}

	query := fmt.Sprintf("name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false", remoteRoot)
	var list driveFileList
	resp, err := p.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("fields", "files(id,name)").
		SetSuccessResult(&list).
		Get(p.baseURL + "/drive/v3/files")
	if err := checkResp("googledrive", "find folder", resp, err); err != nil {
		return err
	}

	if len(list.Files) > 0 {
		p.folderID = list.Files[0].ID
		return nil
	}

	var created driveFile
	resp, err = p.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"name":     remoteRoot,
			"mimeType": "application/vnd.google-apps.folder",
		}).
		SetSuccessResult(&created).
		Post(p.baseURL + "/drive/v3/files")
	if err := checkResp("googledrive", "create folder", resp, err); err != nil {
		return err
	}

	p.folderID = created.ID
	return nil
}

func (p *GoogleDrive) List(ctx context.Context) ([]RemoteObject, error) {
	if err := p.ensureFolder(ctx); err != nil {
		return nil, err
	}

	var objects []RemoteObject
	pageToken := ""
	for {
		var list driveFileList
		r := p.http.R().
			SetContext(ctx).
			SetQueryParam("q", fmt.Sprintf("'%s' in parents and trashed=false", p.folderID)).
			SetQueryParam("fields", "nextPageToken, files(id,name,md5Checksum,modifiedTime)").
			SetQueryParam("pageSize", "1000").
			SetSuccessResult(&list)
		if pageToken != "" {
			r.SetQueryParam("pageToken", pageToken)
		}
		resp, err := r.Get(p.baseURL + "/drive/v3/files")
		if err := checkResp("googledrive", "list files", resp, err); err != nil {
			return nil, err
		}

		for _, f := range list.Files {
			p.fileIDs[f.Name] = f.ID
			objects = append(objects, RemoteObject{
				Key:        f.Name,
				ContentTag: f.MD5Checksum,
				Modified:   f.ModifiedTime,
			})
		}

		pageToken = list.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return objects, nil
}

func (p *GoogleDrive) Upload(ctx context.Context, relPath string, data []byte) error {
	if err := p.ensureFolder(ctx); err != nil {
		return err
	}

	// Overwrite by ID when the file already exists; otherwise create it
	// with a multipart request carrying name and parent metadata.
	if id, ok := p.fileIDs[relPath]; ok {
		resp, err := p.http.R().
			SetContext(ctx).
			SetContentType("application/octet-stream").
			SetBodyBytes(data).
			Patch(p.uploadURL + "/drive/v3/files/" + id + "?uploadType=media")
		return checkResp("googledrive", "update "+relPath, resp, err)
	}

	body, contentType, err := driveMultipartBody(relPath, p.folderID, data)
	if err != nil {
		return remoteErr("googledrive", "upload "+relPath, 0, err)
	}

	var created driveFile
	resp, err := p.http.R().
		SetContext(ctx).
		SetContentType(contentType).
		SetBodyBytes(body).
		SetSuccessResult(&created).
		Post(p.uploadURL + "/drive/v3/files?uploadType=multipart")
	if err := checkResp("googledrive", "upload "+relPath, resp, err); err != nil {
		return err
	}

	p.fileIDs[relPath] = created.ID
	return nil
}

func (p *GoogleDrive) Download(ctx context.Context, key string) ([]byte, error) {
	if err := p.ensureFolder(ctx); err != nil {
		return nil, err
	}

	id, ok := p.fileIDs[key]
	if !ok {
		var err error
		id, err = p.findFileID(ctx, key)
		if err != nil {
			return nil, err
		}
	}

	resp, err := p.http.R().
		SetContext(ctx).
		SetQueryParam("alt", "media").
		Get(p.baseURL + "/drive/v3/files/" + id)
	if err := checkResp("googledrive", "download "+key, resp, err); err != nil {
		return nil, err
	}
	return resp.ToBytes()
}

func (p *GoogleDrive) findFileID(ctx context.Context, key string) (string, error) {
	escaped := strings.ReplaceAll(key, `'`, `\'`)
	query := fmt.Sprintf("name='%s' and '%s' in parents and trashed=false", escaped, p.folderID)

	var list driveFileList
	resp, err := p.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("fields", "files(id,name)").
		SetSuccessResult(&list).
		Get(p.baseURL + "/drive/v3/files")
	if err := checkResp("googledrive", "find "+key, resp, err); err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		return "", remoteErr("googledrive", "find "+key, 0, fmt.Errorf("no such object"))
	}

	p.fileIDs[key] = list.Files[0].ID
	return list.Files[0].ID, nil
}

// LocalTag returns the MD5 hex Drive reports as md5Checksum.
func (p *GoogleDrive) LocalTag(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// driveMultipartBody assembles the multipart/related body of a Drive
// create-with-metadata upload.
func driveMultipartBody(name, parentID string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	meta, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return nil, "", err
	}
	if err := json.NewEncoder(meta).Encode(map[string]any{
		"name":    name,
		"parents": []string{parentID},
	}); err != nil {
		return nil, "", err
	}

	media, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/octet-stream"},
	})
	if err != nil {
		return nil, "", err
	}
	if _, err := media.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), "multipart/related; boundary=" + w.Boundary(), nil
}
