// Package provider implements the remote storage backends the sync engine
// reconciles a vault against. Every backend exposes the same surface:
// list the objects it holds, upload a vault file, download an object, and
// compute the content tag the remote would report for a given byte slice.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// remoteRoot is the folder name all cloud backends scope vault objects under.
const remoteRoot = "Azimuth"

// RemoteObject describes one object in a remote listing. Key is the
// vault-relative path with forward slashes. ContentTag is the provider's
// native content token (ETag or hash) and is only comparable against
// LocalTag output of the same provider.
type RemoteObject struct {
	Key        string
	ContentTag string
	Modified   time.Time
}

// Provider is the common contract the sync engine drives.
type Provider interface {
	Name() string
	// List returns every vault object the remote currently holds.
	List(ctx context.Context) ([]RemoteObject, error)
	// Upload overwrites the object at relPath with data. Re-uploading
	// identical bytes to the same path is a no-op in effect.
	Upload(ctx context.Context, relPath string, data []byte) error
	// Download returns the bytes of the object at key.
	Download(ctx context.Context, key string) ([]byte, error)
	// LocalTag computes the content tag the remote would report for data,
	// so local bytes can be compared against a listing without a transfer.
	LocalTag(data []byte) string
}

// ErrAuth marks remote failures caused by invalid or expired credentials.
// Check with errors.Is; the concrete error is always a *RemoteError.
var ErrAuth = errors.New("invalid or expired credentials")

// RemoteError wraps a failed remote call with the provider and operation
// that produced it.
type RemoteError struct {
	Provider string
	Op       string
	Status   int // HTTP status, 0 when not applicable
	Err      error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", e.Provider, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// remoteErr builds a RemoteError, folding auth-class HTTP statuses into ErrAuth.
func remoteErr(provider, op string, status int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		err = fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return &RemoteError{Provider: provider, Op: op, Status: status, Err: err}
}

// Names lists the providers New accepts, in display order.
func Names() []string {
	return []string{"s3", "dropbox", "onedrive", "googledrive", "postgres"}
}

// New builds the provider selected by a vault's sync config from its
// opaque credentials blob.
func New(ctx context.Context, name string, credentials json.RawMessage) (Provider, error) {
	switch name {
	case "s3":
		var creds S3Credentials
		if err := json.Unmarshal(credentials, &creds); err != nil {
			return nil, fmt.Errorf("s3 credentials: %w", err)
		}
		return NewS3(ctx, creds)
	case "dropbox":
		var creds TokenCredentials
		if err := json.Unmarshal(credentials, &creds); err != nil {
			return nil, fmt.Errorf("dropbox credentials: %w", err)
		}
		return NewDropbox(creds.AccessToken), nil
	case "onedrive":
		var creds TokenCredentials
		if err := json.Unmarshal(credentials, &creds); err != nil {
			return nil, fmt.Errorf("onedrive credentials: %w", err)
		}
		return NewOneDrive(creds.AccessToken), nil
	case "googledrive":
		var creds TokenCredentials
		if err := json.Unmarshal(credentials, &creds); err != nil {
			return nil, fmt.Errorf("googledrive credentials: %w", err)
		}
		return NewGoogleDrive(creds.AccessToken), nil
	case "postgres":
		var creds PostgresCredentials
		if err := json.Unmarshal(credentials, &creds); err != nil {
			return nil, fmt.Errorf("postgres credentials: %w", err)
		}
		return NewPostgres(ctx, creds.DSN)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// TokenCredentials is the credentials blob for the bearer-token providers
// (Dropbox, OneDrive, Google Drive). Token acquisition is out of scope;
// callers supply a valid access token.
type TokenCredentials struct {
	AccessToken string `json:"access_token"`
}
