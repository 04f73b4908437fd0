package provider

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/imroc/req/v3"
)

const httpTimeout = 30 * time.Second

// newHTTPClient builds the shared req client for the bearer-token backends.
func newHTTPClient(token string) *req.Client {
	return req.C().
		SetCommonBearerAuthToken(token).
		SetTimeout(httpTimeout)
}

// checkResp folds the req error pattern into a single RemoteError check.
func checkResp(provider, op string, resp *req.Response, err error) error {
	if err != nil {
		return remoteErr(provider, op, 0, err)
	}
	if resp.IsErrorState() {
		return remoteErr(provider, op, resp.StatusCode, errors.New(strings.TrimSpace(resp.String())))
	}
	return nil
}

// escapePath percent-encodes each segment of a vault-relative path while
// keeping the separators intact, for backends that address files by URL path.
func escapePath(relPath string) string {
	parts := strings.Split(relPath, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
