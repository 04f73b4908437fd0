package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/azimuth-notes/azimuth-sync/internal/provider"
)

// Conflict records a path that diverged on both sides. The remote copy is
// written to a sidecar next to the local file, pending resolution.
type Conflict struct {
	FilePath       string    `json:"file_path"`
	LocalModified  time.Time `json:"local_modified"`
	RemoteModified time.Time `json:"remote_modified"`
	LocalHash      string    `json:"local_hash"`
	RemoteHash     string    `json:"remote_hash"`
}

// Outcome summarizes one sync run. It is returned to the caller and never
// persisted; counts cover only transfers that completed.
type Outcome struct {
	Success         bool
	Message         string
	FilesUploaded   int
	FilesDownloaded int
	Conflicts       []Conflict
}

// Engine reconciles a vault against one remote provider.
type Engine struct {
	root     string
	provider provider.Provider
	cfg      *SyncConfig
	ignore   []string
	progress bool
}

// NewEngine creates a sync engine for the vault at root. ignore holds extra
// glob patterns excluded from the local manifest on top of the always-skipped
// hidden paths and conflict sidecars.
func NewEngine(root string, p provider.Provider, cfg *SyncConfig, ignore []string) *Engine {
	return &Engine{root: root, provider: p, cfg: cfg, ignore: ignore}
}

// ShowProgress enables terminal progress bars on the transfer loops.
func (e *Engine) ShowProgress(on bool) { e.progress = on }

// Reconcile runs one full sync pass: scan the vault and list the remote
// concurrently, upload local changes, download remote-only objects, and flag
// divergent paths as conflicts.
//
// A path on both sides with mismatched content tags uploads only when the
// local file was modified after the last recorded sync; otherwise the remote
// copy lands in a conflict sidecar and the run reports a Conflict. On the
// first run against a remote, every divergent path is flagged rather than
// overwritten in either direction.
//
// The first failed transfer aborts the run. Files already transferred stay
// transferred, but their counts are discarded with the returned error.
func (e *Engine) Reconcile(ctx context.Context) (*Outcome, error) {
	guard, err := AcquireGuard(e.root, e.provider.Name())
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	runID := uuid.NewString()[:8]
	start := time.Now()
	slog.Info("sync run starting", "run", runID, "provider", e.provider.Name(), "vault", e.root)

	var local []FileRecord
	var remote []provider.RemoteObject

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		local, err = Scan(e.root, e.provider.LocalTag, e.ignore)
		return err
	})
	g.Go(func() error {
		var err error
		remote, err = e.provider.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(remote, func(i, j int) bool { return remote[i].Key < remote[j].Key })

	localByPath := make(map[string]FileRecord, len(local))
	for _, rec := range local {
		localByPath[rec.RelPath] = rec
	}
	remoteByKey := make(map[string]provider.RemoteObject, len(remote))
	for _, obj := range remote {
		remoteByKey[obj.Key] = obj
	}

	var toUpload, diverged []FileRecord
	for _, rec := range local {
		obj, exists := remoteByKey[rec.RelPath]
		switch {
		case !exists:
			toUpload = append(toUpload, rec)
		case obj.ContentTag == rec.Tag:
			// Unchanged.
		case e.cfg.LastSync != nil && rec.ModifiedAt.After(*e.cfg.LastSync):
			toUpload = append(toUpload, rec)
		default:
			diverged = append(diverged, rec)
		}
	}

	var toDownload []provider.RemoteObject
	for _, obj := range remote {
		if _, exists := localByPath[obj.Key]; exists {
			continue
		}
		// Never materialize hidden paths or sidecars a foreign client
		// may have pushed.
		if hasHiddenComponent(obj.Key) || strings.HasSuffix(obj.Key, ".conflict") {
			continue
		}
		toDownload = append(toDownload, obj)
	}

	outcome := &Outcome{}

	bar := e.newBar(len(toUpload), "Uploading files")
	for _, rec := range toUpload {
		data, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(rec.RelPath)))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", rec.RelPath, err)
		}
		if err := e.provider.Upload(ctx, rec.RelPath, data); err != nil {
			return nil, err
		}
		outcome.FilesUploaded++
		slog.Debug("file uploaded", "run", runID, "path", rec.RelPath)
		bar.Add(1)
	}
	bar.Finish()

	bar = e.newBar(len(toDownload), "Downloading files")
	for _, obj := range toDownload {
		data, err := e.provider.Download(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(e.root, filepath.FromSlash(obj.Key))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", obj.Key, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", obj.Key, err)
		}
		outcome.FilesDownloaded++
		slog.Debug("file downloaded", "run", runID, "path", obj.Key)
		bar.Add(1)
	}
	bar.Finish()

	for _, rec := range diverged {
		obj := remoteByKey[rec.RelPath]
		data, err := e.provider.Download(ctx, rec.RelPath)
		if err != nil {
			return nil, err
		}
		if err := WriteConflict(e.root, rec.RelPath, data); err != nil {
			return nil, err
		}
		outcome.Conflicts = append(outcome.Conflicts, Conflict{
			FilePath:       rec.RelPath,
			LocalModified:  rec.ModifiedAt,
			RemoteModified: obj.Modified,
			LocalHash:      rec.ContentHash,
			RemoteHash:     obj.ContentTag,
		})
		slog.Warn("conflict detected", "run", runID, "path", rec.RelPath)
	}

	now := time.Now()
	e.cfg.LastSync = &now
	if err := SaveSyncConfig(e.root, e.cfg); err != nil {
		slog.Warn("failed to save sync config", "run", runID, "error", err)
	}

	outcome.Success = true
	outcome.Message = fmt.Sprintf("uploaded %d, downloaded %d, %d conflicts",
		outcome.FilesUploaded, outcome.FilesDownloaded, len(outcome.Conflicts))

	slog.Info("sync run completed",
		"run", runID,
		"uploaded", outcome.FilesUploaded,
		"downloaded", outcome.FilesDownloaded,
		"conflicts", len(outcome.Conflicts),
		"duration_s", time.Since(start).Seconds())

	return outcome, nil
}

// newBar returns a progress bar over n items, or a silent one when progress
// display is off or there is nothing to show.
func (e *Engine) newBar(n int, description string) *progressbar.ProgressBar {
	if !e.progress || n == 0 {
		return progressbar.DefaultSilent(int64(n))
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)
}
