package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// SyncConfigFile is the name of the per-vault sync configuration file,
// stored at the vault root.
const SyncConfigFile = ".sync_config.json"

// SyncConfig is the persisted per-vault sync configuration.
type SyncConfig struct {
	Provider    string          `json:"provider"`
	Enabled     bool            `json:"enabled"`
	Credentials json.RawMessage `json:"credentials"`
	LastSync    *time.Time      `json:"last_sync"`
}

// LoadSyncConfig reads the sync configuration from the vault root. It
// returns (nil, nil) when no configuration file exists.
func LoadSyncConfig(root string) (*SyncConfig, error) {
	path := filepath.Join(root, SyncConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading sync config: %w", err)
	}

	var cfg SyncConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing sync config: %w", err)
	}
	return &cfg, nil
}

// SaveSyncConfig writes the sync configuration to the vault root. The file
// holds credentials, so it is written with owner-only permissions.
func SaveSyncConfig(root string, cfg *SyncConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sync config: %w", err)
	}
	path := filepath.Join(root, SyncConfigFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing sync config: %w", err)
	}
	return nil
}
