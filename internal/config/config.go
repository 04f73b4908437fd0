// Package config loads the application-level configuration: where the vault
// lives and how the watcher and scanner behave. Per-vault sync settings
// (provider, credentials, last sync) live in the vault's own sidecar file
// and are handled by the sync package.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	VaultPath      string      `mapstructure:"vault_path" validate:"required,dir"`
	Sync           SyncOptions `mapstructure:"sync"`
	IgnorePatterns []string    `mapstructure:"ignore_patterns"`
}

// SyncOptions holds sync behavior settings.
type SyncOptions struct {
	DebounceMs int `mapstructure:"debounce_ms" validate:"min=0"`
}

// DefaultConfig returns a Config with sensible defaults. The default vault
// is ~/Azimuth, created on first scan if absent.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		VaultPath: filepath.Join(home, "Azimuth"),
		Sync: SyncOptions{
			DebounceMs: 2000,
		},
		IgnorePatterns: []string{
			".trash/**",
			"**/.DS_Store",
			"**/node_modules/**",
		},
	}
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("vault_path", defaults.VaultPath)
	v.SetDefault("sync.debounce_ms", defaults.Sync.DebounceMs)
	v.SetDefault("ignore_patterns", defaults.IgnorePatterns)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("AZIMUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is okay; defaults and environment apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.VaultPath = expandPath(cfg.VaultPath)

	validate := validator.New()

	// The vault directory may not exist yet; it is created on first scan.
	// Reject only paths that exist and are not directories.
	validate.RegisterValidation("dir", func(fl validator.FieldLevel) bool {
		path := fl.Field().String()
		if path == "" {
			return false
		}
		info, err := os.Stat(path)
		if err != nil {
			return errors.Is(err, fs.ErrNotExist)
		}
		return info.IsDir()
	})

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// getConfigDir returns the appropriate config directory for the OS.
func getConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "azimuth-sync")
		}
		return filepath.Join(os.Getenv("USERPROFILE"), ".config", "azimuth-sync")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "azimuth-sync")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "azimuth-sync")
	}
}

// GetConfigDir returns the directory for the application config file,
// creating it if needed.
func GetConfigDir() (string, error) {
	dir := getConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// expandPath expands ~ and environment variables in a path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}
	return os.ExpandEnv(path)
}
