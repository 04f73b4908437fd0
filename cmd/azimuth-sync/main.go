package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/azimuth-notes/azimuth-sync/internal/config"
	"github.com/azimuth-notes/azimuth-sync/internal/provider"
	"github.com/azimuth-notes/azimuth-sync/internal/sync"
	"github.com/azimuth-notes/azimuth-sync/internal/watcher"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "azimuth-sync",
		Short:   "Cloud sync engine for Azimuth note vaults",
		Long:    `Keeps a local Azimuth note vault in sync with a remote store: S3-compatible object storage, Dropbox, OneDrive, Google Drive, or a self-hosted PostgreSQL database.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		syncCmd(),
		watchCmd(),
		statusCmd(),
		conflictsCmd(),
		resolveCmd(),
		vaultConfigCmd(),
		initCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// vaultRoot resolves the vault directory: the positional argument when
// given, the configured vault path otherwise.
func vaultRoot(cfg *config.Config, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.VaultPath
}

// openProvider loads the vault's sync config and builds the provider it
// selects. The returned provider is closed by the caller when it implements
// io.Closer.
func openProvider(ctx context.Context, root string) (*sync.SyncConfig, provider.Provider, error) {
	vaultCfg, err := sync.LoadSyncConfig(root)
	if err != nil {
		return nil, nil, err
	}
	if vaultCfg == nil {
		return nil, nil, fmt.Errorf("no sync configuration in %s; run 'azimuth-sync init' or 'azimuth-sync config set'", root)
	}
	if !vaultCfg.Enabled {
		return nil, nil, fmt.Errorf("sync is disabled for %s", root)
	}

	p, err := provider.New(ctx, vaultCfg.Provider, vaultCfg.Credentials)
	if err != nil {
		return nil, nil, err
	}
	return vaultCfg, p, nil
}

func closeProvider(p provider.Provider) {
	if c, ok := p.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close provider", "provider", p.Name(), "error", err)
		}
	}
}

func runSync(ctx context.Context, cfg *config.Config, root string) (*sync.Outcome, error) {
	vaultCfg, p, err := openProvider(ctx, root)
	if err != nil {
		return nil, err
	}
	defer closeProvider(p)

	engine := sync.NewEngine(root, p, vaultCfg, cfg.IgnorePatterns)
	engine.ShowProgress(isatty.IsTerminal(os.Stderr.Fd()))
	return engine.Reconcile(ctx)
}

func printOutcome(outcome *sync.Outcome) {
	fmt.Printf("Sync completed: %s\n", outcome.Message)
	for _, c := range outcome.Conflicts {
		fmt.Printf("  conflict: %s (local %s, remote %s)\n",
			c.FilePath,
			c.LocalModified.Format(time.RFC3339),
			c.RemoteModified.Format(time.RFC3339))
	}
	if len(outcome.Conflicts) > 0 {
		fmt.Println("Resolve with: azimuth-sync resolve <path> --keep local|remote|both")
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [vault]",
		Short: "One-time full sync, then exit",
		Long:  `Performs a full reconciliation of the vault against its configured remote and exits.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			outcome, err := runSync(ctx, cfg, vaultRoot(cfg, args))
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			printOutcome(outcome)
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [vault]",
		Short: "Watch the vault and re-sync on changes",
		Long:  `Runs an initial full sync, then watches the vault for file changes and re-syncs after each quiet period.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			root := vaultRoot(cfg, args)
			debounce := time.Duration(cfg.Sync.DebounceMs) * time.Millisecond

			slog.Info("performing initial sync")
			if outcome, err := runSync(ctx, cfg, root); err != nil {
				slog.Error("initial sync failed", "error", err)
			} else {
				printOutcome(outcome)
			}

			w, err := watcher.New(root, debounce, cfg.IgnorePatterns)
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}
			defer w.Stop()

			fmt.Println("Watching vault for changes. Press Ctrl+C to stop.")

			// Changes within one quiet period collapse into a single run.
			resync := time.NewTimer(debounce)
			if !resync.Stop() {
				<-resync.C
			}

			for {
				select {
				case <-ctx.Done():
					slog.Info("shutting down")
					return nil

				case event, ok := <-w.Events():
					if !ok {
						return nil
					}
					slog.Debug("file event", "path", event.Path, "type", event.EventType.String())
					resync.Reset(debounce)

				case <-resync.C:
					if outcome, err := runSync(ctx, cfg, root); err != nil {
						if errors.Is(err, sync.ErrSyncInProgress) {
							resync.Reset(debounce)
							continue
						}
						slog.Error("sync failed", "error", err)
					} else {
						printOutcome(outcome)
					}
				}
			}
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [vault]",
		Short: "Show sync configuration and pending conflicts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			root := vaultRoot(cfg, args)

			fmt.Println("=== Azimuth Sync Status ===")
			fmt.Printf("Vault: %s\n", root)

			vaultCfg, err := sync.LoadSyncConfig(root)
			if err != nil {
				return err
			}
			if vaultCfg == nil {
				fmt.Println("Sync: not configured")
				return nil
			}

			fmt.Printf("Provider: %s\n", vaultCfg.Provider)
			fmt.Printf("Enabled: %v\n", vaultCfg.Enabled)
			if vaultCfg.LastSync != nil {
				fmt.Printf("Last Sync: %s\n", vaultCfg.LastSync.Format(time.RFC3339))
			} else {
				fmt.Println("Last Sync: never")
			}

			pending, err := sync.PendingConflicts(root)
			if err != nil {
				return err
			}
			fmt.Printf("Pending Conflicts: %d\n", len(pending))
			return nil
		},
	}
}

func conflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts [vault]",
		Short: "List files with unresolved sync conflicts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			pending, err := sync.PendingConflicts(vaultRoot(cfg, args))
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("No pending conflicts.")
				return nil
			}
			for _, path := range pending {
				fmt.Println(path)
			}
			return nil
		},
	}
}

func resolveCmd() *cobra.Command {
	var keep string

	cmd := &cobra.Command{
		Use:   "resolve <path>",
		Short: "Resolve a sync conflict",
		Long: `Applies a resolution to a conflicted file's sidecar:
  --keep local   discard the remote copy
  --keep remote  replace the local file with the remote copy
  --keep both    keep both, renaming the remote copy with a _conflict suffix`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			var resolution string
			switch keep {
			case "local":
				resolution = sync.KeepLocal
			case "remote":
				resolution = sync.KeepRemote
			case "both":
				resolution = sync.KeepBoth
			default:
				return fmt.Errorf("invalid --keep value %q: must be local, remote or both", keep)
			}

			if err := sync.Resolve(cfg.VaultPath, args[0], resolution); err != nil {
				return err
			}
			fmt.Printf("Resolved %s (%s)\n", args[0], keep)
			return nil
		},
	}

	cmd.Flags().StringVar(&keep, "keep", "", "which version to keep: local, remote or both")
	cmd.MarkFlagRequired("keep")
	return cmd
}

func vaultConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the vault's sync configuration",
	}
	cmd.AddCommand(configShowCmd(), configSetCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [vault]",
		Short: "Print the vault's sync configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			vaultCfg, err := sync.LoadSyncConfig(vaultRoot(cfg, args))
			if err != nil {
				return err
			}
			if vaultCfg == nil {
				fmt.Println("No sync configuration.")
				return nil
			}

			// Credentials stay out of terminal output.
			redacted := *vaultCfg
			redacted.Credentials = json.RawMessage(`"<redacted>"`)
			out, err := json.MarshalIndent(&redacted, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	var (
		providerName string
		enabled      bool
		credentials  string
	)

	cmd := &cobra.Command{
		Use:   "set [vault]",
		Short: "Update the vault's sync configuration",
		Long:  `Updates the vault's sync configuration. Only the flags given change; other fields keep their current values.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			root := vaultRoot(cfg, args)

			vaultCfg, err := sync.LoadSyncConfig(root)
			if err != nil {
				return err
			}
			if vaultCfg == nil {
				vaultCfg = &sync.SyncConfig{}
			}

			if cmd.Flags().Changed("provider") {
				if !validProviderName(providerName) {
					return fmt.Errorf("unknown provider %q: must be one of %s",
						providerName, strings.Join(provider.Names(), ", "))
				}
				vaultCfg.Provider = providerName
			}
			if cmd.Flags().Changed("enabled") {
				vaultCfg.Enabled = enabled
			}
			if cmd.Flags().Changed("credentials") {
				if !json.Valid([]byte(credentials)) {
					return fmt.Errorf("credentials must be a valid JSON object")
				}
				vaultCfg.Credentials = json.RawMessage(credentials)
			}

			if err := sync.SaveSyncConfig(root, vaultCfg); err != nil {
				return err
			}
			fmt.Println("Sync configuration updated.")
			return nil
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "remote provider: "+strings.Join(provider.Names(), ", "))
	cmd.Flags().BoolVar(&enabled, "enabled", true, "enable or disable sync for the vault")
	cmd.Flags().StringVar(&credentials, "credentials", "", "provider credentials as a JSON object")
	return cmd
}

func validProviderName(name string) bool {
	for _, n := range provider.Names() {
		if n == name {
			return true
		}
	}
	return false
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive setup for a vault and its remote",
		Long:  `Interactively creates the application config file and the vault's sync configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(os.Stdin)

			fmt.Println("=== Azimuth Sync Setup ===")
			fmt.Println()

			defaults := config.DefaultConfig()
			fmt.Printf("Vault path [%s]: ", defaults.VaultPath)
			vaultPath := readLine(reader)
			if vaultPath == "" {
				vaultPath = defaults.VaultPath
			}
			if err := os.MkdirAll(vaultPath, 0o755); err != nil {
				return fmt.Errorf("failed to create vault directory: %w", err)
			}

			fmt.Printf("Provider (%s): ", strings.Join(provider.Names(), ", "))
			providerName := readLine(reader)
			if !validProviderName(providerName) {
				return fmt.Errorf("unknown provider %q", providerName)
			}

			credentials, err := promptCredentials(reader, providerName)
			if err != nil {
				return err
			}

			vaultCfg := &sync.SyncConfig{
				Provider:    providerName,
				Enabled:     true,
				Credentials: credentials,
			}
			if err := sync.SaveSyncConfig(vaultPath, vaultCfg); err != nil {
				return err
			}

			appCfg, err := yaml.Marshal(map[string]any{
				"vault_path": vaultPath,
				"sync": map[string]any{
					"debounce_ms": defaults.Sync.DebounceMs,
				},
				"ignore_patterns": defaults.IgnorePatterns,
			})
			if err != nil {
				return err
			}

			configDir, err := config.GetConfigDir()
			if err != nil {
				return err
			}
			configPath := filepath.Join(configDir, "config.yaml")
			if err := os.WriteFile(configPath, appCfg, 0o600); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			fmt.Printf("\nConfig file written to: %s\n", configPath)
			fmt.Printf("Sync configuration written to: %s\n", filepath.Join(vaultPath, sync.SyncConfigFile))
			fmt.Println("\nTo run a sync: azimuth-sync sync")
			fmt.Println("To watch for changes: azimuth-sync watch")
			return nil
		},
	}
}

// promptCredentials collects the provider-specific credentials blob. Token
// acquisition is out of scope; users paste tokens obtained elsewhere.
func promptCredentials(reader *bufio.Reader, providerName string) (json.RawMessage, error) {
	switch providerName {
	case "s3":
		fmt.Print("  Bucket: ")
		bucket := readLine(reader)
		fmt.Print("  Region: ")
		region := readLine(reader)
		fmt.Print("  Access key: ")
		accessKey := readLine(reader)
		fmt.Print("  Secret key: ")
		secretKey := readLine(reader)
		fmt.Print("  Endpoint (blank for AWS): ")
		endpoint := readLine(reader)
		return json.Marshal(provider.S3Credentials{
			Bucket:    bucket,
			Region:    region,
			AccessKey: accessKey,
			SecretKey: secretKey,
			Endpoint:  endpoint,
		})
	case "postgres":
		fmt.Print("  Connection string (postgres://...): ")
		return json.Marshal(provider.PostgresCredentials{DSN: readLine(reader)})
	default:
		fmt.Print("  Access token: ")
		return json.Marshal(provider.TokenCredentials{AccessToken: readLine(reader)})
	}
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
