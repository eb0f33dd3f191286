package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/keytape/keytape/internal/config"
	"github.com/keytape/keytape/internal/session"
)

var (
	cfgPath string
	verbose bool

	// cfg holds the merged configuration, populated in PersistentPreRunE.
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "keytape",
	Short: "Hold a key combo to record voice notes, release to save",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

		global, err := config.LoadGlobal()
		if err != nil {
			return fmt.Errorf("loading global config: %w", err)
		}
		var override *config.Config
		if cfgPath != "" {
			override, err = config.LoadFile(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config %s: %w", cfgPath, err)
			}
		}
		cfg = config.Merge(global, override)

		if cfg.RecordingsDir == "" {
			dataDir, err := session.DataDir()
			if err != nil {
				return fmt.Errorf("resolving data directory: %w", err)
			}
			cfg.RecordingsDir = filepath.Join(dataDir, "recordings")
		}
		return nil
	},
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// historyPath returns the session history database location.
func historyPath() (string, error) {
	dir, err := session.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file overriding the global one")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
