package cmd

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keytape/keytape/internal/session"
)

var (
	cleanupDryRun       bool
	cleanupOlderThan    time.Duration
	cleanupPruneHistory bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove leftover chunk directories older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		maxAge := cleanupOlderThan
		if maxAge <= 0 {
			maxAge = time.Duration(cfg.CleanupMaxAgeHours) * time.Hour
		}
		cutoff := time.Now().Add(-maxAge)

		// Never touch the session a live recorder may still be writing.
		activeDir := ""
		if store, err := session.NewSnapshotStore(); err == nil {
			if snap, err := store.Load(); err == nil && snap.Status == session.StatusRecording {
				activeDir = "session_" + snap.SessionID
			}
		}

		entries, err := os.ReadDir(cfg.RecordingsDir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				cmd.Println("nothing to clean up")
				return nil
			}
			return err
		}

		removed := 0
		for _, ent := range entries {
			if !ent.IsDir() || !strings.HasPrefix(ent.Name(), "session_") {
				continue
			}
			if ent.Name() == activeDir {
				continue
			}
			info, err := ent.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if cleanupDryRun {
				cmd.Printf("would remove %s\n", ent.Name())
				removed++
				continue
			}
			if err := os.RemoveAll(filepath.Join(cfg.RecordingsDir, ent.Name())); err != nil {
				slog.Warn("removing chunk dir failed", "dir", ent.Name(), "error", err)
				continue
			}
			removed++
		}

		var pruned int64
		if cleanupPruneHistory && !cleanupDryRun && cfg.HistoryOn() {
			if hist := openHistory(); hist != nil {
				pruned, err = hist.Prune(cutoff)
				if err != nil {
					slog.Warn("pruning history failed", "error", err)
				}
				hist.Close()
			}
		}

		if cleanupDryRun {
			cmd.Printf("%d chunk dir(s) would be removed\n", removed)
		} else if cleanupPruneHistory {
			cmd.Printf("removed %d chunk dir(s), pruned %d history row(s)\n", removed, pruned)
		} else {
			cmd.Printf("removed %d chunk dir(s)\n", removed)
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "report what would be removed without removing it")
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 0, "age cutoff (default from config, 24h)")
	cleanupCmd.Flags().BoolVar(&cleanupPruneHistory, "prune-history", false, "also drop history rows older than the cutoff")
	rootCmd.AddCommand(cleanupCmd)
}
