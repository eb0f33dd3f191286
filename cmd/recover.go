package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/keytape/keytape/internal/assemble"
	"github.com/keytape/keytape/internal/capture"
	"github.com/keytape/keytape/internal/history"
	"github.com/keytape/keytape/internal/session"
)

var recoverKeepChunks bool

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Assemble chunks left behind by an interrupted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewSnapshotStore()
		if err != nil {
			return err
		}

		snap, err := store.Load()
		if err != nil {
			if errors.Is(err, session.ErrNoSnapshot) {
				cmd.Println("nothing to recover")
				return nil
			}
			return err
		}
		if snap.Status != session.StatusRecording {
			cmd.Println("last session completed cleanly; nothing to recover")
			return nil
		}

		// Keep only chunk files that still exist on disk.
		var paths []string
		for _, p := range snap.ChunkPaths {
			if _, err := os.Stat(p); err == nil {
				paths = append(paths, p)
			}
		}
		if len(paths) == 0 {
			if err := store.Clear(); err != nil {
				slog.Warn("clearing stale snapshot failed", "error", err)
			}
			return fmt.Errorf("session %s has no recoverable chunk files", snap.SessionID)
		}

		artifact := filepath.Join(cfg.RecordingsDir, snap.SessionID+".wav")
		asm := &assemble.Assembler{Bin: cfg.SoxBin}
		if err := asm.Assemble(cmd.Context(), paths, artifact); err != nil {
			return fmt.Errorf("recovering session %s: %w", snap.SessionID, err)
		}

		var total time.Duration
		for _, p := range paths {
			if d, err := capture.WavDuration(p); err == nil {
				total += d
			}
		}

		if cfg.HistoryOn() {
			if hist := openHistory(); hist != nil {
				entry := history.Entry{
					SessionID:    snap.SessionID,
					StartedAt:    time.Unix(snap.StartTime, 0),
					Duration:     total,
					ChunkCount:   len(paths),
					ArtifactPath: artifact,
					Status:       history.StatusCompleted,
				}
				if err := hist.Record(entry); err != nil {
					slog.Warn("recording recovered session failed", "error", err)
				}
				hist.Close()
			}
		}

		if err := store.Clear(); err != nil {
			slog.Warn("clearing snapshot failed", "error", err)
		}
		if !recoverKeepChunks {
			if err := os.RemoveAll(filepath.Dir(paths[0])); err != nil {
				slog.Warn("chunk dir cleanup failed", "error", err)
			}
		}

		cmd.Printf("recovered %s (%d chunks, %s)\n", artifact, len(paths), total.Round(time.Second))
		return nil
	},
}

func init() {
	recoverCmd.Flags().BoolVar(&recoverKeepChunks, "keep-chunks", false, "keep the chunk files after assembly")
	rootCmd.AddCommand(recoverCmd)
}
