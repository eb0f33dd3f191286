package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/keytape/keytape/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last known recording session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewSnapshotStore()
		if err != nil {
			return err
		}

		snap, err := store.Load()
		if err != nil {
			if errors.Is(err, session.ErrNoSnapshot) {
				cmd.Println("no session on record")
				return nil
			}
			return err
		}

		started := time.Unix(snap.StartTime, 0)
		cmd.Printf("Session:  %s\n", snap.SessionID)
		cmd.Printf("Status:   %s\n", snap.Status)
		cmd.Printf("Started:  %s\n", started.Format(time.RFC3339))
		cmd.Printf("Chunks:   %d\n", len(snap.ChunkPaths))
		if snap.Status == session.StatusRecording {
			cmd.Println()
			cmd.Println("If no keytape process is running, this session was interrupted.")
			cmd.Println("Run `keytape recover` to assemble its chunks.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
