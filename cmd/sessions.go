package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/keytape/keytape/internal/history"
	"github.com/keytape/keytape/internal/tui"
)

var (
	sessionsLimit       int
	sessionsInteractive bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [id]",
	Short: "List recorded sessions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := historyPath()
		if err != nil {
			return err
		}
		hist, err := history.New(path)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer hist.Close()

		if len(args) == 1 {
			return showSession(cmd, hist, args[0])
		}

		entries, err := hist.List(sessionsLimit)
		if err != nil {
			return err
		}

		if sessionsInteractive && term.IsTerminal(os.Stdout.Fd()) {
			return tui.Run(entries, hist)
		}

		if len(entries) == 0 {
			cmd.Println("no sessions recorded yet")
			return nil
		}
		for _, e := range entries {
			detail := e.ArtifactPath
			if e.Status == history.StatusFailed {
				detail = e.Error
			}
			cmd.Printf("%s  %-9s  %2d chunks  %8s  %s\n",
				e.StartedAt.Local().Format("2006-01-02 15:04"),
				e.Status, e.ChunkCount, e.Duration.Round(time.Second), detail)
		}
		return nil
	},
}

func showSession(cmd *cobra.Command, hist *history.Store, id string) error {
	e, err := hist.Get(id)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("session not found: %s", id)
	}
	cmd.Printf("Session:   %s\n", e.SessionID)
	cmd.Printf("Status:    %s\n", e.Status)
	cmd.Printf("Started:   %s\n", e.StartedAt.Local().Format(time.RFC3339))
	cmd.Printf("Duration:  %s\n", e.Duration.Round(time.Second))
	cmd.Printf("Chunks:    %d\n", e.ChunkCount)
	if e.ArtifactPath != "" {
		cmd.Printf("Artifact:  %s\n", e.ArtifactPath)
	}
	if e.Error != "" {
		cmd.Printf("Error:     %s\n", e.Error)
	}
	return nil
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to list (0 for all)")
	sessionsCmd.Flags().BoolVarP(&sessionsInteractive, "interactive", "i", false, "browse sessions in a TUI")
	rootCmd.AddCommand(sessionsCmd)
}
