package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keytape/keytape/internal/assemble"
	"github.com/keytape/keytape/internal/capture"
	"github.com/keytape/keytape/internal/config"
	"github.com/keytape/keytape/internal/history"
	"github.com/keytape/keytape/internal/keymon"
	"github.com/keytape/keytape/internal/recorder"
	"github.com/keytape/keytape/internal/session"
)

// The combo names are symbolic: the toggle source synthesizes both keys
// from line input, so they only need to agree between source and observer.
const (
	defaultComboModifier = "rightalt"
	defaultComboTrigger  = "rightcmd"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Listen for the key combo and record while it is held",
	Long: `Run the recording loop. Press Enter to start a session and Enter again
to stop it; audio is captured in chunks and stitched into a single WAV
when the session ends. Ctrl-C finishes any active session and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := captureService(cfg)
		if err != nil {
			return err
		}
		store, err := session.NewSnapshotStore()
		if err != nil {
			return err
		}

		queue := recorder.NewQueue()
		ctrl := recorder.New(queue,
			&recorder.ChunkRecorder{Service: svc, PollInterval: cfg.EarlyStopPoll()},
			&assemble.Assembler{Bin: cfg.SoxBin},
		)
		ctrl.ChunkDuration = cfg.ChunkDuration()
		ctrl.MaxSession = cfg.MaxSessionDuration()
		ctrl.RecordingsDir = cfg.RecordingsDir
		ctrl.KeepChunks = cfg.KeepChunks
		ctrl.AutoSave = &session.AutoSaver{Store: store, Interval: cfg.AutoSaveInterval()}

		var hist *history.Store
		if cfg.HistoryOn() {
			hist = openHistory()
			if hist != nil {
				defer hist.Close()
			}
		}

		ctrl.Callbacks = session.Callbacks{
			OnSessionStart: func(id string) {
				cmd.Printf("recording %s\n", id)
			},
			OnSessionStop: func() {
				cmd.Println("finalizing...")
			},
			OnSessionComplete: func(r session.Result) {
				if r.Err != nil {
					cmd.PrintErrf("session %s failed: %v\n", r.SessionID, r.Err)
				} else {
					cmd.Printf("saved %s (%d chunks, %s)\n",
						r.ArtifactPath, len(r.ChunkPaths), r.Duration.Round(time.Second))
				}
				if hist != nil {
					if err := hist.Record(history.FromResult(r)); err != nil {
						slog.Warn("recording session history failed", "error", err)
					}
				}
			},
		}

		combo := keymon.Combo{Modifier: defaultComboModifier, Trigger: defaultComboTrigger}
		observer := &keymon.Observer{Combo: combo, Queue: queue}
		source := &keymon.ToggleSource{Combo: combo, In: cmd.InOrStdin()}
		events := make(chan keymon.Event, 16)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			<-sigCh
			// A second interrupt kills the process the hard way.
			signal.Stop(sigCh)
			queue.Enqueue(recorder.Shutdown)
		}()

		go func() {
			source.Run(ctx, events)
			// Input is gone; nothing can start another session.
			queue.Enqueue(recorder.Shutdown)
		}()
		go observer.Run(ctx, events)

		cmd.Println("keytape is listening: Enter starts and stops recording, Ctrl-C quits")
		return ctrl.Run(ctx)
	},
}

// captureService picks the audio backend named by the config.
func captureService(c config.Config) (capture.Service, error) {
	switch c.CaptureBackend {
	case "", "sox":
		return &capture.SoxService{
			Bin:        c.SoxBin,
			SampleRate: c.SampleRate,
			Channels:   c.Channels,
			BitDepth:   c.BitDepth,
		}, nil
	case "portaudio":
		return &capture.PortAudioService{
			SampleRate: c.SampleRate,
			Channels:   c.Channels,
			BitDepth:   c.BitDepth,
		}, nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", c.CaptureBackend)
	}
}

// openHistory opens the history store, degrading to nil when it cannot.
// History is bookkeeping; its failures never block recording.
func openHistory() *history.Store {
	path, err := historyPath()
	if err != nil {
		slog.Warn("session history disabled", "error", err)
		return nil
	}
	h, err := history.New(path)
	if err != nil {
		slog.Warn("session history disabled", "error", err)
		return nil
	}
	return h
}

func init() {
	rootCmd.AddCommand(runCmd)
}
