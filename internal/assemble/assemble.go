// Package assemble merges completed chunk files into one artifact using
// the external sox utility.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoChunks is returned when asked to assemble an empty chunk list.
var ErrNoChunks = errors.New("no chunks to assemble")

// Runner executes the concatenation utility and returns its combined output.
// This abstraction allows mocking in tests.
type Runner func(ctx context.Context, bin string, args ...string) (string, error)

// Assembler concatenates chunk files in sequence order. It deletes nothing:
// cleanup is a separate, explicit step so partial failures stay inspectable.
type Assembler struct {
	Bin    string // sox binary; empty means "sox"
	Runner Runner // if nil, runs the real subprocess
	Log    *slog.Logger
}

// Assemble merges chunkPaths (already in sequence order) into outPath.
func (a *Assembler) Assemble(ctx context.Context, chunkPaths []string, outPath string) error {
	if len(chunkPaths) == 0 {
		return ErrNoChunks
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	runner := a.Runner
	if runner == nil {
		runner = defaultRunner
	}

	args := make([]string, 0, len(chunkPaths)+1)
	args = append(args, chunkPaths...)
	args = append(args, outPath)

	out, err := runner(ctx, a.bin(), args...)
	if err != nil {
		if msg := strings.TrimSpace(out); msg != "" {
			return fmt.Errorf("assembling %d chunks: %w: %s", len(chunkPaths), err, msg)
		}
		return fmt.Errorf("assembling %d chunks: %w", len(chunkPaths), err)
	}

	a.logger().Debug("assembled chunks", "count", len(chunkPaths), "out", outPath)
	return nil
}

func (a *Assembler) bin() string {
	if a.Bin != "" {
		return a.Bin
	}
	return "sox"
}

func (a *Assembler) logger() *slog.Logger {
	if a.Log != nil {
		return a.Log
	}
	return slog.Default()
}

// defaultRunner runs the utility as a real subprocess.
func defaultRunner(ctx context.Context, bin string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	return string(out), err
}
