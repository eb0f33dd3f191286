package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/keytape/keytape/internal/capture"
	"github.com/keytape/keytape/internal/config"
)

// executeCommand runs a cobra command with the given args and captures
// combined output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	return executeCommandWithInput(root, "", args...)
}

// executeCommandWithInput additionally feeds input as stdin.
func executeCommandWithInput(root *cobra.Command, input string, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// isolateEnv points the XDG directories at temp dirs so tests never touch
// real state, and clears sticky flag values between runs.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	cfgPath = ""
	verbose = false
}

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, c config.Config) string {
	t.Helper()
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunExitsOnStdinEOF(t *testing.T) {
	isolateEnv(t)

	out, err := executeCommandWithInput(rootCmd, "", "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "keytape is listening") {
		t.Errorf("missing startup banner in output:\n%s", out)
	}
}

func TestRunRejectsUnknownBackend(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, config.Config{CaptureBackend: "alsa"})

	out, err := executeCommandWithInput(rootCmd, "", "run", "--config", path)
	if err == nil {
		t.Fatal("want error for unknown backend, got nil")
	}
	combined := out + err.Error()
	if !strings.Contains(combined, "unknown capture backend") {
		t.Errorf("error %q does not name the backend problem", combined)
	}
}

func TestCaptureServiceSelection(t *testing.T) {
	base := config.Defaults()

	svc, err := captureService(base)
	if err != nil {
		t.Fatalf("captureService: %v", err)
	}
	if _, ok := svc.(*capture.SoxService); !ok {
		t.Errorf("default backend = %T, want *capture.SoxService", svc)
	}

	base.CaptureBackend = "portaudio"
	svc, err = captureService(base)
	if err != nil {
		t.Fatalf("captureService: %v", err)
	}
	if _, ok := svc.(*capture.PortAudioService); !ok {
		t.Errorf("portaudio backend = %T, want *capture.PortAudioService", svc)
	}

	base.CaptureBackend = "pulse"
	if _, err := captureService(base); err == nil {
		t.Error("want error for unsupported backend")
	}
}
