package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionNotEmpty(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestExecuteVersion(t *testing.T) {
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	out, err := captureStdout(t, rootCmd.Execute)
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	requireContains(t, out, "feedwatch dev")
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
		wantJSON      bool
	}{
		{"info", "text", false, false},
		{"debug", "json", false, true},
		{"WARN", "", false, false},
		{"loud", "text", true, false},
		{"info", "xml", true, false},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		l, err := newLogger(&buf, tt.level, tt.format)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s/%s: expected error", tt.level, tt.format)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s/%s: %v", tt.level, tt.format, err)
		}
		l.Error("hello", "k", "v")
		if got := strings.HasPrefix(buf.String(), "{"); got != tt.wantJSON {
			t.Errorf("%s/%s: json output = %v, want %v (%q)", tt.level, tt.format, got, tt.wantJSON, buf.String())
		}
	}
}

func TestNewLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "warn", "text")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestDefaultConfigDirFromEnv(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "home")
	t.Setenv("FEEDWATCH_HOME", dir)
	if got := defaultConfigDir(); got != dir {
		t.Fatalf("defaultConfigDir() = %q, want %q", got, dir)
	}
}

func TestDefaultConfigDirFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("FEEDWATCH_HOME", "")
	t.Setenv("HOME", home)
	if got := defaultConfigDir(); got != filepath.Join(home, ".feedwatch") {
		t.Fatalf("defaultConfigDir() = %q", got)
	}
}

func TestQuietSuppressesPrintf(t *testing.T) {
	useConfigDir(t)
	quiet = true
	out, _ := captureStdout(t, func() error {
		printf("hello\n")
		return nil
	})
	if out != "" {
		t.Fatalf("quiet output = %q", out)
	}
}
