package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ppiankov/feedwatch/internal/config"
	"github.com/spf13/cobra"
)

// useConfigDir points the CLI at a fresh temp dir and silences logging.
func useConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	oldConfigDir := configDir
	oldQuiet := quiet
	oldLogger := logger
	t.Cleanup(func() {
		configDir = oldConfigDir
		quiet = oldQuiet
		logger = oldLogger
	})

	configDir = dir
	quiet = false
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return dir
}

func writeTestConfig(t *testing.T, dir, content string) {
	t.Helper()
	path := filepath.Join(dir, config.DefaultConfigFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out, readErr := io.ReadAll(reader)
	_ = reader.Close()
	if readErr != nil {
		t.Fatalf("read stdout pipe: %v", readErr)
	}
	return string(out), runErr
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("output missing %q:\n%s", want, output)
	}
}

func rssFeed(handle string, n int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>` + handle + `</title>`)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<item><title>%s post %d</title><link>https://x/%s/%d</link></item>`, handle, i, handle, i)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

type mirrorStub struct {
	mu     sync.Mutex
	bodies map[string]string
}

func (m *mirrorStub) set(handle, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies[handle] = body
}

func (m *mirrorStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), "/rss")
	body, ok := m.bodies[handle]
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = io.WriteString(w, body)
}

// startMirror serves feeds for the given handles and writes a config that
// uses it as the only mirror with notifications routed to sink.
func startMirror(t *testing.T, dir, sink string, accounts []string, bodies map[string]string) *mirrorStub {
	t.Helper()
	stub := &mirrorStub{bodies: bodies}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	var quoted []string
	for _, a := range accounts {
		quoted = append(quoted, fmt.Sprintf("%q", a))
	}
	writeTestConfig(t, dir, fmt.Sprintf(`accounts: [%s]
mirrors:
  - %s
notification:
  sink: %s
  delay: 1ms
fetch:
  timeout: 5s
`, strings.Join(quoted, ", "), srv.URL, sink))
	return stub
}
