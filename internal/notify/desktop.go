package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const desktopTimeout = 10 * time.Second

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// DesktopSink shows notifications through osascript on macOS and
// notify-send elsewhere. When neither tool is installed it logs instead.
type DesktopSink struct {
	goos string
	run  commandRunner
	log  *slog.Logger
}

func NewDesktopSink(log *slog.Logger) *DesktopSink {
	if log == nil {
		log = slog.Default()
	}
	return &DesktopSink{goos: runtime.GOOS, run: runCommand, log: log}
}

func (s *DesktopSink) Send(ctx context.Context, n Notification) error {
	ctx, cancel := context.WithTimeout(ctx, desktopTimeout)
	defer cancel()

	name, args := s.command(n)
	out, err := s.run(ctx, name, args...)
	if errors.Is(err, exec.ErrNotFound) {
		s.log.InfoContext(ctx, "Notification",
			"title", n.Title,
			"body", n.Body,
			"link", n.Link)
		return nil
	}
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("run %s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

func (s *DesktopSink) command(n Notification) (string, []string) {
	if s.goos == "darwin" {
		return "osascript", []string{"-e", appleScript(n)}
	}
	return "notify-send", []string{"--app-name=feedwatch", n.Title, n.Body}
}

func appleScript(n Notification) string {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`,
		escapeAppleScript(n.Body), escapeAppleScript(n.Title))
	if n.Sound != "" && n.Sound != "none" {
		script += fmt.Sprintf(` sound name "%s"`, escapeAppleScript(n.Sound))
	}
	return script
}

var appleScriptEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeAppleScript(s string) string {
	return appleScriptEscaper.Replace(s)
}
