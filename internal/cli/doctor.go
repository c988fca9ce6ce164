package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/ppiankov/feedwatch/internal/config"
	"github.com/ppiankov/feedwatch/internal/ledger"
	"github.com/ppiankov/feedwatch/internal/mirror"
	"github.com/ppiankov/feedwatch/internal/store"
	"github.com/spf13/cobra"
)

// staleAfter flags accounts whose last successful fetch is this many check
// intervals old.
const staleAfter = 12

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, ledger and notification setup",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s (run 'feedwatch init')", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}
	mirrors := mirror.Order(cfg.PreferredMirror, cfg.Mirrors)
	printCheck(true, "config.yaml (%d accounts, %d mirrors, preferred %s)",
		len(cfg.Accounts), len(mirrors), mirrors[0])
	if len(cfg.Accounts) == 0 {
		printInfo("no accounts configured; add one with 'feedwatch add @username'")
	}

	// Ledger
	l, err := store.Inspect(cmd.Context(), cfg.Storage.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		l = ledger.New()
		printCheck(true, "ledger %s not created yet (the first run creates it)", cfg.Storage.Path)
	case err != nil && store.IsCorrupt(err):
		printCheck(false, "ledger %s is corrupt (the next run moves it aside and starts fresh)", cfg.Storage.Path)
		ok = false
	case err != nil:
		printCheck(false, "ledger: %v", err)
		ok = false
	default:
		printCheck(true, "ledger %s (%d accounts tracked)", cfg.Storage.Path, len(l.Handles()))
	}

	if l != nil {
		staleBefore := time.Now().Add(-staleAfter * cfg.CheckInterval.Duration)
		for _, h := range cfg.Accounts {
			e, found := l.Entry(h)
			switch {
			case !found:
				printInfo("@%s has never been checked", h)
			case e.LastCheck.Before(staleBefore):
				printInfo("@%s: last successful fetch %s", h, e.LastCheck.Local().Format(time.DateTime))
			}
		}
	}

	// Notification sink
	switch cfg.Notification.Sink {
	case config.SinkDesktop:
		tool := "notify-send"
		if runtime.GOOS == "darwin" {
			tool = "osascript"
		}
		if _, err := exec.LookPath(tool); err != nil {
			printCheck(false, "desktop notifications: %s not found (notifications will be logged)", tool)
			ok = false
		} else {
			printCheck(true, "desktop notifications via %s", tool)
		}
	case config.SinkTelegram:
		printCheck(true, "telegram notifications to chat %s", cfg.Notification.Telegram.ChatID)
	default:
		printCheck(true, "notification sink %s", cfg.Notification.Sink)
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
