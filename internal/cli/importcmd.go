package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ppiankov/feedwatch/internal/config"
	"github.com/ppiankov/feedwatch/internal/ledger"
	"github.com/ppiankov/feedwatch/internal/store"
	"github.com/spf13/cobra"
)

const legacyStateFile = "seen_tweets.json"

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <config.json> [seen_tweets.json]",
	Short: "Import accounts, settings and seen posts from the JSON files of the legacy monitor script",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  importAction,
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "show what would be imported without modifying anything")
	rootCmd.AddCommand(importCmd)
}

type legacyConfig struct {
	Accounts                 []string `json:"accounts"`
	CheckIntervalMinutes     int      `json:"check_interval_minutes"`
	MaxNotificationsPerCheck int      `json:"max_notifications_per_check"`
	NitterInstance           string   `json:"nitter_instance"`
	NotificationSound        string   `json:"notification_sound"`
}

type legacyState struct {
	SeenTweets map[string][]string `json:"seen_tweets"`
	LastCheck  map[string]string   `json:"last_check"`
}

func importAction(cmd *cobra.Command, args []string) error {
	configPath := args[0]
	statePath := filepath.Join(filepath.Dir(configPath), legacyStateFile)
	if len(args) == 2 {
		statePath = args[1]
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read legacy config: %w", err)
	}
	var legacy legacyConfig
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("parse legacy config: %w", err)
	}

	state, err := readLegacyState(statePath)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var added []string
	skipped := 0
	for _, a := range legacy.Accounts {
		h, err := cfg.AddAccount(a)
		if err != nil {
			skipped++
			continue
		}
		added = append(added, h)
	}

	settings := legacySettings(legacy)
	entries := legacyEntries(state)

	if importDryRun {
		fmt.Printf("Would add %d accounts (skipping %d):\n", len(added), skipped)
		for _, h := range added {
			fmt.Printf("  + @%s\n", h)
		}
		for _, s := range settings {
			fmt.Printf("  set %s = %s\n", s.key, s.value)
		}
		fmt.Printf("Would import seen posts for %d accounts.\n", len(entries))
		return nil
	}

	if len(added) > 0 {
		if err := config.SaveAccounts(configDir, cfg.Accounts); err != nil {
			return fmt.Errorf("save accounts: %w", err)
		}
	}
	for _, s := range settings {
		if err := config.SaveSetting(configDir, s.key, s.value); err != nil {
			return fmt.Errorf("save %s: %w", s.key, err)
		}
	}

	if len(entries) > 0 {
		st, l, err := store.OpenLedger(cmd.Context(), cfg.Storage.Path, logger)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer func() { _ = st.Close() }()

		for h, e := range entries {
			if err := st.Merge(cmd.Context(), l, h, e); err != nil {
				return fmt.Errorf("import seen posts for @%s: %w", h, err)
			}
		}
	}

	fmt.Printf("Added %d accounts, skipped %d, updated %d settings, imported seen posts for %d accounts.\n",
		len(added), skipped, len(settings), len(entries))
	return nil
}

// readLegacyState returns an empty state when the file is missing or is not
// valid JSON.
func readLegacyState(path string) (legacyState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return legacyState{}, nil
	}
	if err != nil {
		return legacyState{}, fmt.Errorf("read legacy state: %w", err)
	}

	var state legacyState
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Warn("Legacy state is corrupt so it is skipped",
			"error", err,
			"path", path)
		return legacyState{}, nil
	}
	return state, nil
}

type setting struct {
	key, value string
}

func legacySettings(c legacyConfig) []setting {
	var out []setting
	if c.CheckIntervalMinutes > 0 {
		out = append(out, setting{"check_interval", fmt.Sprintf("%dm", c.CheckIntervalMinutes)})
	}
	if c.MaxNotificationsPerCheck > 0 {
		out = append(out, setting{"max_notifications_per_check", strconv.Itoa(c.MaxNotificationsPerCheck)})
	}
	if c.NitterInstance != "" && config.ValidateMirror(c.NitterInstance) == nil {
		out = append(out, setting{"preferred_mirror", c.NitterInstance})
	}
	if c.NotificationSound != "" {
		out = append(out, setting{"notification.sound", c.NotificationSound})
	}
	return out
}

func legacyEntries(s legacyState) map[string]ledger.Entry {
	entries := make(map[string]ledger.Entry)
	for raw, ids := range s.SeenTweets {
		h := config.NormalizeHandle(raw)
		if h == "" {
			continue
		}
		e := entries[h]
		e.SeenIDs = append(e.SeenIDs, ids...)
		entries[h] = e
	}
	for raw, ts := range s.LastCheck {
		h := config.NormalizeHandle(raw)
		if h == "" {
			continue
		}
		t, ok := parseLegacyTime(ts)
		if !ok {
			continue
		}
		e := entries[h]
		e.LastCheck = t
		entries[h] = e
	}
	return entries
}

// parseLegacyTime accepts ISO timestamps with or without a zone; zoneless
// values are local time.
func parseLegacyTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.Local); err == nil {
		return t, true
	}
	return time.Time{}, false
}
