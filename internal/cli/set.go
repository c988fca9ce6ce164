package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/feedwatch/internal/config"
	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change a persisted setting",
}

var setIntervalCmd = &cobra.Command{
	Use:   "interval <minutes>",
	Short: "Set the check interval in minutes",
	Args:  cobra.ExactArgs(1),
	RunE:  setIntervalAction,
}

var setMirrorCmd = &cobra.Command{
	Use:   "mirror <url>",
	Short: "Set the preferred mirror (e.g. https://nitter.poast.org)",
	Args:  cobra.ExactArgs(1),
	RunE:  setMirrorAction,
}

var setMaxCmd = &cobra.Command{
	Use:   "max <n>",
	Short: "Set the maximum notifications per account per check",
	Args:  cobra.ExactArgs(1),
	RunE:  setMaxAction,
}

var setSoundCmd = &cobra.Command{
	Use:   "sound <name>",
	Short: "Set the notification sound (\"none\" for silent)",
	Args:  cobra.ExactArgs(1),
	RunE:  setSoundAction,
}

func init() {
	setCmd.AddCommand(setIntervalCmd, setMirrorCmd, setMaxCmd, setSoundCmd)
	rootCmd.AddCommand(setCmd)
}

func setIntervalAction(_ *cobra.Command, args []string) error {
	minutes, err := strconv.Atoi(args[0])
	if err != nil || minutes < 1 {
		return fmt.Errorf("interval must be a whole number of minutes, got %q", args[0])
	}
	if err := config.SaveSetting(configDir, "check_interval", fmt.Sprintf("%dm", minutes)); err != nil {
		return fmt.Errorf("save interval: %w", err)
	}
	printf("Check interval set to %d minutes.\n", minutes)
	return nil
}

func setMirrorAction(_ *cobra.Command, args []string) error {
	u := strings.TrimRight(strings.TrimSpace(args[0]), "/")
	if err := config.ValidateMirror(u); err != nil {
		return err
	}
	if err := config.SaveSetting(configDir, "preferred_mirror", u); err != nil {
		return fmt.Errorf("save mirror: %w", err)
	}
	printf("Preferred mirror set to %s\n", u)
	return nil
}

func setMaxAction(_ *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return fmt.Errorf("max must be zero or a positive number, got %q", args[0])
	}
	if err := config.SaveSetting(configDir, "max_notifications_per_check", strconv.Itoa(n)); err != nil {
		return fmt.Errorf("save max notifications: %w", err)
	}
	printf("Max notifications per check set to %d.\n", n)
	return nil
}

func setSoundAction(_ *cobra.Command, args []string) error {
	sound := strings.TrimSpace(args[0])
	if sound == "" {
		return fmt.Errorf("sound name is empty")
	}
	if err := config.SaveSetting(configDir, "notification.sound", sound); err != nil {
		return fmt.Errorf("save sound: %w", err)
	}
	printf("Notification sound set to %s.\n", sound)
	return nil
}
