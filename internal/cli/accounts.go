package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/feedwatch/internal/config"
	"github.com/ppiankov/feedwatch/internal/mirror"
	"github.com/ppiankov/feedwatch/internal/store"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add @username",
	Short: "Add an account to the monitoring list",
	Args:  cobra.ExactArgs(1),
	RunE:  addAction,
}

var removeCmd = &cobra.Command{
	Use:     "remove @username",
	Aliases: []string{"rm"},
	Short:   "Remove an account from the monitoring list",
	Args:    cobra.ExactArgs(1),
	RunE:    removeAction,
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List monitored accounts and settings",
	Args:    cobra.NoArgs,
	RunE:    listAction,
}

func init() {
	rootCmd.AddCommand(addCmd, removeCmd, listCmd)
}

func addAction(_ *cobra.Command, args []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	handle, err := cfg.AddAccount(args[0])
	if errors.Is(err, config.ErrDuplicateAccount) {
		fmt.Printf("@%s is already being monitored.\n", handle)
		return nil
	}
	if err != nil {
		return err
	}

	if err := config.SaveAccounts(configDir, cfg.Accounts); err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}
	printf("Added @%s to monitoring list.\n", handle)
	return nil
}

func removeAction(_ *cobra.Command, args []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	handle, err := cfg.RemoveAccount(args[0])
	if errors.Is(err, config.ErrUnknownAccount) {
		fmt.Printf("@%s is not in the monitoring list.\n", handle)
		return nil
	}
	if err != nil {
		return err
	}

	if err := config.SaveAccounts(configDir, cfg.Accounts); err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}
	printf("Removed @%s from monitoring list.\n", handle)
	return nil
}

func listAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if len(cfg.Accounts) == 0 {
		fmt.Println("No accounts are being monitored.")
		fmt.Println("Use 'feedwatch add @username' to add accounts.")
		return nil
	}

	st, l, err := store.OpenLedger(cmd.Context(), cfg.Storage.Path, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = st.Close() }()

	fmt.Println("Monitored accounts:")
	for _, h := range cfg.Accounts {
		last := "never checked"
		if e, ok := l.Entry(h); ok && !e.LastCheck.IsZero() {
			last = "last check " + e.LastCheck.Local().Format(time.DateTime)
		}
		fmt.Printf("  @%-20s %s\n", h, last)
	}

	mirrors := mirror.Order(cfg.PreferredMirror, cfg.Mirrors)
	fmt.Printf("\nTotal: %d account(s)\n", len(cfg.Accounts))
	fmt.Printf("Check interval: %s\n", formatInterval(cfg.CheckInterval.Duration))
	fmt.Printf("Preferred mirror: %s\n", mirrors[0])
	fmt.Printf("Mirrors: %d configured\n", len(mirrors))
	return nil
}

func formatInterval(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
