package cli

import (
	"context"
	"fmt"

	"github.com/ppiankov/feedwatch/internal/monitor"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check every monitored account once and notify on new posts",
	RunE:  runAction,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAction(cmd *cobra.Command, _ []string) error {
	return runChecksOnce(cmd.Context())
}

// runChecksOnce loads config and ledger fresh, so accounts added while
// watching are picked up on the next run.
func runChecksOnce(ctx context.Context) error {
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if len(a.cfg.Accounts) == 0 {
		fmt.Println("No accounts configured. Use 'feedwatch add @username' to add accounts.")
		return nil
	}

	printf("feedwatch - checking %d account(s)...\n", len(a.cfg.Accounts))

	summary := a.monitor.CheckAll(ctx, a.cfg.Accounts)
	printSummary(summary)
	return nil
}

func printSummary(s monitor.Summary) {
	for _, r := range s.Results {
		switch {
		case r.FetchErr != nil:
			printf("  @%s: feed unavailable from all mirrors\n", r.Handle)
		case len(r.NewPosts) == 0:
			printf("  @%s: no new posts\n", r.Handle)
		default:
			printf("  @%s: %d new post(s), %d notification(s)\n", r.Handle, len(r.NewPosts), r.Notified)
		}
	}
	printf("Done: %d new post(s) across %d account(s), %d unavailable.\n",
		s.NewPosts, len(s.Results), s.Failed)
}
