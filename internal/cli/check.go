package cli

import (
	"fmt"

	"github.com/ppiankov/feedwatch/internal/config"
	"github.com/spf13/cobra"
)

const checkTitleRunes = 80

var checkCmd = &cobra.Command{
	Use:   "check @username",
	Short: "Check one account and print its new posts without notifying",
	Args:  cobra.ExactArgs(1),
	RunE:  checkAction,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func checkAction(cmd *cobra.Command, args []string) error {
	handle := config.NormalizeHandle(args[0])
	if handle == "" {
		return config.ErrEmptyHandle
	}

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	printf("Checking @%s...\n", handle)
	r := a.monitor.CheckAccount(cmd.Context(), handle)

	if r.FetchErr != nil {
		fmt.Printf("Failed to fetch feed for @%s from all mirrors.\n", handle)
		return nil
	}
	if len(r.NewPosts) == 0 {
		fmt.Println("No new posts.")
		return nil
	}

	fmt.Printf("Found %d new post(s):\n", len(r.NewPosts))
	for _, p := range r.NewPosts {
		title := p.Title
		if title == "" {
			title = "No title"
		}
		fmt.Printf("  - %s\n", firstNRunes(title, checkTitleRunes))
		if p.Link != "" {
			fmt.Printf("    %s\n", p.Link)
		}
	}
	return nil
}

func firstNRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
