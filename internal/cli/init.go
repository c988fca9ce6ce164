package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/feedwatch/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}

	if !wrote {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s. Add accounts with 'feedwatch add @username'.\n", configDir)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# feedwatch configuration

# Accounts to monitor, without the leading @.
accounts: []

# Mirrors serving {mirror}/{handle}/rss, tried in order.
mirrors:
  - "https://nitter.poast.org"
  - "https://xcancel.com"
  - "https://nitter.privacyredirect.com"
  - "https://lightbrd.com"

# Tried first when set; it does not have to be in the list above.
preferred_mirror: "https://nitter.poast.org"

check_interval: 5m
max_notifications_per_check: 5

notification:
  # desktop, telegram, log or none
  sink: desktop
  # macOS sound name, or "none" for silent
  sound: default
  delay: 500ms
  telegram:
    token_env: FEEDWATCH_TELEGRAM_TOKEN
    chat_id: ""

storage:
  # Relative paths are resolved against the config directory.
  path: ledger.db

fetch:
  timeout: 30s
  concurrency: 1
`
