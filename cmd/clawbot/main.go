package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clawbot/internal/config"
	logx "clawbot/pkg/logx"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "clawbot",
	Short: "Personal Telegram assistant with scheduled agent tasks",
	Long: `clawbot - a personal Telegram assistant backed by an LLM agent.

The agent can schedule prompts to run later (cron, interval or once);
a scheduler loop runs due tasks and reports back over Telegram.

Configuration comes from the environment (TELEGRAM_BOT_TOKEN, OWNER_ID,
AGENT_API_KEY, ...) with an optional JSON/YAML file via --config.

Examples:
  clawbot run                                   # start the bot
  clawbot tasks list                            # list scheduled tasks
  clawbot tasks add --type interval --value 3600000 "check the news"
  clawbot mcp                                   # serve task tools over MCP stdio`,
	SilenceUsage: true,
	// bare "clawbot" runs the bot
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CLAWBOT_CONFIG"), "optional config file (.json, .yaml)")
	rootCmd.Version = version

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(mcpCmd)
}

// loadConfig parses the config for commands that don't need the bot credentials.
func loadConfig() (*config.Config, error) {
	return config.NewConfigManager(configPath).Load()
}

// cliLogger writes to stderr so stdout stays clean for command output and MCP framing.
func cliLogger(cfg *config.Config) logx.Logger {
	return logx.NewConsole(cfg.Logging.Level)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
