package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/logging"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatflow",
	Short: "chatflow runs conversation flows built in the flow editor",
	Long: `chatflow interprets conversation flows (text, options, forms, free text,
AI replies, conditions and webhooks) and serves them to a terminal, an HTTP
API, a websocket widget or an MCP client.

Configuration is read from chatflow.yaml (--config), .env files and CHATFLOW_*
environment variables; flags override both.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.StringSlice("env-file", nil, "dotenv files to load (default .env)")
	flags.String("dir", "", "Directory containing the flow documents")
	flags.String("flow-source", "", "Where flows come from: dir, api or sql")
	flags.String("store", "", "Session store: memory, file, redis, sqlite3 or postgres")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: text or json")
}

// setup loads the configuration, applies flag overrides and builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == versionCmd.Name() {
		return nil
	}
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	envFiles, _ := flags.GetStringSlice("env-file")

	loaded, err := config.Load(path, envFiles...)
	if err != nil {
		return err
	}

	overrides := map[string]*string{
		"dir":         &loaded.FlowsDir,
		"flow-source": &loaded.FlowSource,
		"store":       &loaded.Store,
		"log-level":   &loaded.LogLevel,
		"log-format":  &loaded.LogFormat,
	}
	for name, field := range overrides {
		if flags.Changed(name) {
			*field, _ = flags.GetString(name)
		}
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg = loaded
	logger = logging.New(os.Stderr, cfg.LogFormat, cfg.SlogLevel())
	slog.SetDefault(logger)
	return nil
}
