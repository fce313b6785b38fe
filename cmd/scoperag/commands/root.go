// Package commands defines all Cobra CLI commands for the scoperag binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/scoperag-go/internal/audit"
	"github.com/54b3r/scoperag-go/internal/config"
	"github.com/54b3r/scoperag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// appCfg is the configuration loaded once in PersistentPreRunE.
var appCfg *config.Config

// appLog is the logger built from appCfg.Logging.
var appLog *slog.Logger

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scoperag",
		Short: "scoperag: scoped retrieval-augmented generation over your documents",
		Long: `scoperag ingests documents, embeds them into a search index, and answers
questions grounded in the chunks visible to the caller's session.

Permanent documents are shared by every session. Temporary documents are
visible only to the session that uploaded them and expire after a configurable
age.

Configuration is read from a YAML file (~/.scoperag/config.yaml) and
environment variables, which always win.
See 'scoperag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			bootLog := logging.New("info", "json")

			// Env vars always override YAML values.
			cfg, path, err := config.Load(configPath, bootLog)
			if err != nil {
				return err
			}
			appCfg = cfg
			loadedConfigPath = path
			appLog = logging.New(cfg.Logging.Level, cfg.Logging.Format)
			slog.SetDefault(appLog)

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(appLog, cmd.Name(), loadedConfigPath, appCfg)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.scoperag/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewCleanupCmd(),
		NewSweepCmd(),
		NewVersionCmd(),
	)

	return root
}
