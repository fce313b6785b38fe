package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/scoperag-go/internal/lifecycle"
	"github.com/54b3r/scoperag-go/internal/rag"
)

// NewCleanupCmd constructs the `scoperag cleanup` command, which deletes the
// chunks of one session on demand.
func NewCleanupCmd() *cobra.Command {
	var session string
	var docType string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete the chunks of a session",
		Long: `Delete the chunks of a session.

Without --type, the session's temporary chunks are deleted and the global
scope is refused. With --type, every chunk of that session and type is
deleted, which is how the permanent global set is cleared.

Examples:
  scoperag cleanup --session s1
  scoperag cleanup --session global --type permanent`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log := appCfg, appLog

			st, err := buildStack(ctx, cfg, log, nil)
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			defer st.Close()

			var n int
			if docType == "" {
				n, err = st.lifecycle.CleanupScope(ctx, session)
			} else {
				var p rag.Permanence
				p, err = rag.ParsePermanence(docType, "")
				if err == nil {
					n, err = st.lifecycle.Cleanup(ctx, session, p)
				}
			}
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d chunks\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Session to clean up (required)")
	cmd.Flags().StringVarP(&docType, "type", "t", "", "Document type to delete: permanent or temporary")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

// NewSweepCmd constructs the `scoperag sweep` command, which runs one expiry
// sweep and exits.
func NewSweepCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete temporary chunks older than the maximum age",
		Long: `Run one expiry sweep: delete every temporary chunk uploaded more than
--max-age ago. Permanent chunks are never swept.

Examples:
  scoperag sweep
  scoperag sweep --max-age 30m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log := appCfg, appLog

			if !cmd.Flags().Changed("max-age") {
				maxAge = cfg.Lifecycle.MaxAge
			}

			st, err := buildStack(ctx, cfg, log, nil)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			defer st.Close()

			n, err := lifecycle.NewSweeper(st.lifecycle, cfg.Lifecycle.Interval, maxAge, log).SweepOnce(ctx)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired chunks\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", lifecycle.DefaultMaxAge, "Age after which temporary chunks expire (default: lifecycle.max_age)")

	return cmd
}
