package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/scoperag-go/internal/rag"
)

// NewAskCmd constructs the `scoperag ask` command, which answers one prompt
// and prints the response followed by its citations.
func NewAskCmd() *cobra.Command {
	var session string
	var noRAG bool

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Answer a prompt grounded in the indexed documents",
		Long: `Answer a prompt with the configured completion model.

Unless --no-rag is set, chunks visible to --session (its own temporary
documents plus every permanent document) ground the answer.

Examples:
  scoperag ask "What languages does Alice know?"
  scoperag ask --session s1 "Summarise my notes"
  scoperag ask --no-rag "Say hello"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log := appCfg, appLog

			st, err := buildStack(ctx, cfg, log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer st.Close()

			comp, err := st.composer(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			ans, err := comp.Answer(ctx, strings.Join(args, " "), session, !noRAG)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ans.Text)
			if len(ans.Citations) > 0 {
				fmt.Fprintf(out, "\nSources: %s\n", strings.Join(ans.Citations, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", rag.GlobalScope, "Session whose temporary documents are visible")
	cmd.Flags().BoolVar(&noRAG, "no-rag", false, "Answer without retrieval")

	return cmd
}
