package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/scoperag-go/internal/ingestion"
	"github.com/54b3r/scoperag-go/internal/rag"
)

// NewIngestCmd constructs the `scoperag ingest` command, which stores a local
// file in the blob store and embeds it into the index.
func NewIngestCmd() *cobra.Command {
	var session string
	var docType string
	var cleanup bool
	var verify string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Store a local document and embed it into the index",
		Long: `Store a local document (PDF or text) in the blob store and embed it.

Permanent documents (the default) replace every existing permanent chunk.
Temporary documents must name a session and expire after lifecycle.max_age.

--cleanup deletes the existing chunks of the same session and type before
embedding. --verify runs a test query afterwards and prints the citations.

Examples:
  scoperag ingest cv.pdf
  scoperag ingest --cleanup --verify "What are the main skills?" cv.pdf
  scoperag ingest --session s1 --type temporary notes.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log := appCfg, appLog

			permanence, err := rag.ParsePermanence(docType, rag.Permanent)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			path := args[0]
			req, err := ingestion.Normalize(ingestion.Request{
				ScopeID:    session,
				Filename:   filepath.Base(path),
				Permanence: permanence,
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			req.Data, err = os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			name := req.Filename

			st, err := buildStack(ctx, cfg, log, nil)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer st.Close()

			if err := st.blobs.Put(ctx, name, req.Data); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			log.Info("document stored", slog.String("filename", name), slog.Int("bytes", len(req.Data)))

			if cleanup {
				n, err := st.lifecycle.Cleanup(ctx, req.ScopeID, permanence)
				if err != nil {
					return fmt.Errorf("ingest: cleanup failed: %w", err)
				}
				log.Info("existing chunks deleted", slog.Int("deleted", n))
			}

			res, err := st.pipeline.Ingest(ctx, req)
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "embedded %s: %d chunks\n", name, res.ChunkCount)

			if verify != "" {
				hits, err := st.retriever.Retrieve(ctx, verify, req.ScopeID, 0)
				if err != nil {
					return fmt.Errorf("ingest: verify query failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "verify %q: %d hits\n", verify, len(hits))
				for _, h := range hits {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s (score %.4f)\n", h.Filename, h.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", rag.GlobalScope, "Scope that owns the chunks")
	cmd.Flags().StringVarP(&docType, "type", "t", string(rag.Permanent), "Document type: permanent or temporary")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Delete existing chunks of the same session and type first")
	cmd.Flags().StringVar(&verify, "verify", "", "Run a test query after embedding and print the citations")

	return cmd
}
