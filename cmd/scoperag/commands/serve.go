package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/scoperag-go/internal/lifecycle"
	"github.com/54b3r/scoperag-go/internal/logging"
	"github.com/54b3r/scoperag-go/internal/server"
	"github.com/54b3r/scoperag-go/internal/tracing"
)

// NewServeCmd constructs the `scoperag serve` command, which starts the HTTP
// server and the background expiry sweep.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scoperag HTTP server and expiry sweeper",
		Long: `Start the scoperag HTTP server.

The server exposes document upload, embedding, grounded generation, and
cleanup endpoints, plus /api/health, /api/ready, and /metrics. Unless
lifecycle.disabled is set, a background sweep deletes temporary chunks older
than lifecycle.max_age every lifecycle.interval.

Examples:
  scoperag serve
  scoperag serve --port 9090
  MODEL_PROVIDER=azure INDEX_BACKEND=qdrant scoperag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, log := appCfg, appLog
			ctx = logging.WithLogger(ctx, log)

			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			log.Info("serve starting", slog.String("provider", cfg.Model.Provider))

			// Langfuse tracing is opt-in; a no-op if keys are absent.
			handler, flush, ok := tracing.Setup(cfg.Tracing)
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			st, err := buildStack(ctx, cfg, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer st.Close()

			comp, err := st.composer(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			if cfg.Lifecycle.Disabled {
				log.Info("lifecycle: expiry sweep disabled")
			} else {
				sweeper := lifecycle.NewSweeper(st.lifecycle, cfg.Lifecycle.Interval, cfg.Lifecycle.MaxAge, log)
				go sweeper.Run(ctx)
			}

			srv, err := server.New(server.Deps{
				Blobs:     st.blobs,
				Ingester:  st.pipeline,
				Composer:  comp,
				Lifecycle: st.lifecycle,
			}, &server.Config{
				Host:           cfg.Server.Host,
				Port:           cfg.Server.Port,
				Logger:         log,
				RateLimit:      cfg.Server.RateLimit,
				RateBurst:      cfg.Server.RateBurst,
				MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
				Pingers: []server.Pinger{
					server.NewDependencyPinger(indexLabel(cfg), st.index),
					server.NewDependencyPinger("blob", st.blobs),
				},
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides server.port)")

	return cmd
}
