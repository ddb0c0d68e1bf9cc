package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxmerge/internal/config"
	"github.com/teemow/inboxmerge/internal/logging"
	"github.com/teemow/inboxmerge/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		addr        string
		autoRefresh bool
		mcpHTTP     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web API with background refresh",
		Long: `Start the HTTP API used by the web page:

  GET  /login             redirect to Google consent (?account=additional)
  GET  /callback          page that completes the redirect
  GET  /api/feed          merged feed (?sender=shopee)
  POST /api/refresh       refresh now
  POST /api/send          send the daily message
  GET  /healthz, /readyz  liveness and readiness probes

The feed is refreshed immediately and then every refresh.interval. With
--mcp the MCP tools are also served over streamable HTTP at /mcp.

Metrics are served on metrics.addr when the prometheus exporter is in use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), autoRefresh, mcpHTTP)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", config.DefaultServerAddr, "HTTP listen address (config: server.addr)")
	cmd.Flags().BoolVar(&autoRefresh, "auto-refresh", true, "Refresh the feed every refresh.interval")
	cmd.Flags().BoolVar(&mcpHTTP, "mcp", false, "Also serve MCP over streamable HTTP at /mcp")

	return cmd
}

func runServe(ctx context.Context, autoRefresh, mcpHTTP bool) error {
	if err := cfg.RequireClientID(); err != nil {
		return err
	}

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	if cfg.Metrics.Enabled && a.provider.ServesPrometheus() {
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			InstrumentationProvider: a.provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	handler := server.NewRouter(a.sc, server.NewHealthChecker(a.sc))
	if mcpHTTP {
		mcpSrv, err := newMCPServer(a.sc)
		if err != nil {
			return err
		}
		handler = withMCPHandler(handler, mcpserver.NewStreamableHTTPServer(mcpSrv))
	}

	if autoRefresh {
		poller := a.sc.NewPoller(nil)
		go poller.Start(ctx, cfg.Refresh.Interval)
	}

	logger.Info("starting inboxmerge",
		slog.String("addr", cfg.Server.Addr),
		slog.String("storage", cfg.Storage.Type),
		slog.Bool("mcp", mcpHTTP),
		slog.String("version", version))
	return server.NewHTTPServer(cfg.Server.Addr, handler, logger).ListenAndServe(ctx)
}

// withMCPHandler routes /mcp to the MCP transport and everything else to api.
func withMCPHandler(api http.Handler, mcpHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Handle("/mcp", mcpHandler)
	r.Mount("/", api)
	return r
}
