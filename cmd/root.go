package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxmerge/internal/config"
	"github.com/teemow/inboxmerge/internal/instrumentation"
	"github.com/teemow/inboxmerge/internal/kv"
	"github.com/teemow/inboxmerge/internal/logging"
	"github.com/teemow/inboxmerge/internal/server"
)

// rootCmd represents the base command for the inboxmerge application
var rootCmd = &cobra.Command{
	Use:   "inboxmerge",
	Short: "Merges the inboxes of several Gmail accounts into one filtered feed",
	Long: `inboxmerge links several Google accounts and shows their inbox messages
from a configurable list of senders as a single feed, newest first.

One linked account is the main account. It can send a message to the other
linked accounts, at most once per day.

It can run as:
  - A CLI tool (default)
  - A web API with background refresh (serve)
  - An MCP (Model Context Protocol) server for AI assistants (mcp)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

// version will be set by main
var version = "dev"

var (
	configFile string
	debugMode  bool
	settings   = config.New()
	cfg        *config.Config
)

// SetVersion sets the version for the root command
func SetVersion(ver string) {
	version = ver
	rootCmd.Version = ver
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxmerge version %s\n" .Version}}`)

	// If no subcommand is provided, show the merged inbox
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "inbox")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", config.DefaultConfigPath(), "Path to the YAML config file")
	flags.BoolVar(&debugMode, "debug", false, "Enable debug logging")
	flags.String("client-id", "", "Google OAuth client ID (env: INBOXMERGE_OAUTH_CLIENT_ID)")
	flags.String("storage", "", "Storage backend: memory, file, sqlite, keyring or valkey (env: INBOXMERGE_STORAGE_TYPE)")
	flags.String("timezone", "", "IANA timezone for the daily send limit (env: INBOXMERGE_TIMEZONE)")

	// Unset flags leave file and environment values in place.
	_ = settings.BindPFlag("oauth.client_id", flags.Lookup("client-id"))
	_ = settings.BindPFlag("storage.type", flags.Lookup("storage"))
	_ = settings.BindPFlag("timezone", flags.Lookup("timezone"))

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newCallbackCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newAccountsCmd())
	rootCmd.AddCommand(newInboxCmd())
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func loadConfig() error {
	loaded, err := config.Load(settings, configFile)
	if err != nil {
		return err
	}
	if debugMode {
		loaded.Log.Level = "debug"
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = loaded
	return nil
}

// newLogger logs to stderr so stdout stays free for command output and the
// MCP stdio transport.
func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return logging.New(w, cfg.Log.Level, cfg.Log.Format)
}

// app bundles what a command needs to run. Close releases it.
type app struct {
	sc       *server.ServerContext
	provider *instrumentation.Provider
	logger   *slog.Logger
}

func newApp(ctx context.Context, instrumented bool) (*app, error) {
	logger := newLogger(nil)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	instrConfig.Enabled = instrumented && cfg.Metrics.Enabled && instrConfig.Enabled
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	store, err := kv.Open(cfg.Storage)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Type, err)
	}

	sc, err := server.NewServerContext(ctx, cfg, store,
		server.WithProvider(provider),
		server.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}

	return &app{sc: sc, provider: provider, logger: logger}, nil
}

func (a *app) Close() {
	if err := a.sc.Shutdown(); err != nil {
		a.logger.Warn("shutdown failed", logging.Err(err))
	}
	if err := a.provider.Shutdown(context.Background()); err != nil {
		a.logger.Warn("instrumentation shutdown failed", logging.Err(err))
	}
}
