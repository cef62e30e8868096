package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/rpcmesh/internal/config"
)

const (
	appName    = "rpcmesh"
	appVersion = "0.1.0"

	logPrefix = "rpcmesh"

	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCommand(cfg).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the daemon command. Flag defaults come from the RPCMESH_* environment.
func newRootCommand(cfg *config.Config) *cobra.Command {
	var showVersion bool

	cmd := &cobra.Command{
		Use:   appName,
		Short: "WAMP RPC router",
		Long: `rpcmesh routes WAMP remote procedure calls between sessions.
Clients connect over websocket (wamp.2.json) on the HTTP port or over gRPC,
join a realm, register procedures and call them.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", appName, appVersion)
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "HTTP API and websocket port")
	flags.StringVar(&cfg.SecretKey, "secret-key", cfg.SecretKey, "JWT signing key")
	flags.BoolVar(&cfg.NoAuth, "no-auth", cfg.NoAuth, "Accept sessions without a token (development only)")
	flags.StringVar(&cfg.GRPCListen, "grpc-listen", cfg.GRPCListen, "gRPC session listen address; empty disables gRPC")
	flags.StringSliceVar(&cfg.Realms, "realm", cfg.Realms, "Realm to serve (repeatable)")
	flags.BoolVar(&cfg.AutoCreateRealms, "auto-create-realms", cfg.AutoCreateRealms, "Create realms on first HELLO")
	flags.DurationVar(&cfg.CallTimeout, "call-timeout", cfg.CallTimeout, "Cancel calls without a result after this long; 0 disables")
	flags.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "Publish meta events to this NATS server")
	flags.IntVar(&cfg.JournalRetention, "journal-retention", cfg.JournalRetention, "Meta events kept per realm and topic")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	flags.BoolVar(&showVersion, "version", false, "Show version and exit")

	return cmd
}

// run serves until ctx is cancelled, then shuts down.
func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	slog.SetDefault(cfg.Logger())
	slog.Info(fmt.Sprintf("%s - starting %s v%s", logPrefix, appName, appVersion))

	d, err := startDaemon(ctx, cfg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP API listening on :%s", logPrefix, cfg.HTTPPort))
		errCh <- d.http.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info(fmt.Sprintf("%s - shutting down", logPrefix))
	case err = <-errCh:
		slog.Error(fmt.Sprintf("%s - HTTP API stopped: %v", logPrefix, err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := d.shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}
