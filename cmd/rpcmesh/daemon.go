package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go"

	"github.com/rmacdonaldsmith/rpcmesh/internal/config"
	"github.com/rmacdonaldsmith/rpcmesh/internal/eventlog"
	"github.com/rmacdonaldsmith/rpcmesh/internal/events"
	"github.com/rmacdonaldsmith/rpcmesh/internal/grpclink"
	"github.com/rmacdonaldsmith/rpcmesh/internal/httpapi"
	"github.com/rmacdonaldsmith/rpcmesh/internal/router"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
)

// daemon is the set of running components.
type daemon struct {
	router *router.Router
	http   *httpapi.Server
	grpc   *grpclink.Server
	nc     *nats.Conn
}

// startDaemon wires the router to its listeners. The HTTP server is created but not started.
func startDaemon(ctx context.Context, cfg *config.Config) (*daemon, error) {
	d := &daemon{}

	routerConfig := router.NewConfig(cfg.Realms...).
		WithAutoCreateRealms(cfg.AutoCreateRealms).
		WithCallTimeout(cfg.CallTimeout).
		WithJournal(eventlog.NewInMemoryEventLog(cfg.JournalRetention))

	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL, cfg.NATSName)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		d.nc = nc
		routerConfig = routerConfig.WithPublisher(events.NewNATSPublisher(nc, nil))
	}

	r, err := router.NewRouter(routerConfig)
	if err != nil {
		d.closeNATS()
		return nil, fmt.Errorf("failed to create router: %w", err)
	}
	d.router = r
	if err := r.Start(ctx); err != nil {
		d.shutdown(context.Background())
		return nil, fmt.Errorf("failed to start router: %w", err)
	}

	d.http = httpapi.NewServer(r, httpapi.Config{
		Port:      cfg.HTTPPort,
		SecretKey: cfg.SecretKey,
		NoAuth:    cfg.NoAuth,
	})

	if cfg.GRPCListen != "" {
		var authenticator grpclink.Authenticator
		if !cfg.NoAuth {
			authenticator = d.http.Auth()
		}
		grpcServer, err := grpclink.NewServer(&grpclink.Config{ListenAddress: cfg.GRPCListen}, d.acceptGRPC, authenticator)
		if err != nil {
			d.shutdown(context.Background())
			return nil, fmt.Errorf("failed to create gRPC server: %w", err)
		}
		if err := grpcServer.Start(ctx); err != nil {
			d.shutdown(context.Background())
			return nil, err
		}
		d.grpc = grpcServer
	}

	slog.Info(fmt.Sprintf("%s - serving realms %v (auto-create: %t)", logPrefix, cfg.Realms, cfg.AutoCreateRealms))
	return d, nil
}

func (d *daemon) acceptGRPC(ctx context.Context, peer peerlink.Peer, authID string) {
	if err := d.router.Accept(ctx, peer, authID); err != nil {
		slog.Info(fmt.Sprintf("%s - gRPC session for %s ended: %v", logPrefix, authID, err))
	}
}

// shutdown ends every session, then stops the listeners and the NATS connection.
func (d *daemon) shutdown(ctx context.Context) error {
	var errs []error
	if d.router != nil {
		if err := d.router.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.http != nil {
		if err := d.http.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	if d.grpc != nil {
		d.grpc.Close()
	}
	d.closeNATS()
	return errors.Join(errs...)
}

func (d *daemon) closeNATS() {
	if d.nc == nil {
		return
	}
	if err := d.nc.Drain(); err != nil {
		d.nc.Close()
	}
}
