package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rmacdonaldsmith/rpcmesh/internal/discovery"
	"github.com/rmacdonaldsmith/rpcmesh/internal/grpclink"
	"github.com/rmacdonaldsmith/rpcmesh/internal/transport/websocket"
	rpcclient "github.com/rmacdonaldsmith/rpcmesh/pkg/client"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// openSession joins --realm over websocket, or over gRPC when --grpc is set.
// Several --grpc addresses are tried in order until one connects.
// Without a token it logs in as --authid first.
func openSession(ctx context.Context) (*rpcclient.Client, error) {
	if !noAuth && !client.IsAuthenticated() {
		if authID == "" {
			return nil, fmt.Errorf("not authenticated - provide --token or --authid")
		}
		if err := client.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	sessionToken := ""
	if !noAuth {
		sessionToken = client.GetToken()
	}

	var (
		peer peerlink.Peer
		err  error
	)
	if len(grpcTargets) > 0 {
		peer, _, err = discovery.DialFirst(ctx, discovery.NewStaticDiscovery(grpcTargets),
			func(ctx context.Context, address string) (peerlink.Peer, error) {
				return grpclink.Dial(ctx, address, sessionToken)
			})
	} else {
		peer, err = websocket.Dial(ctx, client.WebsocketURL(), sessionToken, websocket.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	session, err := rpcclient.Join(ctx, peer, realm, rpcclient.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to join %s: %w", realm, err)
	}
	return session, nil
}

// parseArgs reads each argument as JSON, falling back to a plain string.
func parseArgs(args []string) wamp.List {
	out := make(wamp.List, len(args))
	for i, arg := range args {
		var v any
		if err := json.Unmarshal([]byte(arg), &v); err != nil {
			v = arg
		}
		out[i] = v
	}
	return out
}

func parseKwargs(raw string) (wamp.Dict, error) {
	if raw == "" {
		return nil, nil
	}
	var kwargs wamp.Dict
	if err := json.Unmarshal([]byte(raw), &kwargs); err != nil {
		return nil, fmt.Errorf("invalid JSON kwargs: %w", err)
	}
	return kwargs, nil
}
