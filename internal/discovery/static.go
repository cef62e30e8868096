package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
)

const logPrefix = "discovery"

// StaticDiscovery implements Discovery using a fixed list of router addresses
type StaticDiscovery struct {
	seeds []string
}

// NewStaticDiscovery creates a static discovery over the given addresses.
// Blank entries and duplicates are dropped.
func NewStaticDiscovery(seeds []string) *StaticDiscovery {
	seen := make(map[string]bool, len(seeds))
	kept := make([]string, 0, len(seeds))
	for _, s := range seeds {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		kept = append(kept, s)
	}
	return &StaticDiscovery{seeds: kept}
}

// FindRouters returns the seed addresses in the order they were given
func (s *StaticDiscovery) FindRouters(ctx context.Context) ([]Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Endpoint, len(s.seeds))
	for i, address := range s.seeds {
		out[i] = Endpoint{ID: address, Address: address}
	}
	return out, nil
}

// DefaultAttemptTimeout bounds a single dial made by DialFirst.
const DefaultAttemptTimeout = 5 * time.Second

// DialFirst dials the discovered endpoints in order and returns the first
// transport that connects. The joined dial errors are returned when none do.
func DialFirst(ctx context.Context, d Discovery, dial DialFunc) (peerlink.Peer, Endpoint, error) {
	endpoints, err := d.FindRouters(ctx)
	if err != nil {
		return nil, Endpoint{}, fmt.Errorf("discovery failed: %w", err)
	}
	if len(endpoints) == 0 {
		return nil, Endpoint{}, ErrNoRouters
	}

	var errs []error
	for _, ep := range endpoints {
		attemptCtx, cancel := context.WithTimeout(ctx, DefaultAttemptTimeout)
		peer, err := dial(attemptCtx, ep.Address)
		cancel()
		if err == nil {
			return peer, ep, nil
		}
		slog.Debug(fmt.Sprintf("%s - dial %s failed: %v", logPrefix, ep.Address, err))
		errs = append(errs, fmt.Errorf("%s: %w", ep.Address, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, Endpoint{}, errors.Join(errs...)
}
