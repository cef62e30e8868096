// Package idgen draws random WAMP identifiers.
package idgen

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// Generator produces identifiers in [1, 2^53]. It is safe for concurrent use.
// Uniqueness within a live set is the caller's job: draw again on collision.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a generator seeded from the clock.
func New() *Generator {
	now := uint64(time.Now().UnixNano())
	return NewSeeded(now, now>>32|now<<32)
}

// NewSeeded returns a deterministic generator for tests.
func NewSeeded(seed1, seed2 uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Next returns a random identifier in [1, 2^53].
func (g *Generator) Next() wamp.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return wamp.ID(g.rng.Uint64N(uint64(wamp.MaxID))) + 1
}

// NextUnused draws until taken reports false.
func (g *Generator) NextUnused(taken func(wamp.ID) bool) wamp.ID {
	for {
		id := g.Next()
		if !taken(id) {
			return id
		}
	}
}

// IntN returns a uniform integer in [0, n). It panics if n <= 0.
func (g *Generator) IntN(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}
