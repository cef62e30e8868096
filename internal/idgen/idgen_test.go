package idgen

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

func TestGenerator_Range(t *testing.T) {
	g := New()
	for i := 0; i < 10000; i++ {
		id := g.Next()
		require.GreaterOrEqual(t, id, wamp.ID(1))
		require.LessOrEqual(t, id, wamp.MaxID)
	}
}

func TestGenerator_Seeded(t *testing.T) {
	a := NewSeeded(1, 2)
	b := NewSeeded(1, 2)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestGenerator_NextUnused(t *testing.T) {
	g := NewSeeded(7, 7)
	first := NewSeeded(7, 7).Next()

	id := g.NextUnused(func(id wamp.ID) bool { return id == first })
	assert.NotEqual(t, first, id)
}

func TestGenerator_IntN(t *testing.T) {
	g := NewSeeded(3, 4)
	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		n := g.IntN(4)
		require.True(t, n >= 0 && n < 4)
		seen[n] = true
	}
	assert.Len(t, seen, 4)
}

func TestGenerator_Concurrent(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				g.Next()
				g.IntN(10)
			}
		}()
	}
	wg.Wait()
}
