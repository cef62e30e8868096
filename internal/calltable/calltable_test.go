package calltable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_BeginComplete(t *testing.T) {
	tbl := New()
	tbl.Begin(ActiveCall{Invocation: 100, Request: 7, Caller: 2, Callee: 1})
	require.Equal(t, 1, tbl.Len())

	peek, ok := tbl.Lookup(100)
	require.True(t, ok)
	assert.Equal(t, 1, tbl.Len(), "lookup must not remove")
	assert.Equal(t, uint64(7), uint64(peek.Request))

	call, ok := tbl.Complete(100)
	require.True(t, ok)
	assert.Equal(t, peek, call)
	assert.Equal(t, 0, tbl.Len())

	_, ok = tbl.Complete(100)
	assert.False(t, ok, "an invocation completes at most once")
	assert.False(t, tbl.Contains(100))
}

func TestTable_BeginDuplicatePanics(t *testing.T) {
	tbl := New()
	tbl.Begin(ActiveCall{Invocation: 1})
	assert.Panics(t, func() { tbl.Begin(ActiveCall{Invocation: 1}) })
}

func TestTable_RemoveSession(t *testing.T) {
	tbl := New()
	base := time.Now()
	tbl.Begin(ActiveCall{Invocation: 1, Caller: 10, Callee: 20, Started: base})
	tbl.Begin(ActiveCall{Invocation: 2, Caller: 30, Callee: 10, Started: base.Add(time.Second)})
	tbl.Begin(ActiveCall{Invocation: 3, Caller: 30, Callee: 20, Started: base.Add(2 * time.Second)})

	removed := tbl.RemoveSession(10)
	require.Len(t, removed, 2)
	assert.EqualValues(t, 1, removed[0].Invocation)
	assert.EqualValues(t, 2, removed[1].Invocation)
	assert.True(t, tbl.Contains(3))
	assert.Empty(t, tbl.RemoveSession(10))
}

func TestTable_Expired(t *testing.T) {
	tbl := New()
	now := time.Now()
	tbl.Begin(ActiveCall{Invocation: 1, Started: now.Add(-time.Minute)})
	tbl.Begin(ActiveCall{Invocation: 2, Started: now})

	expired := tbl.Expired(now.Add(-time.Second))
	require.Len(t, expired, 1)
	assert.EqualValues(t, 1, expired[0].Invocation)
	assert.Equal(t, 1, tbl.Len())
}
