// Package calltable correlates outstanding invocations with the calls that caused them.
package calltable

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// ActiveCall is a call that has been forwarded to a callee and awaits its yield.
type ActiveCall struct {
	Invocation   wamp.ID
	Request      wamp.ID
	Caller       wamp.ID
	Callee       wamp.ID
	Registration wamp.ID
	Procedure    wamp.URI
	Started      time.Time
}

// Table holds active calls keyed by invocation id. It is not safe for concurrent use.
type Table struct {
	calls map[wamp.ID]ActiveCall
}

// New creates an empty table.
func New() *Table {
	return &Table{calls: make(map[wamp.ID]ActiveCall)}
}

// Begin records a dispatched call. A duplicate invocation id is a programming error and panics.
func (t *Table) Begin(call ActiveCall) {
	if _, exists := t.calls[call.Invocation]; exists {
		panic(fmt.Sprintf("calltable: invocation %d already active", call.Invocation))
	}
	t.calls[call.Invocation] = call
}

// Complete removes and returns the call for an invocation. The second return is false
// for unknown or already completed invocations.
func (t *Table) Complete(invocation wamp.ID) (ActiveCall, bool) {
	call, ok := t.calls[invocation]
	if ok {
		delete(t.calls, invocation)
	}
	return call, ok
}

// Lookup returns the call for an invocation without removing it.
func (t *Table) Lookup(invocation wamp.ID) (ActiveCall, bool) {
	call, ok := t.calls[invocation]
	return call, ok
}

// Contains reports whether an invocation id is in use.
func (t *Table) Contains(invocation wamp.ID) bool {
	_, ok := t.calls[invocation]
	return ok
}

// RemoveSession drops every call the session is caller or callee of, oldest first.
func (t *Table) RemoveSession(session wamp.ID) []ActiveCall {
	return t.removeWhere(func(c ActiveCall) bool {
		return c.Caller == session || c.Callee == session
	})
}

// Expired drops every call started before the deadline, oldest first.
func (t *Table) Expired(before time.Time) []ActiveCall {
	return t.removeWhere(func(c ActiveCall) bool {
		return c.Started.Before(before)
	})
}

// Len returns the number of active calls.
func (t *Table) Len() int {
	return len(t.calls)
}

func (t *Table) removeWhere(match func(ActiveCall) bool) []ActiveCall {
	var removed []ActiveCall
	for id, c := range t.calls {
		if match(c) {
			removed = append(removed, c)
			delete(t.calls, id)
		}
	}
	slices.SortFunc(removed, func(a, b ActiveCall) int {
		return cmp.Or(a.Started.Compare(b.Started), cmp.Compare(a.Invocation, b.Invocation))
	})
	return removed
}
