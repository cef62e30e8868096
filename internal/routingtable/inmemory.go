package routingtable

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/internal/idgen"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/routingtable"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// InMemoryRoutingTable is a segment trie of procedure registrations.
// It is not safe for concurrent use.
type InMemoryRoutingTable struct {
	ids  *idgen.Generator
	root *node

	byID      map[wamp.ID]*entry
	bySession map[wamp.ID]map[wamp.ID]*entry

	seq uint64
	now func() time.Time
}

// entry is a live registration plus its position in the trie.
type entry struct {
	reg  routingtable.Registration
	seq  uint64
	node *node
}

// node is one URI segment. Literal segments hang off children, empty
// (wildcard) segments off wild.
type node struct {
	parent   *node
	segment  string
	children map[string]*node
	wild     *node

	exact    *sharedSet
	prefix   []*entry
	wildcard []*entry
}

// sharedSet holds every exact registration for one URI, oldest first.
type sharedSet struct {
	invoke  wamp.InvocationPolicy
	members []*entry
	cursor  int
}

// NewInMemoryRoutingTable creates an empty table drawing procedure ids from ids.
func NewInMemoryRoutingTable(ids *idgen.Generator) *InMemoryRoutingTable {
	return &InMemoryRoutingTable{
		ids:       ids,
		root:      &node{},
		byID:      make(map[wamp.ID]*entry),
		bySession: make(map[wamp.ID]map[wamp.ID]*entry),
		now:       time.Now,
	}
}

// Register adds a registration and returns its procedure id.
func (t *InMemoryRoutingTable) Register(uri wamp.URI, registrant wamp.ID, match wamp.MatchingPolicy, invoke wamp.InvocationPolicy) (wamp.ID, error) {
	if !match.Valid() || !invoke.Valid() {
		return 0, fmt.Errorf("%w: match %d, invoke %d", routingtable.ErrInvalidPolicy, match, invoke)
	}
	if err := uri.ValidateProcedure(match); err != nil {
		return 0, fmt.Errorf("%w: %v", routingtable.ErrInvalidURI, err)
	}

	n := t.walk(uri, false)
	if n != nil {
		if err := n.admit(registrant, match, invoke); err != nil {
			return 0, fmt.Errorf("%w: %s", err, uri)
		}
	}
	n = t.walk(uri, true)

	t.seq++
	e := &entry{
		reg: routingtable.Registration{
			ID: t.ids.NextUnused(func(id wamp.ID) bool {
				_, taken := t.byID[id]
				return taken
			}),
			Procedure:  uri,
			Match:      match,
			Invoke:     invoke,
			Registrant: registrant,
			Created:    t.now(),
		},
		seq:  t.seq,
		node: n,
	}

	switch match {
	case wamp.MatchStrict:
		if n.exact == nil {
			n.exact = &sharedSet{invoke: invoke}
		}
		n.exact.members = append(n.exact.members, e)
	case wamp.MatchPrefix:
		n.prefix = append(n.prefix, e)
	case wamp.MatchWildcard:
		n.wildcard = append(n.wildcard, e)
	}

	t.byID[e.reg.ID] = e
	owned := t.bySession[registrant]
	if owned == nil {
		owned = make(map[wamp.ID]*entry)
		t.bySession[registrant] = owned
	}
	owned[e.reg.ID] = e
	return e.reg.ID, nil
}

// admit checks a new registration against the ones already at this node.
func (n *node) admit(registrant wamp.ID, match wamp.MatchingPolicy, invoke wamp.InvocationPolicy) error {
	if slices.ContainsFunc(n.list(match), func(e *entry) bool { return e.reg.Registrant == registrant }) {
		return routingtable.ErrProcedureAlreadyExists
	}
	if match == wamp.MatchStrict && n.exact != nil && len(n.exact.members) > 0 {
		if !invoke.Shared() || n.exact.invoke != invoke {
			return routingtable.ErrProcedureAlreadyExists
		}
	}
	return nil
}

func (n *node) list(match wamp.MatchingPolicy) []*entry {
	switch match {
	case wamp.MatchStrict:
		if n.exact == nil {
			return nil
		}
		return n.exact.members
	case wamp.MatchPrefix:
		return n.prefix
	case wamp.MatchWildcard:
		return n.wildcard
	default:
		return nil
	}
}

// Unregister removes the registrant's registration at (uri, match).
func (t *InMemoryRoutingTable) Unregister(uri wamp.URI, registrant wamp.ID, match wamp.MatchingPolicy) (wamp.ID, error) {
	if !match.Valid() {
		return 0, fmt.Errorf("%w: match %d", routingtable.ErrInvalidPolicy, match)
	}
	n := t.walk(uri, false)
	if n == nil {
		return 0, fmt.Errorf("%w: %s", routingtable.ErrNoSuchProcedure, uri)
	}
	idx := slices.IndexFunc(n.list(match), func(e *entry) bool { return e.reg.Registrant == registrant })
	if idx < 0 {
		return 0, fmt.Errorf("%w: %s", routingtable.ErrNoSuchProcedure, uri)
	}
	e := n.list(match)[idx]
	t.remove(e)
	return e.reg.ID, nil
}

// RemoveRegistrant drops every registration owned by registrant, oldest first.
func (t *InMemoryRoutingTable) RemoveRegistrant(registrant wamp.ID) []routingtable.Registration {
	owned := t.bySession[registrant]
	entries := make([]*entry, 0, len(owned))
	for _, e := range owned {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *entry) int { return cmp.Compare(a.seq, b.seq) })

	removed := make([]routingtable.Registration, 0, len(entries))
	for _, e := range entries {
		t.remove(e)
		removed = append(removed, e.reg)
	}
	return removed
}

func (t *InMemoryRoutingTable) remove(e *entry) {
	n := e.node
	switch e.reg.Match {
	case wamp.MatchStrict:
		set := n.exact
		i := slices.Index(set.members, e)
		set.members = slices.Delete(set.members, i, i+1)
		if i < set.cursor {
			set.cursor--
		}
		if set.cursor >= len(set.members) {
			set.cursor = 0
		}
		if len(set.members) == 0 {
			n.exact = nil
		}
	case wamp.MatchPrefix:
		n.prefix = slices.DeleteFunc(n.prefix, func(x *entry) bool { return x == e })
	case wamp.MatchWildcard:
		n.wildcard = slices.DeleteFunc(n.wildcard, func(x *entry) bool { return x == e })
	}

	delete(t.byID, e.reg.ID)
	if owned := t.bySession[e.reg.Registrant]; owned != nil {
		delete(owned, e.reg.ID)
		if len(owned) == 0 {
			delete(t.bySession, e.reg.Registrant)
		}
	}
	t.prune(n)
}

// prune detaches empty nodes from the leaf upwards.
func (t *InMemoryRoutingTable) prune(n *node) {
	for n != nil && n != t.root && n.empty() {
		p := n.parent
		if n.segment == "" {
			p.wild = nil
		} else {
			delete(p.children, n.segment)
		}
		n = p
	}
}

func (n *node) empty() bool {
	return n.exact == nil && len(n.prefix) == 0 && len(n.wildcard) == 0 &&
		len(n.children) == 0 && n.wild == nil
}

// walk follows uri's segments from the root, creating nodes when create is set.
func (t *InMemoryRoutingTable) walk(uri wamp.URI, create bool) *node {
	n := t.root
	for _, seg := range uri.Segments() {
		var next *node
		if seg == "" {
			next = n.wild
		} else {
			next = n.children[seg]
		}
		if next == nil {
			if !create {
				return nil
			}
			next = &node{parent: n, segment: seg}
			if seg == "" {
				n.wild = next
			} else {
				if n.children == nil {
					n.children = make(map[string]*node)
				}
				n.children[seg] = next
			}
		}
		n = next
	}
	return n
}

// candidate is a pattern registration covering the call URI.
type candidate struct {
	e       *entry
	literal int
}

// Resolve picks the registration that should receive a call to uri.
func (t *InMemoryRoutingTable) Resolve(uri wamp.URI) (routingtable.Match, error) {
	segs := uri.Segments()
	if len(segs) == 0 {
		return routingtable.Match{}, fmt.Errorf("%w: %q", routingtable.ErrNoSuchProcedure, uri)
	}

	if n := t.walk(uri, false); n != nil && n.exact != nil {
		e := t.pick(n.exact)
		return routingtable.Match{Registration: e.reg, Shared: len(n.exact.members)}, nil
	}

	var best *candidate
	consider := func(e *entry, literal int) {
		if best == nil || literal > best.literal || (literal == best.literal && e.seq < best.e.seq) {
			best = &candidate{e: e, literal: literal}
		}
	}

	// firstWild is the depth of the first wildcard segment on the current path, or -1.
	var visit func(n *node, depth, firstWild int)
	visit = func(n *node, depth, firstWild int) {
		// Prefix patterns never contain wildcard segments.
		if firstWild < 0 {
			for _, e := range n.prefix {
				consider(e, depth)
			}
		}
		if depth == len(segs) {
			literal := firstWild
			if literal < 0 {
				literal = depth
			}
			for _, e := range n.wildcard {
				consider(e, literal)
			}
			return
		}
		if child := n.children[segs[depth]]; child != nil {
			visit(child, depth+1, firstWild)
		}
		if n.wild != nil {
			fw := firstWild
			if fw < 0 {
				fw = depth
			}
			visit(n.wild, depth+1, fw)
		}
	}
	visit(t.root, 0, -1)

	if best == nil {
		return routingtable.Match{}, fmt.Errorf("%w: %s", routingtable.ErrNoSuchProcedure, uri)
	}
	return routingtable.Match{Registration: best.e.reg, Shared: 1}, nil
}

// pick applies the set's invocation policy.
func (t *InMemoryRoutingTable) pick(set *sharedSet) *entry {
	members := set.members
	switch set.invoke {
	case wamp.InvokeLast:
		return members[len(members)-1]
	case wamp.InvokeRoundRobin:
		if set.cursor >= len(members) {
			set.cursor = 0
		}
		e := members[set.cursor]
		set.cursor = (set.cursor + 1) % len(members)
		return e
	case wamp.InvokeRandom:
		return members[t.ids.IntN(len(members))]
	default:
		return members[0]
	}
}

// Lookup returns the registration with the given procedure id.
func (t *InMemoryRoutingTable) Lookup(id wamp.ID) (routingtable.Registration, bool) {
	e, ok := t.byID[id]
	if !ok {
		return routingtable.Registration{}, false
	}
	return e.reg, true
}

// Registrations returns all live registrations, oldest first.
func (t *InMemoryRoutingTable) Registrations() []routingtable.Registration {
	entries := make([]*entry, 0, len(t.byID))
	for _, e := range t.byID {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *entry) int { return cmp.Compare(a.seq, b.seq) })

	out := make([]routingtable.Registration, len(entries))
	for i, e := range entries {
		out[i] = e.reg
	}
	return out
}

// Count returns the number of live registrations.
func (t *InMemoryRoutingTable) Count() int {
	return len(t.byID)
}

// Registrants returns the number of sessions holding at least one registration.
func (t *InMemoryRoutingTable) Registrants() int {
	return len(t.bySession)
}

var _ routingtable.RoutingTable = (*InMemoryRoutingTable)(nil)
