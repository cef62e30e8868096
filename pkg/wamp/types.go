package wamp

import (
	"fmt"
	"strings"
)

// ID identifies sessions, requests, registrations and invocations.
// Values are drawn from [1, 2^53] so they survive a round trip through JSON numbers.
type ID uint64

// MaxID is the largest identifier the protocol allows.
const MaxID ID = 1 << 53

// URI is a dot-separated procedure or error name.
type URI string

// List carries positional arguments.
type List []any

// Dict carries keyword arguments, options and details.
type Dict map[string]any

// Segments splits the URI on dots. Empty segments are preserved.
func (u URI) Segments() []string {
	if u == "" {
		return nil
	}
	return strings.Split(string(u), ".")
}

// ValidateProcedure checks that the URI is usable for the given matching policy.
// Only wildcard patterns may contain empty segments; every other policy needs
// non-empty segments, and a wildcard pattern needs at least one literal segment.
func (u URI) ValidateProcedure(match MatchingPolicy) error {
	if u == "" {
		return fmt.Errorf("uri cannot be empty")
	}
	if len(u) > maxURILength {
		return fmt.Errorf("uri exceeds %d bytes", maxURILength)
	}
	literal := 0
	for _, seg := range u.Segments() {
		if strings.ContainsAny(seg, " \t\r\n#") {
			return fmt.Errorf("uri segment %q contains an illegal character", seg)
		}
		if seg == "" {
			if match != MatchWildcard {
				return fmt.Errorf("uri %q has an empty segment", u)
			}
			continue
		}
		literal++
	}
	if literal == 0 {
		return fmt.Errorf("uri %q has no literal segment", u)
	}
	return nil
}

const maxURILength = 2048

// MatchingPolicy controls which call URIs a registration answers.
type MatchingPolicy int

const (
	// MatchStrict matches the identical URI only (wire form "exact").
	MatchStrict MatchingPolicy = iota
	// MatchPrefix matches any URI that starts with the registered segments.
	MatchPrefix
	// MatchWildcard treats empty segments as single-segment placeholders.
	MatchWildcard
)

func (m MatchingPolicy) String() string {
	switch m {
	case MatchStrict:
		return "exact"
	case MatchPrefix:
		return "prefix"
	case MatchWildcard:
		return "wildcard"
	default:
		return "unknown"
	}
}

// Valid reports whether m is one of the defined policies.
func (m MatchingPolicy) Valid() bool {
	return m >= MatchStrict && m <= MatchWildcard
}

// MarshalText renders the wire form.
func (m MatchingPolicy) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses the wire form.
func (m *MatchingPolicy) UnmarshalText(b []byte) error {
	p, err := ParseMatchingPolicy(string(b))
	if err != nil {
		return err
	}
	*m = p
	return nil
}

// ParseMatchingPolicy reads the wire form of a matching policy. The empty string is exact.
func ParseMatchingPolicy(s string) (MatchingPolicy, error) {
	switch s {
	case "", "exact":
		return MatchStrict, nil
	case "prefix":
		return MatchPrefix, nil
	case "wildcard":
		return MatchWildcard, nil
	default:
		return MatchStrict, fmt.Errorf("unknown match policy %q", s)
	}
}

// InvocationPolicy selects a callee when several sessions share an exact registration.
type InvocationPolicy int

const (
	// InvokeSingle allows one registrant only.
	InvokeSingle InvocationPolicy = iota
	// InvokeFirst always picks the earliest registrant.
	InvokeFirst
	// InvokeLast always picks the latest registrant.
	InvokeLast
	// InvokeRoundRobin cycles through registrants in registration order.
	InvokeRoundRobin
	// InvokeRandom picks a registrant uniformly at random.
	InvokeRandom
)

func (p InvocationPolicy) String() string {
	switch p {
	case InvokeSingle:
		return "single"
	case InvokeFirst:
		return "first"
	case InvokeLast:
		return "last"
	case InvokeRoundRobin:
		return "roundrobin"
	case InvokeRandom:
		return "random"
	default:
		return "unknown"
	}
}

// Shared reports whether the policy lets several registrants share one URI.
func (p InvocationPolicy) Shared() bool {
	return p != InvokeSingle
}

// Valid reports whether p is one of the defined policies.
func (p InvocationPolicy) Valid() bool {
	return p >= InvokeSingle && p <= InvokeRandom
}

// MarshalText renders the wire form.
func (p InvocationPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses the wire form.
func (p *InvocationPolicy) UnmarshalText(b []byte) error {
	v, err := ParseInvocationPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParseInvocationPolicy reads the wire form of an invocation policy. The empty string is single.
func ParseInvocationPolicy(s string) (InvocationPolicy, error) {
	switch s {
	case "", "single":
		return InvokeSingle, nil
	case "first":
		return InvokeFirst, nil
	case "last":
		return InvokeLast, nil
	case "roundrobin":
		return InvokeRoundRobin, nil
	case "random":
		return InvokeRandom, nil
	default:
		return InvokeSingle, fmt.Errorf("unknown invocation policy %q", s)
	}
}
