// Package routingtable defines the procedure registry used by the dealer.
//
// A registry maps procedure URIs to the sessions that registered them:
//   - Registration: one (uri, matching policy, registrant) triple with its procedure id
//   - Match: the registration a call URI resolved to
//   - RoutingTable: register, unregister, resolve and disconnect cleanup
//
// Example usage:
//
//	id, err := table.Register("com.example.add", session, wamp.MatchStrict, wamp.InvokeSingle)
//	if err != nil {
//		return err
//	}
//
//	m, err := table.Resolve("com.example.add")
//	if errors.Is(err, routingtable.ErrNoSuchProcedure) {
//		// reply ERROR(CALL, wamp.error.no_such_procedure)
//	}
//	deliverInvocation(m.Registration.Registrant, m.Registration.ID)
//
// Matching policies:
//   - exact: "com.example.add" matches only "com.example.add"
//   - prefix: "com.example" matches "com.example", "com.example.add", "com.example.a.b"
//   - wildcard: "com..add" matches "com.example.add" and "com.other.add", one segment per gap
//
// When several registrations match, an exact registration wins, then the one with the
// longest literal prefix, then the earliest registered.
//
// Implementations are not safe for concurrent use; the realm lock serializes access.
package routingtable
