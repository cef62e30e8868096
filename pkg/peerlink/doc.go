// Package peerlink defines the transport contract between the router and a WAMP peer.
//
// A Peer moves decoded messages in both directions:
//   - Send enqueues an outbound message and never blocks
//   - Recv delivers inbound messages and is closed when the link goes down
//   - Close tears the link down from this side
//
// The router runs one session loop per Peer and the dealer writes to peers only
// through Send, so a slow client can never hold up the realm.
//
// Example usage:
//
//	for msg := range peer.Recv() {
//		if err := session.Handle(ctx, msg); err != nil {
//			...
//		}
//	}
//
//	if err := peer.Send(&wamp.Result{Request: 7, Details: wamp.Dict{}}); errors.Is(err, peerlink.ErrQueueFull) {
//		// the client is not keeping up
//	}
//
// Implementations live in internal/transport (in-memory pipes, websocket) and
// internal/grpclink (gRPC streams).
package peerlink
