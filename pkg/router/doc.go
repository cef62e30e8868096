// Package router provides interfaces for the session router.
//
// A Router accepts sessions from any transport that implements peerlink.Peer and
// joins them to realms:
//   - HELLO attaches the session to the named realm and is answered with WELCOME,
//     or with ABORT(wamp.error.no_such_realm)
//   - REGISTER, UNREGISTER, CALL, YIELD and ERROR(INVOCATION) are routed by the
//     realm's dealer
//   - GOODBYE, ABORT or a closed link end the session and drop everything it owned
//
// Example usage:
//
//	r, err := router.NewRouter(router.NewConfig("realm1"))
//	if err != nil {
//		return err
//	}
//	if err := r.Start(ctx); err != nil {
//		return err
//	}
//	defer r.Close()
//
//	// serve one session per accepted link
//	go r.Accept(ctx, peer, authID)
//
//	health, _ := r.GetHealth(ctx)
//	if !health.Healthy {
//		log.Printf("router unhealthy: %s", health.Message)
//	}
package router
