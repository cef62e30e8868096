// Package client is a WAMP caller and callee that runs over any peerlink.Peer.
//
// Usage:
//
//	peer, err := websocket.Dial(ctx, "ws://localhost:8080/ws", token, websocket.Config{})
//	if err != nil {
//		return err
//	}
//	c, err := client.Join(ctx, peer, "realm1", client.Config{})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	_, err = c.Register(ctx, "com.example.add", wamp.RegisterOptions{},
//		func(ctx context.Context, inv *client.Invocation) (*client.Result, error) {
//			a, _ := inv.Args[0].(float64)
//			b, _ := inv.Args[1].(float64)
//			return &client.Result{Args: wamp.List{a + b}}, nil
//		})
//
//	res, err := c.Call(ctx, "com.example.add", wamp.List{2, 3}, nil)
package client
