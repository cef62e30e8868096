// Package wamp defines the protocol model shared by the rpcmesh dealer, its transports and clients.
//
// This package contains:
//   - ID and URI: identifiers and dot-separated procedure names
//   - Message: a tagged union with one struct per message type (HELLO, CALL, YIELD, ...)
//   - Options and details: typed views over the Dict carried by REGISTER, CALL and INVOCATION
//   - Encode/Decode: conversion between messages and the JSON array wire form
//
// Only the RPC subset of the protocol is modelled. Publish/subscribe messages are rejected by
// Decode.
//
// Example:
//
//	msg, err := wamp.Decode(wamp.List{48, 7, map[string]any{}, "com.example.add", []any{2, 3}})
//	if err != nil {
//		return err
//	}
//	call := msg.(*wamp.Call)
//	fmt.Println(call.Procedure, call.Args)
package wamp
