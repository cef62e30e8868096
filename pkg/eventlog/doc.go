// Package eventlog provides interfaces for the meta event journal.
//
// The dealer emits meta events (wamp.registration.on_register, wamp.session.on_join, ...)
// as sessions come and go. A journal keeps the most recent of them per realm and topic
// so operators can inspect what happened without subscribing in advance:
//   - Event: one meta event with its per-topic offset
//   - EventLog: append, read, replay and statistics
//
// Example usage:
//
//	ev, err := log.AppendEvent(ctx, eventlog.NewEvent("realm1", wamp.MetaOnRegister, session, args))
//	if err != nil {
//		return err
//	}
//
//	// Read up to 100 events of one topic from offset 0
//	events, err := log.ReadEvents(ctx, "realm1", wamp.MetaOnRegister, 0, 100)
//
// Offsets start at 0 per (realm, topic) and never repeat, even after old events have
// been evicted from a bounded journal.
package eventlog
