// Package realtime fans out sequence-numbered conversation events to
// connected listeners. The in-memory Broadcaster feeds websocket widgets;
// the AMQP publisher feeds dashboard consumers; Fanout composes transports.
//
// Delivery is best-effort and at-least-once with no ordering guarantee
// beyond the Seq carried in each payload. Consumers keep the highest Seq
// applied per conversation and discard anything lower; gaps are recovered by
// re-fetching recent history on reconnect, not by the transport.
package realtime
