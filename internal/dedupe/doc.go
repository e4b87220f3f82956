// Package dedupe provides idempotent-delivery guards for inbound webhook
// signals and outbound message posts. A durable insert-if-absent ledger is
// the source of truth; a TTL memory cache absorbs immediate redeliveries.
package dedupe
