// ABOUTME: Package documentation for httpapi
// ABOUTME: Describes the widget, webhook, and cron HTTP surface

// Package httpapi exposes the routing core over HTTP: the visitor
// widget endpoints (session minting, idempotent send, websocket
// events), the HMAC-signed platform webhook, and the cron sweep
// trigger. The webhook acks before processing; the dedupe ledger makes
// redelivery harmless.
package httpapi
