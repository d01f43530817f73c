// Package ledger records the append-only campaign event history.
//
// Every lifecycle transition writes one event through Ledger.Record. The
// repository is the source of truth; sinks (message bus, webhook, report
// archive) receive a copy asynchronously and their failures never reach the
// caller.
package ledger
