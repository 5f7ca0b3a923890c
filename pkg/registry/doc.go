// Package registry holds the control plane's set of known page servers.
//
// Registration is idempotent on NodeId; Configure returns the shards a node
// availability/scheduling change affects but never mutates shard state
// itself — that belongs to the service facade. Snapshot hands reconcile
// tasks an immutable view so they never re-read the live registry mid-run.
package registry
