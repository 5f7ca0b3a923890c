// Package service is the control plane's facade: every external RPC
// (tenant create, node register/configure, migrate, attach-hook,
// re-attach, validate, inspect) lands on a Service method. Each method
// mutates shard state under that shard's lock, invokes the scheduler when
// placement may have changed, and spawns a reconciler to carry the new
// intent out to page servers — it never talks to a page server itself.
package service
