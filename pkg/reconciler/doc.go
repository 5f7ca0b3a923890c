// Package reconciler converges one tenant shard's observed page-server
// state toward its intent. Task.Run applies the live-migration special case
// when it detects an in-progress attach-to-secondary handoff, otherwise the
// general case: bump generation and PUT the attached config, bring
// secondaries in line, and detach anything observed but no longer intended.
//
// Every observed-state write goes through apply, which flips the entry to
// unknown before the PUT and back to known only on 2xx, and every write is
// gated on the shard's sequence watermark so a superseded task can't
// clobber a newer one's progress.
package reconciler
