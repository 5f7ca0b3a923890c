// Package scheduler chooses, for one tenant shard, which eligible page
// server should be attached and which should hold secondary copies.
//
// Schedule is a pure function: it takes a registry snapshot, a placement
// policy, the shard's current intent, and the attached/secondary load of
// every other shard, and returns a new intent plus any secondary deficit.
// It never performs I/O and never mutates observed state; the reconciler is
// what turns a new intent into actual page-server configuration.
package scheduler
