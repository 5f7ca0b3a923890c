// Package storage provides optional durable persistence for the node
// registry and tenant shard state, backed by bbolt. Nothing in the control
// plane's hot path depends on it directly. cmd/attachd opens the store when a
// data directory is configured and restores nodes and shards from it at
// startup; nothing in the control plane calls SaveNode or SaveShard, so
// mutations made while running are not written back.
package storage
