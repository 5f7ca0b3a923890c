// Package shardstate defines TenantShardState: per-shard intent, observed
// state and sequence number, guarded by a per-shard lock, plus the in-memory
// Store that holds every shard the control plane knows about.
//
// Mutation always follows lock / apply / bump sequence / cancel existing
// reconciler / spawn replacement, in that order — see pkg/service for the
// callers that do this.
package shardstate
