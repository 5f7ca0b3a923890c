/*
Package types defines the identifiers and small value types shared across the
attachment control plane: tenant/shard/node/timeline ids, the shard identity
and key-to-shard hash, the generation counter, placement policy, and the
location-config vocabulary spoken between the control plane and page servers.

# Identifiers

NodeId, TenantId and TimelineId are opaque strings minted with uuid.NewString.
TenantShardId is the fully-qualified partition identity (tenant, shard number,
shard count) and round-trips through its canonical string form:

	id := types.TenantShardId{TenantId: tid, ShardNumber: 2, ShardCount: 8}
	s := id.String() // "<tenant>-0208"
	back, err := types.ParseTenantShardId(s)

Any code that must hold more than one shard lock at a time acquires them in
TenantShardId.Less order to avoid deadlock.

# Sharding

ShardIdentity carries the layout, number, count and stripe size a page server
needs to know which keys it owns. KeyToShardNumber is the hash the control
plane and page servers must agree on; count == 0 always maps to shard 0.

# Generations

Generation is a distinct numeric type, not a bare uint32 — it must never be
attached or incremented implicitly. Every attach or re-attach advances it with
Next.

# Location config

LocationConfig is the JSON body of a page server's location_config endpoint.
The Attached/Secondary/Detached constructors build the three steady-state
configs; Equal is used by the reconciler to skip redundant PUTs.
*/
package types
