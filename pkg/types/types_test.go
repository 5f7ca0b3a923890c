package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTenantShardIdStringRoundTrip(t *testing.T) {
	id := TenantShardId{TenantId: "tenant-a", ShardNumber: 2, ShardCount: 8}
	parsed, err := ParseTenantShardId(id.String())

	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestUnshardedTenantShardIdIsUnsharded(t *testing.T) {
	id := UnshardedTenantShardId("tenant-a")
	require.True(t, id.IsUnsharded())
	require.Equal(t, "tenant-a-0001", id.String())
}

func TestParseTenantShardIdRejectsMalformed(t *testing.T) {
	_, err := ParseTenantShardId("not-a-valid-id")
	require.Error(t, err)
}

func TestTenantShardIdLessOrdersByTenantThenCountThenNumber(t *testing.T) {
	a := TenantShardId{TenantId: "a", ShardCount: 1, ShardNumber: 0}
	b := TenantShardId{TenantId: "b", ShardCount: 1, ShardNumber: 0}
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))

	sameTenant1 := TenantShardId{TenantId: "a", ShardCount: 2, ShardNumber: 1}
	sameTenant2 := TenantShardId{TenantId: "a", ShardCount: 2, ShardNumber: 0}
	require.True(t, sameTenant2.Less(sameTenant1))
}

func TestKeyToShardNumberIsDeterministicAndBounded(t *testing.T) {
	key := []byte("some-relation-key")
	n1 := KeyToShardNumber(4, DefaultStripeSize, key, 0)
	n2 := KeyToShardNumber(4, DefaultStripeSize, key, 0)
	require.Equal(t, n1, n2)
	require.Less(t, n1, uint8(4))
}

func TestKeyToShardNumberUnshardedAlwaysZero(t *testing.T) {
	require.Equal(t, uint8(0), KeyToShardNumber(0, DefaultStripeSize, []byte("x"), 0))
}

func TestGenerationNext(t *testing.T) {
	g := InvalidGeneration
	require.False(t, g.Valid())
	g = g.Next()
	require.True(t, g.Valid())
	require.Equal(t, Generation(1), g)
}

func TestLocationConfigEqual(t *testing.T) {
	shard := DefaultShardIdentity()
	a := AttachedLocationConfig(5, shard, nil)
	b := AttachedLocationConfig(5, shard, nil)
	c := AttachedLocationConfig(6, shard, nil)

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestNodeEligibleRequiresActiveAvailabilityAndScheduling(t *testing.T) {
	active := Node{Availability: NodeActive, Scheduling: SchedulingActive}
	require.True(t, active.Eligible())

	offline := Node{Availability: NodeOffline, Scheduling: SchedulingActive}
	require.False(t, offline.Eligible())

	draining := Node{Availability: NodeActive, Scheduling: SchedulingDraining}
	require.False(t, draining.Eligible())
}

func TestGenerationCounterBumpAndSet(t *testing.T) {
	c := NewGenerationCounter()
	id := UnshardedTenantShardId("tenant-a")

	g1 := c.Bump(id)
	g2 := c.Bump(id)
	require.Greater(t, g2, g1)

	c.Set(id, 1)
	require.Equal(t, g2, c.Current(id), "Set must never move generation backward")

	c.Set(id, g2+10)
	require.Equal(t, g2+10, c.Current(id))
}
