package storage

import (
	"testing"

	"github.com/attachctl/attachctl/pkg/shardstate"
	"github.com/attachctl/attachctl/pkg/types"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndListNodes(t *testing.T) {
	store := openTestStore(t)
	node := types.Node{Id: "n1", ListenAddrs: []string{"10.0.0.1:6400"}, Availability: types.NodeActive}

	require.NoError(t, store.SaveNode(node))

	nodes, err := store.ListNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, node.Id, nodes[0].Id)
}

func TestDeleteNode(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SaveNode(types.Node{Id: "n1"}))
	require.NoError(t, store.DeleteNode("n1"))

	nodes, err := store.ListNodes()
	require.NoError(t, err)
	require.Empty(t, nodes)
}

func TestSaveAndListShards(t *testing.T) {
	store := openTestStore(t)
	id := types.UnshardedTenantShardId("tenant-a")
	state := shardstate.New(id, types.DefaultShardIdentity(), types.SinglePolicy())
	snap := state.Snapshot()

	require.NoError(t, store.SaveShard(snap))

	shards, err := store.ListShards()
	require.NoError(t, err)
	require.Len(t, shards, 1)
	require.Equal(t, id, shards[0].TenantShardID)
}

func TestDeleteShard(t *testing.T) {
	store := openTestStore(t)
	id := types.UnshardedTenantShardId("tenant-a")
	state := shardstate.New(id, types.DefaultShardIdentity(), types.SinglePolicy())
	require.NoError(t, store.SaveShard(state.Snapshot()))
	require.NoError(t, store.DeleteShard(id))

	shards, err := store.ListShards()
	require.NoError(t, err)
	require.Empty(t, shards)
}
