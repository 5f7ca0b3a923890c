package storage

import (
	"github.com/attachctl/attachctl/pkg/shardstate"
	"github.com/attachctl/attachctl/pkg/types"
)

// Store persists the control plane's two durable collections: the node
// registry and tenant shard state. Persistence is optional, since an
// in-memory-only deployment is also valid, so nothing else in the control
// plane depends directly on Store; only cmd/attachd wires it in.
type Store interface {
	SaveNode(node types.Node) error
	ListNodes() ([]types.Node, error)
	DeleteNode(id types.NodeId) error

	SaveShard(snap shardstate.Snapshot) error
	ListShards() ([]shardstate.Snapshot, error)
	DeleteShard(id types.TenantShardId) error

	Close() error
}
