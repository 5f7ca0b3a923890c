// Package registry tracks the set of page servers known to the control
// plane: their listen addresses, availability and scheduling policy. It
// performs no scheduling of its own; Configure only enumerates the tenant
// shards a node-availability change affects and hands that set back to its
// caller (the service facade) to re-evaluate.
package registry

import (
	"sort"
	"sync"

	"github.com/attachctl/attachctl/pkg/types"
)

// AffectedShards is supplied by the caller holding intent data; Configure
// uses it to decide which shards reference the node being reconfigured.
type AffectedShards interface {
	ShardsReferencing(node types.NodeId) []types.TenantShardId
}

// Registry is the in-memory map of known page servers, guarded by a
// read-write mutex sized for a read-dominated workload (most callers just
// need a snapshot to hand to a reconciler or the scheduler).
type Registry struct {
	mu    sync.RWMutex
	nodes map[types.NodeId]types.Node
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{nodes: make(map[types.NodeId]types.Node)}
}

// Register adds a node or, if it already exists, updates its listen
// addresses only — Register never touches Availability or Scheduling, so a
// node re-announcing itself cannot undo an operator's Configure call.
func (r *Registry) Register(id types.NodeId, listenAddrs []string) types.Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.nodes[id]; ok {
		existing.ListenAddrs = listenAddrs
		r.nodes[id] = existing
		return existing
	}

	node := types.Node{
		Id:           id,
		ListenAddrs:  listenAddrs,
		Availability: types.NodeActive,
		Scheduling:   types.SchedulingActive,
	}
	r.nodes[id] = node
	return node
}

// Get returns the node with id, if known.
func (r *Registry) Get(id types.NodeId) (types.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	return n, ok
}

// Configure updates a node's availability and/or scheduling policy (nil
// leaves the field unchanged) and, if affected is non-nil, returns the set
// of tenant shards that referenced this node in their intent at the moment
// of the change, for the caller to re-schedule.
func (r *Registry) Configure(id types.NodeId, availability *types.NodeAvailability, scheduling *types.NodeSchedulingPolicy, affected AffectedShards) ([]types.TenantShardId, bool) {
	r.mu.Lock()
	node, ok := r.nodes[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	if availability != nil {
		node.Availability = *availability
	}
	if scheduling != nil {
		node.Scheduling = *scheduling
	}
	r.nodes[id] = node
	r.mu.Unlock()

	if affected == nil {
		return nil, true
	}
	return affected.ShardsReferencing(id), true
}

// Snapshot returns an immutable view of the registry suitable for handing to
// a reconcile task: the task must never re-dereference the live registry,
// only this frozen copy, so a node's availability changing mid-reconcile is
// observed as cancellation, not as a live read.
type Snapshot struct {
	nodes map[types.NodeId]types.Node
}

// Snapshot copies the current node set.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nodes := make(map[types.NodeId]types.Node, len(r.nodes))
	for k, v := range r.nodes {
		nodes[k] = v
	}
	return Snapshot{nodes: nodes}
}

// Get returns the node with id as it was at snapshot time.
func (s Snapshot) Get(id types.NodeId) (types.Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Eligible returns, in NodeId order, every node eligible for new placements:
// Active availability and Active scheduling policy.
func (s Snapshot) Eligible() []types.Node {
	out := make([]types.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if n.Eligible() {
			out = append(out, n)
		}
	}
	sortNodesById(out)
	return out
}

// All returns every node in the snapshot, in NodeId order.
func (s Snapshot) All() []types.Node {
	out := make([]types.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sortNodesById(out)
	return out
}

func sortNodesById(nodes []types.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Id < nodes[j].Id })
}
