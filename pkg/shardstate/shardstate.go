// Package shardstate holds TenantShardState, the central per-shard record:
// intent, observed state, generation, sequence and the handle of whatever
// reconciler is currently in flight for the shard.
package shardstate

import (
	"sync"

	"github.com/attachctl/attachctl/pkg/types"
)

// Intent is the controller's desired placement for a shard.
type Intent struct {
	Attached  *types.NodeId
	Secondary map[types.NodeId]struct{}
}

// NewIntent returns an empty intent.
func NewIntent() Intent {
	return Intent{Secondary: make(map[types.NodeId]struct{})}
}

// Clone deep-copies the intent so a reconciler snapshot is immune to later
// mutation of the live state.
func (i Intent) Clone() Intent {
	out := Intent{Secondary: make(map[types.NodeId]struct{}, len(i.Secondary))}
	if i.Attached != nil {
		n := *i.Attached
		out.Attached = &n
	}
	for n := range i.Secondary {
		out.Secondary[n] = struct{}{}
	}
	return out
}

// HasSecondary reports whether node is a secondary in this intent.
func (i Intent) HasSecondary(node types.NodeId) bool {
	_, ok := i.Secondary[node]
	return ok
}

// References reports whether node appears anywhere in this intent.
func (i Intent) References(node types.NodeId) bool {
	if i.Attached != nil && *i.Attached == node {
		return true
	}
	return i.HasSecondary(node)
}

// ObservedLocation is the tri-state the controller holds for one node:
// Known == false means "uncertain, possibly in flight" — deliberately not
// modeled as a nilable pointer so the uncertainty window can never be
// silently mistaken for "detached".
type ObservedLocation struct {
	Known  bool
	Config types.LocationConfig
}

// Unknown is the zero-value uncertain location.
func Unknown() ObservedLocation {
	return ObservedLocation{}
}

// KnownLocation wraps a confirmed config.
func KnownLocation(cfg types.LocationConfig) ObservedLocation {
	return ObservedLocation{Known: true, Config: cfg}
}

// ObservedState is the controller's best knowledge of what each node
// currently holds for a shard.
type ObservedState map[types.NodeId]ObservedLocation

// Clone deep-copies the observed map.
func (o ObservedState) Clone() ObservedState {
	out := make(ObservedState, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Handle is the cancellation/completion handle for an in-flight reconciler.
// Owning code cancels the previous handle before spawning a replacement.
type Handle struct {
	Cancel func()
	Done   <-chan struct{}
	// Sequence is the watermark this reconcile run was spawned against.
	Sequence uint64
}

// State is the central per-shard record of intent and observed location.
type State struct {
	mu sync.Mutex

	TenantShardID types.TenantShardId
	Shard         types.ShardIdentity
	TenantConf    types.TenantConfig
	Policy        types.PlacementPolicy

	Generation types.Generation
	Intent     Intent
	Observed   ObservedState
	Sequence   uint64

	reconciler *Handle
}

// New creates shard state with an empty intent and observed map.
func New(id types.TenantShardId, shard types.ShardIdentity, policy types.PlacementPolicy) *State {
	return &State{
		TenantShardID: id,
		Shard:         shard,
		Policy:        policy,
		Intent:        NewIntent(),
		Observed:      make(ObservedState),
	}
}

// Lock acquires the shard lock. Callers must Unlock.
func (s *State) Lock()   { s.mu.Lock() }
func (s *State) Unlock() { s.mu.Unlock() }

// Snapshot is the immutable view handed to a reconcile task: every field a
// reconciler needs to run independently of further mutation of State.
type Snapshot struct {
	TenantShardID types.TenantShardId
	Shard         types.ShardIdentity
	TenantConf    types.TenantConfig
	Policy        types.PlacementPolicy
	Generation    types.Generation
	Intent        Intent
	Observed      ObservedState
	Sequence      uint64
}

// SetReconciler records the handle of the reconciler now in flight for this
// shard. Callers must hold the lock.
func (s *State) SetReconciler(h *Handle) {
	s.reconciler = h
}

// CancelReconciler cancels and clears any in-flight reconciler. Callers must
// hold the lock.
func (s *State) CancelReconciler() {
	if s.reconciler != nil {
		s.reconciler.Cancel()
		s.reconciler = nil
	}
}

// Snapshot takes a point-in-time copy suitable for handing to a reconcile
// task. Callers must hold the lock; bumping Sequence is the caller's
// responsibility before calling Snapshot.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		TenantShardID: s.TenantShardID,
		Shard:         s.Shard,
		TenantConf:    s.TenantConf,
		Policy:        s.Policy,
		Generation:    s.Generation,
		Intent:        s.Intent.Clone(),
		Observed:      s.Observed.Clone(),
		Sequence:      s.Sequence,
	}
}

// ApplyDelta merges a reconciler's observed-state patch into live state, but
// only if it was produced against the current sequence — patches from a
// superseded reconcile run are discarded because a newer reconciler already
// supersedes them. Callers must hold the lock.
func (s *State) ApplyDelta(sequence uint64, delta ObservedState) bool {
	if sequence != s.Sequence {
		return false
	}
	for node, loc := range delta {
		s.Observed[node] = loc
	}
	return true
}

// Store is the in-memory map of all tenant shard state, owned by the service
// facade.
type Store struct {
	mu     sync.RWMutex
	shards map[types.TenantShardId]*State
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{shards: make(map[types.TenantShardId]*State)}
}

// Get returns the shard state for id, if present.
func (st *Store) Get(id types.TenantShardId) (*State, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.shards[id]
	return s, ok
}

// Put stores shard state, replacing any existing entry for its id.
func (st *Store) Put(s *State) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.shards[s.TenantShardID] = s
}

// Delete removes shard state for id.
func (st *Store) Delete(id types.TenantShardId) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.shards, id)
}

// ShardsReferencing returns every shard whose intent currently references
// node, implementing registry.AffectedShards.
func (st *Store) ShardsReferencing(node types.NodeId) []types.TenantShardId {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []types.TenantShardId
	for id, s := range st.shards {
		s.Lock()
		refs := s.Intent.References(node)
		s.Unlock()
		if refs {
			out = append(out, id)
		}
	}
	return out
}

// ForTenant returns all shard ids belonging to tenant, in ShardNumber order.
func (st *Store) ForTenant(tid types.TenantId) []types.TenantShardId {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []types.TenantShardId
	for id := range st.shards {
		if id.TenantId == tid {
			out = append(out, id)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ShardNumber < out[j-1].ShardNumber; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// All returns every tracked shard id.
func (st *Store) All() []types.TenantShardId {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]types.TenantShardId, 0, len(st.shards))
	for id := range st.shards {
		out = append(out, id)
	}
	return out
}
