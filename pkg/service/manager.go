package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/attachctl/attachctl/pkg/computehook"
	"github.com/attachctl/attachctl/pkg/config"
	"github.com/attachctl/attachctl/pkg/log"
	"github.com/attachctl/attachctl/pkg/metrics"
	"github.com/attachctl/attachctl/pkg/pageserverclient"
	"github.com/attachctl/attachctl/pkg/reconciler"
	"github.com/attachctl/attachctl/pkg/registry"
	"github.com/attachctl/attachctl/pkg/scheduler"
	"github.com/attachctl/attachctl/pkg/shardstate"
	"github.com/attachctl/attachctl/pkg/types"
	"github.com/rs/zerolog"
)

// ErrNotFound is wrapped by any operation referencing an unknown tenant,
// shard or node.
var ErrNotFound = fmt.Errorf("not found")

// ErrMismatch is returned when a request's path and body identifiers
// disagree.
var ErrMismatch = fmt.Errorf("path and body identifiers do not match")

// Service is the facade every external RPC is dispatched through. It owns
// the node registry, shard state store, generation counter, scheduler
// invocation and reconciler lifecycle; pkg/api is a thin HTTP/JSON
// translation layer on top of it.
type Service struct {
	cfg        config.Config
	registry   *registry.Registry
	shards     *shardstate.Store
	generation *types.GenerationCounter
	hook       *computehook.Hook
	pageserver PageServerClient
	logger     zerolog.Logger
}

// PageServerClient is the subset of pageserverclient.Client the facade needs
// directly (for timeline forwarding); reconcile tasks take the same
// interface from pkg/reconciler.
type PageServerClient interface {
	reconciler.PageServerClient
	CreateTimeline(ctx context.Context, baseURL string, shard types.TenantShardId, req pageserverclient.CreateTimelineRequest) error
}

// New builds a Service over the given collaborators.
func New(cfg config.Config, reg *registry.Registry, shards *shardstate.Store, gen *types.GenerationCounter, hook *computehook.Hook, ps PageServerClient) *Service {
	return &Service{
		cfg:        cfg,
		registry:   reg,
		shards:     shards,
		generation: gen,
		hook:       hook,
		pageserver: ps,
		logger:     log.WithComponent("service"),
	}
}

// ShardLocation is what tenant_locate and tenant_create report per shard.
type ShardLocation struct {
	TenantShardID types.TenantShardId
	Node          types.NodeId
	ListenAddrs   []string
	Shard         types.ShardIdentity
}

// TenantCreateRequest requests a tenant be sharded and scheduled.
type TenantCreateRequest struct {
	TenantID   types.TenantId
	ShardCount uint8
	Policy     *types.PlacementPolicy
	TenantConf types.TenantConfig
}

// TenantCreate allocates shards per req.ShardCount (when req.Policy is nil,
// the configured default placement, which is Double(1) unless overridden),
// schedules each, and spawns its reconciler.
// Idempotent on tenant_id: if the tenant's shards already exist, their
// current locations are returned unchanged.
func (s *Service) TenantCreate(ctx context.Context, req TenantCreateRequest) ([]ShardLocation, error) {
	if existing := s.shards.ForTenant(req.TenantID); len(existing) > 0 {
		return s.locateShards(existing)
	}

	policy, err := s.cfg.DefaultPlacement.ToPolicy()
	if err != nil {
		policy = types.DoublePolicy(1)
	}
	if req.Policy != nil {
		policy = *req.Policy
	}
	count := req.ShardCount
	if count == 0 {
		count = 1
	}

	ids := make([]types.TenantShardId, count)
	for i := range ids {
		ids[i] = types.TenantShardId{TenantId: req.TenantID, ShardNumber: uint8(i), ShardCount: count}
	}

	for _, id := range ids {
		shard := types.DefaultShardIdentity()
		shard.Number, shard.Count = id.ShardNumber, id.ShardCount
		state := shardstate.New(id, shard, policy)
		state.TenantConf = req.TenantConf
		s.shards.Put(state)
		s.scheduleAndReconcile(state)
	}

	return s.locateShards(ids)
}

// TenantTimelineCreate forwards a timeline-create to the currently attached
// page server of every shard. It succeeds iff every shard succeeds; a
// partial failure is reported per-shard with no rollback of the shards that
// already succeeded.
func (s *Service) TenantTimelineCreate(ctx context.Context, tenantID types.TenantId, req pageserverclient.CreateTimelineRequest) error {
	ids := s.shards.ForTenant(tenantID)
	if len(ids) == 0 {
		return fmt.Errorf("%w: tenant %s", ErrNotFound, tenantID)
	}

	for _, id := range ids {
		state, ok := s.shards.Get(id)
		if !ok {
			continue
		}
		state.Lock()
		attached := state.Intent.Attached
		state.Unlock()
		if attached == nil {
			return fmt.Errorf("shard %s has no attached node", id)
		}

		node, ok := s.registry.Get(*attached)
		if !ok {
			return fmt.Errorf("%w: node %s for shard %s", ErrNotFound, *attached, id)
		}
		if err := s.pageserver.CreateTimeline(ctx, node.BaseURL(), id, req); err != nil {
			return fmt.Errorf("shard %s: %w", id, err)
		}
	}
	return nil
}

// TenantLocate returns the current placement of every shard of a tenant.
func (s *Service) TenantLocate(tenantID types.TenantId) ([]ShardLocation, error) {
	ids := s.shards.ForTenant(tenantID)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, tenantID)
	}
	return s.locateShards(ids)
}

func (s *Service) locateShards(ids []types.TenantShardId) ([]ShardLocation, error) {
	out := make([]ShardLocation, 0, len(ids))
	for _, id := range ids {
		state, ok := s.shards.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: shard %s", ErrNotFound, id)
		}
		state.Lock()
		attached := state.Intent.Attached
		shard := state.Shard
		state.Unlock()

		loc := ShardLocation{TenantShardID: id, Shard: shard}
		if attached != nil {
			loc.Node = *attached
			if n, ok := s.registry.Get(*attached); ok {
				loc.ListenAddrs = n.ListenAddrs
			}
		}
		out = append(out, loc)
	}
	return out, nil
}

// TenantShardMigrate sets a shard's intended attached node, demoting the
// previous attached node to secondary when the placement policy allows one,
// otherwise dropping it from intent entirely.
func (s *Service) TenantShardMigrate(ctx context.Context, id types.TenantShardId, node types.NodeId) error {
	state, ok := s.shards.Get(id)
	if !ok {
		return fmt.Errorf("%w: shard %s", ErrNotFound, id)
	}
	if _, ok := s.registry.Get(node); !ok {
		return fmt.Errorf("%w: node %s", ErrNotFound, node)
	}

	state.Lock()
	defer state.Unlock()

	previous := state.Intent.Attached
	state.Intent.Attached = &node
	if previous != nil && *previous != node {
		if state.Policy.WantedSecondaries() > 0 {
			state.Intent.Secondary[*previous] = struct{}{}
		} else {
			delete(state.Intent.Secondary, *previous)
		}
	}
	delete(state.Intent.Secondary, node)

	s.spawnReconcileLocked(state)
	return nil
}

// NodeRegister idempotently adds node to the registry.
func (s *Service) NodeRegister(id types.NodeId, listenAddrs []string) types.Node {
	node := s.registry.Register(id, listenAddrs)
	s.refreshNodeMetrics()
	return node
}

// NodeConfigureRequest updates a node's availability and/or scheduling
// policy; nil fields leave the current value unchanged.
type NodeConfigureRequest struct {
	Availability *types.NodeAvailability
	Scheduling   *types.NodeSchedulingPolicy
}

// NodeConfigure applies req to node and re-schedules every shard that
// referenced it, returning their ids.
func (s *Service) NodeConfigure(ctx context.Context, id types.NodeId, req NodeConfigureRequest) ([]types.TenantShardId, error) {
	affected, ok := s.registry.Configure(id, req.Availability, req.Scheduling, s.shards)
	if !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	s.refreshNodeMetrics()

	sort.Slice(affected, func(i, j int) bool { return affected[i].Less(affected[j]) })
	for _, shardID := range affected {
		state, ok := s.shards.Get(shardID)
		if !ok {
			continue
		}
		s.rescheduleAndReconcile(state)
	}
	return affected, nil
}

// AttachHook bumps the generation for a shard and sets its attached intent.
// Returns the new generation.
func (s *Service) AttachHook(ctx context.Context, id types.TenantShardId, node types.NodeId) (types.Generation, error) {
	state, ok := s.shards.Get(id)
	if !ok {
		return 0, fmt.Errorf("%w: shard %s", ErrNotFound, id)
	}

	state.Lock()
	defer state.Unlock()

	gen := s.generation.Bump(id)
	state.Generation = gen
	state.Intent.Attached = &node
	s.spawnReconcileLocked(state)
	return gen, nil
}

// ReAttachEntry is one shard a restarting node presents.
type ReAttachEntry struct {
	TenantShardID types.TenantShardId
	Generation    types.Generation
	Detach        bool
}

// ReAttach answers a restarted node's question "what do I hold, and is it
// still current": for each shard it presents, the controller's current
// generation if node is still the attached node, otherwise Detach=true.
func (s *Service) ReAttach(node types.NodeId, shardIDs []types.TenantShardId) []ReAttachEntry {
	out := make([]ReAttachEntry, 0, len(shardIDs))
	for _, id := range shardIDs {
		state, ok := s.shards.Get(id)
		if !ok {
			out = append(out, ReAttachEntry{TenantShardID: id, Detach: true})
			continue
		}
		state.Lock()
		attached := state.Intent.Attached
		gen := state.Generation
		state.Unlock()

		if attached == nil || *attached != node {
			out = append(out, ReAttachEntry{TenantShardID: id, Detach: true})
			continue
		}
		out = append(out, ReAttachEntry{TenantShardID: id, Generation: gen})
	}
	return out
}

// ValidateEntry is one (shard, generation) tuple a page server wishes to
// delete objects under.
type ValidateEntry struct {
	TenantShardID types.TenantShardId
	Generation    types.Generation
}

// Validate reports, for each entry, whether its generation still matches
// the current one for that shard — a false response forbids the deletion.
func (s *Service) Validate(entries []ValidateEntry) map[types.TenantShardId]bool {
	out := make(map[types.TenantShardId]bool, len(entries))
	for _, e := range entries {
		out[e.TenantShardID] = s.generation.Current(e.TenantShardID) == e.Generation
	}
	return out
}

// InspectResult is the debug view of one shard's intent and observed state.
type InspectResult struct {
	Intent   shardstate.Intent
	Observed shardstate.ObservedState
}

// Inspect returns the current intent and observed state for a shard.
func (s *Service) Inspect(id types.TenantShardId) (InspectResult, error) {
	state, ok := s.shards.Get(id)
	if !ok {
		return InspectResult{}, fmt.Errorf("%w: shard %s", ErrNotFound, id)
	}
	state.Lock()
	defer state.Unlock()
	return InspectResult{Intent: state.Intent.Clone(), Observed: state.Observed.Clone()}, nil
}

// scheduleAndReconcile runs the scheduler for a shard, balancing against the
// attached/secondary load of every other shard, and spawns a reconciler for
// the resulting intent. Other shards' loads are gathered before this shard's
// lock is taken, so no two shard locks are ever held at once.
func (s *Service) scheduleAndReconcile(state *shardstate.State) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	snap := s.registry.Snapshot()
	loads := s.currentLoads(snap, state.TenantShardID)

	state.Lock()
	result := scheduler.Schedule(snap, state.Policy, state.Intent, loads)
	state.Intent = result.Intent
	if result.SecondaryDeficit > 0 {
		metrics.SchedulingDeficitTotal.Add(float64(result.SecondaryDeficit))
	}
	s.spawnReconcileLocked(state)
	state.Unlock()
}

// rescheduleAndReconcile re-runs the scheduler against a shard whose
// placement may now be invalid (a referenced node went offline or had its
// scheduling policy changed).
func (s *Service) rescheduleAndReconcile(state *shardstate.State) {
	s.scheduleAndReconcile(state)
}

// currentLoads sums, for every eligible node, how many other shards have it
// attached or as a secondary, excluding the shard currently being scheduled.
func (s *Service) currentLoads(snap registry.Snapshot, excluding types.TenantShardId) map[types.NodeId]scheduler.Loads {
	loads := make(map[types.NodeId]scheduler.Loads)
	for _, id := range s.shards.All() {
		if id == excluding {
			continue
		}
		state, ok := s.shards.Get(id)
		if !ok {
			continue
		}
		state.Lock()
		attached := state.Intent.Attached
		secondaries := state.Intent.Secondary
		state.Unlock()

		if attached != nil {
			l := loads[*attached]
			l.Attached++
			loads[*attached] = l
		}
		for node := range secondaries {
			l := loads[node]
			l.Secondary++
			loads[node] = l
		}
	}
	return loads
}

// spawnReconcileLocked assumes the caller already holds the shard lock and
// has just changed intent. It bumps the sequence, cancels any in-flight
// reconciler, snapshots the shard, and spawns the replacement before
// returning.
func (s *Service) spawnReconcileLocked(state *shardstate.State) {
	state.Sequence++
	state.CancelReconciler()
	seq := state.Sequence
	snap := state.Snapshot()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	state.SetReconciler(&shardstate.Handle{Cancel: cancel, Done: done, Sequence: seq})

	reg := s.registry.Snapshot()
	task := reconciler.New(snap, state, reg, s.generation, s.pageserver, s.hook)

	metrics.ShardsReconciling.Inc()
	go func() {
		defer close(done)
		defer metrics.ShardsReconciling.Dec()
		if err := task.Run(ctx); err != nil {
			s.logger.Warn().Err(err).Str("tenant_shard_id", snap.TenantShardID.String()).Msg("reconcile did not converge")
		}
	}()
}

func (s *Service) refreshNodeMetrics() {
	counts := make(map[[2]string]int)
	for _, n := range s.registry.Snapshot().All() {
		counts[[2]string{string(n.Availability), string(n.Scheduling)}]++
	}
	for key, count := range counts {
		metrics.NodesTotal.WithLabelValues(key[0], key[1]).Set(float64(count))
	}
}
