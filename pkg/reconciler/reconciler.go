package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attachctl/attachctl/pkg/computehook"
	"github.com/attachctl/attachctl/pkg/log"
	"github.com/attachctl/attachctl/pkg/metrics"
	"github.com/attachctl/attachctl/pkg/pageserverclient"
	"github.com/attachctl/attachctl/pkg/registry"
	"github.com/attachctl/attachctl/pkg/shardstate"
	"github.com/attachctl/attachctl/pkg/types"
)

// ErrorKind classifies a reconcile failure for callers deciding whether to
// surface, retry, or back off.
type ErrorKind string

const (
	BadRequest   ErrorKind = "bad_request"
	Conflict     ErrorKind = "conflict"
	Internal     ErrorKind = "internal"
	ShuttingDown ErrorKind = "shutting_down"
)

// ReconcileError wraps a reconcile failure with its classification.
type ReconcileError struct {
	Kind ErrorKind
	Err  error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error) *ReconcileError {
	return &ReconcileError{Kind: kind, Err: err}
}

var errStaleSequence = errors.New("shard sequence advanced past this reconcile run")

// PageServerClient is the subset of pageserverclient.Client a reconcile task
// needs; an interface so tests can substitute a fake.
type PageServerClient interface {
	LocationConfig(ctx context.Context, baseURL string, shard types.TenantShardId, config types.LocationConfig) error
	Timelines(ctx context.Context, baseURL string, shard types.TenantShardId) ([]pageserverclient.TimelineLSN, error)
}

// ComputeNotifier is the subset of computehook.Hook a reconcile task needs.
type ComputeNotifier interface {
	Notify(n computehook.Notification)
}

// catchUpBackoff is the fixed retry delay for transient RPC failures while
// polling a live-migration destination for LSN catch-up.
const catchUpBackoff = 500 * time.Millisecond

// Task is one reconcile run for a single tenant shard. Everything except
// the live *shardstate.State (used only to publish observed-state deltas
// under the sequence watermark) is a frozen snapshot for the task's
// lifetime: a reconciler never re-reads the registry or re-derives intent
// mid-run.
type Task struct {
	TenantShardID types.TenantShardId
	Shard         types.ShardIdentity
	TenantConf    types.TenantConfig
	Policy        types.PlacementPolicy
	Generation    types.Generation
	Intent        shardstate.Intent
	Observed      shardstate.ObservedState
	Sequence      uint64

	Registry   registry.Snapshot
	State      *shardstate.State
	Generator  *types.GenerationCounter
	PageServer PageServerClient
	Hook       ComputeNotifier
}

// New builds a reconcile task from a shard snapshot.
func New(snap shardstate.Snapshot, state *shardstate.State, reg registry.Snapshot, gen *types.GenerationCounter, ps PageServerClient, hook ComputeNotifier) *Task {
	return &Task{
		TenantShardID: snap.TenantShardID,
		Shard:         snap.Shard,
		TenantConf:    snap.TenantConf,
		Policy:        snap.Policy,
		Generation:    snap.Generation,
		Intent:        snap.Intent,
		Observed:      snap.Observed,
		Sequence:      snap.Sequence,
		Registry:      reg,
		State:         state,
		Generator:     gen,
		PageServer:    ps,
		Hook:          hook,
	}
}

// Run executes the reconcile: the live-migration special case if it
// applies, otherwise general-case convergence of observed toward intent. A
// live-migration error other than ShuttingDown aborts this cycle rather than
// falling back to runGeneral in the same call, so the next scheduled cycle
// re-evaluates from fresh observed state instead of racing a half-completed
// handoff.
func (t *Task) Run(ctx context.Context) error {
	timer := metrics.NewTimer()
	outcome := "converged"
	defer func() {
		timer.ObserveDurationVec(metrics.ReconciliationDuration, outcome)
		metrics.ReconciliationCyclesTotal.WithLabelValues(outcome).Inc()
	}()

	logger := log.WithShard(t.TenantShardID.String())

	if err := ctx.Err(); err != nil {
		outcome = "cancelled"
		return newError(ShuttingDown, err)
	}

	if src, ok := t.liveMigrationSource(); ok {
		if err := t.runLiveMigration(ctx, src); err != nil {
			var rerr *ReconcileError
			if errors.As(err, &rerr) && rerr.Kind == ShuttingDown {
				outcome = "cancelled"
				return err
			}
			logger.Warn().Err(err).Msg("live migration failed, deferring to next reconcile cycle")
			outcome = "error"
			return err
		}
		return nil
	}

	if err := t.runGeneral(ctx); err != nil {
		var rerr *ReconcileError
		if errors.As(err, &rerr) && rerr.Kind == ShuttingDown {
			outcome = "cancelled"
		} else {
			outcome = "error"
		}
		return err
	}
	return nil
}

// liveMigrationSource reports whether the live-migration special case
// applies, and if so the origin node currently holding AttachedSingle.
func (t *Task) liveMigrationSource() (types.NodeId, bool) {
	dst := t.Intent.Attached
	if dst == nil {
		return "", false
	}
	dstObserved, ok := t.Observed[*dst]
	if !ok || !dstObserved.Known || dstObserved.Config.Mode != types.LocationSecondary {
		return "", false
	}

	for node, loc := range t.Observed {
		if node == *dst || !loc.Known || loc.Config.Mode != types.LocationAttachedSingle {
			continue
		}
		n, ok := t.Registry.Get(node)
		if !ok || n.Availability == types.NodeOffline {
			continue
		}
		return node, true
	}
	return "", false
}

// apply is the location-config primitive: observed transitions to unknown
// before the PUT is sent, and only becomes known again on 2xx.
func (t *Task) apply(ctx context.Context, node types.NodeId, config types.LocationConfig) error {
	if err := ctx.Err(); err != nil {
		return newError(ShuttingDown, err)
	}
	if !t.publish(node, shardstate.Unknown()) {
		return newError(ShuttingDown, errStaleSequence)
	}

	n, ok := t.Registry.Get(node)
	if !ok {
		return newError(Internal, fmt.Errorf("node %s absent from registry snapshot", node))
	}

	if err := t.PageServer.LocationConfig(ctx, n.BaseURL(), t.TenantShardID, config); err != nil {
		metrics.LocationConfigPutsTotal.WithLabelValues(string(config.Mode), "error").Inc()
		return newError(Conflict, err)
	}
	metrics.LocationConfigPutsTotal.WithLabelValues(string(config.Mode), "ok").Inc()

	if !t.publish(node, shardstate.KnownLocation(config)) {
		return newError(ShuttingDown, errStaleSequence)
	}
	return nil
}

// publish merges one observed-state entry into the live shard state,
// discarding the write if a newer sequence has already superseded this run.
func (t *Task) publish(node types.NodeId, loc shardstate.ObservedLocation) bool {
	t.State.Lock()
	defer t.State.Unlock()
	return t.State.ApplyDelta(t.Sequence, shardstate.ObservedState{node: loc})
}

// runGeneral converges attached and secondary locations directly, without
// the staged handoff a live migration needs.
func (t *Task) runGeneral(ctx context.Context) error {
	if attached := t.Intent.Attached; attached != nil {
		desired := types.AttachedLocationConfig(t.Generation, t.Shard, t.TenantConf)
		if loc, ok := t.Observed[*attached]; !ok || !loc.Known || !loc.Config.Equal(desired) {
			gen := t.Generator.Bump(t.TenantShardID)
			t.Generation = gen
			desired = types.AttachedLocationConfig(gen, t.Shard, t.TenantConf)

			if err := t.apply(ctx, *attached, desired); err != nil {
				return err
			}
			metrics.ShardGenerationTotal.Inc()
			t.Hook.Notify(computehook.Notification{
				TenantShardID: t.TenantShardID,
				Node:          *attached,
				Generation:    gen,
			})
		}
	}

	secondaryDesired := types.SecondaryLocationConfig(t.Shard, t.TenantConf)
	for node := range t.Intent.Secondary {
		if loc, ok := t.Observed[node]; ok && loc.Known && loc.Config.Equal(secondaryDesired) {
			continue
		}
		if err := t.apply(ctx, node, secondaryDesired); err != nil {
			return err
		}
	}

	detachedDesired := types.DetachedLocationConfig(t.Shard, t.TenantConf)
	for node := range t.Observed {
		if t.Intent.References(node) {
			continue
		}
		if err := t.apply(ctx, node, detachedDesired); err != nil {
			return err
		}
	}

	return nil
}

// runLiveMigration moves the attached location from src to an already-warm
// secondary dst without a window where neither node is attached: freeze src
// in AttachedStale, record its LSNs, bump the generation, attach dst in
// AttachedMulti, wait for dst to catch up, notify compute, demote src to a
// warm Secondary, then promote dst to AttachedSingle.
func (t *Task) runLiveMigration(ctx context.Context, src types.NodeId) error {
	dst := *t.Intent.Attached
	logger := log.WithShard(t.TenantShardID.String())
	migrationTimer := metrics.NewTimer()
	migrationOutcome := "failed"
	defer func() {
		migrationTimer.ObserveDuration(metrics.LiveMigrationDuration)
		metrics.LiveMigrationsTotal.WithLabelValues(migrationOutcome).Inc()
	}()

	originGen := t.Generation
	if loc, ok := t.Observed[src]; ok && loc.Known && loc.Config.Generation != nil {
		originGen = *loc.Config.Generation
	}

	freezeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := t.apply(freezeCtx, src, types.AttachedStaleLocationConfig(originGen, t.Shard, t.TenantConf))
	cancel()
	if err != nil {
		return err
	}

	srcNode, ok := t.Registry.Get(src)
	if !ok {
		return newError(Internal, fmt.Errorf("origin node %s absent from registry snapshot", src))
	}
	baseline, err := t.PageServer.Timelines(ctx, srcNode.BaseURL(), t.TenantShardID)
	if err != nil {
		return newError(Conflict, fmt.Errorf("snapshot origin LSNs: %w", err))
	}

	newGen := t.Generator.Bump(t.TenantShardID)
	t.Generation = newGen
	metrics.ShardGenerationTotal.Inc()

	if err := t.apply(ctx, dst, types.AttachedMultiLocationConfig(newGen, t.Shard, t.TenantConf)); err != nil {
		return err
	}

	if err := t.waitForCatchUp(ctx, dst, baseline); err != nil {
		return err
	}

	t.Hook.Notify(computehook.Notification{TenantShardID: t.TenantShardID, Node: dst, Generation: newGen})

	if err := t.apply(ctx, src, types.SecondaryLocationConfig(t.Shard, t.TenantConf)); err != nil {
		logger.Warn().Err(err).Msg("failed to downgrade migration origin, will retry on next reconcile")
		return err
	}

	if err := t.apply(ctx, dst, types.AttachedLocationConfig(newGen, t.Shard, t.TenantConf)); err != nil {
		return err
	}

	migrationOutcome = "success"
	return nil
}

// waitForCatchUp polls dst until every timeline in baseline has caught up.
// There is no hard deadline; it is bounded only by ctx cancellation.
func (t *Task) waitForCatchUp(ctx context.Context, dst types.NodeId, baseline []pageserverclient.TimelineLSN) error {
	n, ok := t.Registry.Get(dst)
	if !ok {
		return newError(Internal, fmt.Errorf("destination node %s absent from registry snapshot", dst))
	}

	for {
		if err := ctx.Err(); err != nil {
			return newError(ShuttingDown, err)
		}

		current, err := t.PageServer.Timelines(ctx, n.BaseURL(), t.TenantShardID)
		if err != nil {
			select {
			case <-ctx.Done():
				return newError(ShuttingDown, ctx.Err())
			case <-time.After(catchUpBackoff):
			}
			continue
		}

		if caughtUp(baseline, current) {
			return nil
		}

		select {
		case <-ctx.Done():
			return newError(ShuttingDown, ctx.Err())
		case <-time.After(catchUpBackoff):
		}
	}
}

func caughtUp(baseline, current []pageserverclient.TimelineLSN) bool {
	lsns := make(map[types.TimelineId]uint64, len(current))
	for _, tl := range current {
		lsns[tl.TimelineID] = tl.LastRecordLSN
	}
	for _, want := range baseline {
		got, ok := lsns[want.TimelineID]
		if !ok || got < want.LastRecordLSN {
			return false
		}
	}
	return true
}
