// Package scheduler implements the control plane's placement decision:
// given a registry snapshot, a placement policy and the current intent for
// a shard, choose the attached node and secondary nodes. Schedule is a pure
// function — no I/O, no locking beyond the caller's own, same inputs always
// give the same output.
package scheduler

import (
	"sort"

	"github.com/attachctl/attachctl/pkg/registry"
	"github.com/attachctl/attachctl/pkg/shardstate"
	"github.com/attachctl/attachctl/pkg/types"
)

// Result is the outcome of one scheduling decision.
type Result struct {
	Intent shardstate.Intent
	// SecondaryDeficit is how many fewer secondaries were placed than the
	// policy wanted, because too few eligible nodes existed. The reconciler
	// must not invent ghost locations to make up the difference.
	SecondaryDeficit int
}

// load tracks how many shards a node is currently carrying, for the
// lowest-score tie-break.
type load struct {
	attached  int
	secondary int
}

// Schedule computes a new intent for one shard from a registry snapshot, a
// placement policy and the shard's current intent (used to keep a still-
// eligible attached node in place rather than churning it unnecessarily).
// loads is the attached/secondary count of every node across all shards
// except the one being scheduled, used to balance placement.
func Schedule(snapshot registry.Snapshot, policy types.PlacementPolicy, current shardstate.Intent, loads map[types.NodeId]Loads) Result {
	eligible := snapshot.Eligible()
	scores := make(map[types.NodeId]load, len(eligible))
	for _, n := range eligible {
		l := load{}
		if existing, ok := loads[n.Id]; ok {
			l.attached = existing.Attached
			l.secondary = existing.Secondary
		}
		scores[n.Id] = l
	}

	result := shardstate.NewIntent()
	result.Attached = pickAttached(current, eligible, scores)

	wanted := policy.WantedSecondaries()
	if wanted == 0 {
		return Result{Intent: result}
	}

	candidates := sortedByScore(eligible, scores, result.Attached)
	placed := 0
	for _, n := range candidates {
		if placed >= wanted {
			break
		}
		result.Secondary[n.Id] = struct{}{}
		placed++
	}

	return Result{Intent: result, SecondaryDeficit: wanted - placed}
}

// Loads is the pre-computed attached/secondary count for a node, summed
// across every shard other than the one currently being scheduled.
type Loads struct {
	Attached  int
	Secondary int
}

// pickAttached keeps the current attached node if it is still eligible,
// otherwise chooses the lowest-score eligible node (attached-count
// ascending, then secondary-count, then NodeId).
func pickAttached(current shardstate.Intent, eligible []types.Node, scores map[types.NodeId]load) *types.NodeId {
	if current.Attached != nil {
		for _, n := range eligible {
			if n.Id == *current.Attached {
				id := n.Id
				return &id
			}
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	ranked := sortedByScore(eligible, scores, nil)
	id := ranked[0].Id
	return &id
}

// sortedByScore orders eligible nodes by attached-count ascending, tie-break
// by secondary-count ascending, tie-break by NodeId for determinism.
func sortedByScore(eligible []types.Node, scores map[types.NodeId]load, skip *types.NodeId) []types.Node {
	out := make([]types.Node, len(eligible))
	copy(out, eligible)

	sort.Slice(out, func(i, j int) bool {
		a, b := scores[out[i].Id], scores[out[j].Id]
		if a.attached != b.attached {
			return a.attached < b.attached
		}
		if a.secondary != b.secondary {
			return a.secondary < b.secondary
		}
		return out[i].Id < out[j].Id
	})

	if skip == nil {
		return out
	}
	filtered := out[:0:0]
	for _, n := range out {
		if n.Id != *skip {
			filtered = append(filtered, n)
		}
	}
	return filtered
}
