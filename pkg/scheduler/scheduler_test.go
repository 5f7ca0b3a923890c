package scheduler

import (
	"testing"

	"github.com/attachctl/attachctl/pkg/registry"
	"github.com/attachctl/attachctl/pkg/shardstate"
	"github.com/attachctl/attachctl/pkg/types"
	"github.com/stretchr/testify/require"
)

func snapshotWith(nodes ...types.Node) registry.Snapshot {
	r := registry.New()
	for _, n := range nodes {
		r.Register(n.Id, n.ListenAddrs)
		if n.Availability != types.NodeActive || n.Scheduling != types.SchedulingActive {
			avail, sched := n.Availability, n.Scheduling
			r.Configure(n.Id, &avail, &sched, nil)
		}
	}
	return r.Snapshot()
}

func activeNode(id types.NodeId) types.Node {
	return types.Node{Id: id, Availability: types.NodeActive, Scheduling: types.SchedulingActive}
}

func TestScheduleSingleFirstAttach(t *testing.T) {
	snap := snapshotWith(activeNode("n1"))
	result := Schedule(snap, types.SinglePolicy(), shardstate.NewIntent(), nil)

	require.NotNil(t, result.Intent.Attached)
	require.Equal(t, types.NodeId("n1"), *result.Intent.Attached)
	require.Empty(t, result.Intent.Secondary)
	require.Zero(t, result.SecondaryDeficit)
}

func TestScheduleKeepsEligibleAttached(t *testing.T) {
	snap := snapshotWith(activeNode("n1"), activeNode("n2"))
	current := shardstate.NewIntent()
	n2 := types.NodeId("n2")
	current.Attached = &n2

	result := Schedule(snap, types.SinglePolicy(), current, nil)
	require.Equal(t, types.NodeId("n2"), *result.Intent.Attached)
}

func TestScheduleReplacesIneligibleAttached(t *testing.T) {
	offline := types.Node{Id: "n1", Availability: types.NodeOffline, Scheduling: types.SchedulingActive}
	snap := snapshotWith(offline, activeNode("n2"))

	current := shardstate.NewIntent()
	n1 := types.NodeId("n1")
	current.Attached = &n1

	result := Schedule(snap, types.SinglePolicy(), current, nil)
	require.Equal(t, types.NodeId("n2"), *result.Intent.Attached)
}

func TestScheduleDoublePlacesSecondaries(t *testing.T) {
	snap := snapshotWith(activeNode("n1"), activeNode("n2"), activeNode("n3"))
	result := Schedule(snap, types.DoublePolicy(2), shardstate.NewIntent(), nil)

	require.NotNil(t, result.Intent.Attached)
	require.Len(t, result.Intent.Secondary, 2)
	require.False(t, result.Intent.HasSecondary(*result.Intent.Attached))
	require.Zero(t, result.SecondaryDeficit)
}

func TestScheduleRecordsSecondaryDeficit(t *testing.T) {
	snap := snapshotWith(activeNode("n1"))
	result := Schedule(snap, types.DoublePolicy(2), shardstate.NewIntent(), nil)

	require.Equal(t, 2, result.SecondaryDeficit)
	require.Empty(t, result.Intent.Secondary)
}

func TestScheduleBalancesByLoad(t *testing.T) {
	snap := snapshotWith(activeNode("n1"), activeNode("n2"))
	loads := map[types.NodeId]Loads{"n1": {Attached: 3}}

	result := Schedule(snap, types.SinglePolicy(), shardstate.NewIntent(), loads)
	require.Equal(t, types.NodeId("n2"), *result.Intent.Attached)
}

func TestScheduleIsPure(t *testing.T) {
	snap := snapshotWith(activeNode("n1"), activeNode("n2"), activeNode("n3"))
	policy := types.DoublePolicy(1)
	intent := shardstate.NewIntent()

	a := Schedule(snap, policy, intent, nil)
	b := Schedule(snap, policy, intent, nil)

	require.Equal(t, a.Intent.Attached, b.Intent.Attached)
	require.Equal(t, a.Intent.Secondary, b.Intent.Secondary)
	require.Equal(t, a.SecondaryDeficit, b.SecondaryDeficit)
}

func TestScheduleNoEligibleNodes(t *testing.T) {
	snap := snapshotWith()
	result := Schedule(snap, types.SinglePolicy(), shardstate.NewIntent(), nil)
	require.Nil(t, result.Intent.Attached)
}
