package plan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergePatchActionsGroupsSameTargetPatches(t *testing.T) {
	refs := []MspPatchRef{
		{PatchID: "patch1", Target: "productA", Order: 0},
		{PatchID: "patch2", Target: "productA", Order: 1},
	}
	actions := MergePatchActions(refs)
	require.Len(t, actions, 1)
	require.Equal(t, ExecMspTarget, actions[0].Kind)
	require.Equal(t, "productA", actions[0].PackageID)
	require.Equal(t, []string{"patch1", "patch2"}, actions[0].PatchIDs)
}

func TestMergePatchActionsOrdersGroupsByEarliestPatch(t *testing.T) {
	refs := []MspPatchRef{
		{PatchID: "patch1", Target: "productB", Order: 1},
		{PatchID: "patch2", Target: "productA", Order: 0},
	}
	actions := MergePatchActions(refs)
	require.Len(t, actions, 2)
	require.Equal(t, "productA", actions[0].PackageID)
	require.Equal(t, "productB", actions[1].PackageID)
}

func TestMergePatchActionsInsertsSyncpointForOutOfOrderGroup(t *testing.T) {
	refs := []MspPatchRef{
		// productA spans order 0-10, so its max order (10) is already
		// "seen" by the time productB is scheduled.
		{PatchID: "patch1", Target: "productA", Order: 0},
		{PatchID: "patch1b", Target: "productA", Order: 10},
		// productB's earliest (and only) patch order (5) falls inside
		// productA's already-scheduled range, so it needs a sync-point.
		{PatchID: "patch2", Target: "productB", Order: 5},
	}
	actions := MergePatchActions(refs)

	require.Len(t, actions, 3)
	require.Equal(t, "productA", actions[0].PackageID)
	require.Equal(t, ExecWaitSyncpoint, actions[1].Kind)
	require.Equal(t, "productB", actions[2].PackageID)
}

func TestMergePatchActionsHandlesNoPatches(t *testing.T) {
	actions := MergePatchActions(nil)
	require.Empty(t, actions)
}

func TestMergePatchActionsPreservesWithinGroupPatchOrder(t *testing.T) {
	refs := []MspPatchRef{
		{PatchID: "patch-later", Target: "productA", Order: 5},
		{PatchID: "patch-earlier", Target: "productA", Order: 1},
	}
	actions := MergePatchActions(refs)
	require.Len(t, actions, 1)
	require.Equal(t, []string{"patch-earlier", "patch-later"}, actions[0].PatchIDs)
}
