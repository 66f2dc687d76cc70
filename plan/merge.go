package plan

import "sort"

// MspPatchRef is one (patch, target) planned action, as produced by
// driver.PatchDriver.PlanTargets across potentially many patch packages.
type MspPatchRef struct {
	PatchID string
	Target  string
	Order   int
}

// mspGroup is all patches applying to one target product, ordered by
// detection-time patch order.
type mspGroup struct {
	target  string
	patches []MspPatchRef
	minOrder int
	maxOrder int
}

// MergePatchActions implements specification section 4.5's MSP merge
// rule: patches targeting the same product collapse into one ordered
// ExecMspTarget action carrying the patch sequence, instead of one
// execute action per (patch, target) pair. Groups are emitted in order
// of their earliest patch's detection-time order; when a group's
// earliest patch is out of sequence relative to what's already been
// scheduled (an "insert into an earlier slot"), a cache-sync-point
// checkpoint precedes it, guaranteeing that patch is already on disk
// before the earlier-scheduled target product gets reconfigured.
func MergePatchActions(refs []MspPatchRef) []ExecuteAction {
	groups := groupByTarget(refs)

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].minOrder < groups[j].minOrder })

	var actions []ExecuteAction
	maxOrderSeen := -1
	for _, g := range groups {
		// A cache-sync-point (represented here as a wait_syncpoint the
		// cache thread signals once the reordered patch is verified
		// present on disk) precedes any group inserted earlier than
		// the sequence already scheduled.
		if g.minOrder < maxOrderSeen {
			actions = append(actions, ExecuteAction{Kind: ExecWaitSyncpoint, SyncpointEvent: "patch-cache-sync:" + g.target})
		}
		ids := make([]string, len(g.patches))
		for i, ref := range g.patches {
			ids[i] = ref.PatchID
		}
		actions = append(actions, ExecuteAction{Kind: ExecMspTarget, PackageID: g.target, PatchIDs: ids})
		if g.maxOrder > maxOrderSeen {
			maxOrderSeen = g.maxOrder
		}
	}
	return actions
}

func groupByTarget(refs []MspPatchRef) []mspGroup {
	byTarget := make(map[string]*mspGroup)
	var order []string
	for _, ref := range refs {
		g, ok := byTarget[ref.Target]
		if !ok {
			g = &mspGroup{target: ref.Target, minOrder: ref.Order, maxOrder: ref.Order}
			byTarget[ref.Target] = g
			order = append(order, ref.Target)
		}
		g.patches = append(g.patches, ref)
		if ref.Order < g.minOrder {
			g.minOrder = ref.Order
		}
		if ref.Order > g.maxOrder {
			g.maxOrder = ref.Order
		}
	}
	groups := make([]mspGroup, 0, len(order))
	for _, t := range order {
		g := byTarget[t]
		sort.SliceStable(g.patches, func(i, j int) bool { return g.patches[i].Order < g.patches[j].Order })
		groups = append(groups, *g)
	}
	return groups
}
