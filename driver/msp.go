package driver

import (
	"context"
	"fmt"
	"sort"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/vars"
)

// PatchDriver implements the msp package kind. Detection and planning
// both operate across a set of target products rather than a single
// product, per specification section 4.5's patch driver description —
// the hardest of the four drivers for exactly that reason.
type PatchDriver struct {
	DB      ProductDatabase
	Patches PatchDatabase
	Runner  ProcessRunner
}

func (d *PatchDriver) runner() ProcessRunner {
	if d.Runner != nil {
		return d.Runner
	}
	return ExecRunner{}
}

// PatchTargetPlan is one target product's planned action within a
// patch's overall plan. Package plan merges these across patches that
// target the same product (specification section 4.5, "MSP actions
// targeting the same product are MERGED").
type PatchTargetPlan struct {
	Target  string
	Execute Action
	Rollback Action
	// Order is the detection-time patch-sequence order returned by
	// PatchDatabase.Applicable, used to insertion-sort merged actions.
	Order int
}

// candidateTargets computes the target product set per specification
// section 4.5 step 1: explicit authored targets, union related-by-
// upgrade-code products, falling back to every installed product if
// neither yields a candidate.
func (d *PatchDriver) candidateTargets(pkg *Package) ([]string, error) {
	seen := make(map[string]bool)
	var candidates []string
	for _, t := range pkg.Targets {
		if !seen[t] {
			seen[t] = true
			candidates = append(candidates, t)
		}
	}
	if pkg.UpgradeCode != "" && d.DB != nil {
		related, err := d.DB.RelatedByUpgradeCode(pkg.UpgradeCode)
		if err != nil {
			return nil, bferr.Wrap(bferr.IO, "driver.PatchDriver.candidateTargets", err)
		}
		for _, t := range related {
			if !seen[t] {
				seen[t] = true
				candidates = append(candidates, t)
			}
		}
	}
	if len(candidates) == 0 && d.DB != nil {
		all, err := d.DB.AllInstalled()
		if err != nil {
			return nil, bferr.Wrap(bferr.IO, "driver.PatchDriver.candidateTargets", err)
		}
		candidates = all
	}
	return candidates, nil
}

func (d *PatchDriver) Detect(ctx context.Context, pkg *Package, store *vars.Store) (State, error) {
	if d.Patches == nil {
		return StateUnknown, bferr.New(bferr.InvalidArgument, "driver.PatchDriver.Detect")
	}
	targets, err := d.candidateTargets(pkg)
	if err != nil {
		return StateUnknown, err
	}
	if len(targets) == 0 {
		return StateAbsent, nil
	}

	applicability, err := d.Patches.Applicable(pkg.PatchCode, targets)
	if err != nil {
		return StateUnknown, bferr.Wrap(bferr.IO, "driver.PatchDriver.Detect", err)
	}

	state := StatePresent
	any := false
	for _, t := range targets {
		info, ok := applicability[t]
		if !ok || !info.Applicable {
			continue
		}
		any = true
		state = MinState(state, info.State)
	}
	if !any {
		return StateAbsent, nil
	}
	return state, nil
}

// PlanTargets derives a per-target plan, ordered by detection-time patch
// order, for use by package plan's cross-patch merge step.
func (d *PatchDriver) PlanTargets(pkg *Package, requested Request) ([]PatchTargetPlan, error) {
	targets, err := d.candidateTargets(pkg)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}
	applicability, err := d.Patches.Applicable(pkg.PatchCode, targets)
	if err != nil {
		return nil, bferr.Wrap(bferr.IO, "driver.PatchDriver.PlanTargets", err)
	}

	var plans []PatchTargetPlan
	for _, t := range targets {
		info, ok := applicability[t]
		if !ok || !info.Applicable {
			continue
		}
		execute, rollback := planPatchAction(info.State, requested)
		plans = append(plans, PatchTargetPlan{Target: t, Execute: execute, Rollback: rollback, Order: info.Order})
	}
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].Order < plans[j].Order })
	return plans, nil
}

func planPatchAction(patchState State, requested Request) (Action, Action) {
	switch requested {
	case RequestPresent:
		if patchState >= StatePresent {
			return ActionNone, ActionNone
		}
		return ActionPatch, ActionUninstall
	case RequestAbsent, RequestForceAbsent:
		if patchState >= StateCached {
			return ActionUninstall, ActionPatch
		}
		return ActionNone, ActionNone
	case RequestRepair:
		return ActionPatch, ActionNone
	default:
		return ActionNone, ActionNone
	}
}

// Plan satisfies the Driver interface by aggregating PlanTargets via
// MAX over targets, per specification section 4.5 ("the package-level
// execute/rollback is the MAX over targets").
func (d *PatchDriver) Plan(pkg *Package, requested Request, detected State) (Action, Action, error) {
	plans, err := d.PlanTargets(pkg, requested)
	if err != nil {
		return ActionNone, ActionNone, err
	}
	execute, rollback := ActionNone, ActionNone
	for _, p := range plans {
		execute = MaxAction(execute, p.Execute)
		rollback = MaxAction(rollback, p.Rollback)
	}
	return execute, rollback, nil
}

func (d *PatchDriver) Execute(ctx context.Context, pkg *Package, action Action, store *vars.Store, rollback bool, onMessage MessageFunc) (ExecuteResult, error) {
	if action == ActionNone {
		return ExecuteResult{}, nil
	}
	cmdLine := pkg.CommandLine
	if cmdLine == "" {
		cmdLine = fmt.Sprintf("echo patch %s", pkg.PatchCode)
	}
	exitCode, err := d.runner().Run(ctx, cmdLine, onMessage)
	if err != nil {
		return ExecuteResult{}, err
	}
	return classifyExitCode(exitCode, action, "driver.PatchDriver.Execute")
}
