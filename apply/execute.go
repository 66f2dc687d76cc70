package apply

import (
	"context"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/driver"
	"github.com/pithecene-io/bundleforge/plan"
)

// runExecute is the controller thread's interpretation of
// plan.ExecuteActions, per specification section 4.7 phase B.
//
// On a package failure (step B.3): a reboot result always ends the
// apply; a UI cancel (tick returns bferr.UserExit) always rolls back
// and ends the apply with that cancel; any other failure on a
// non-vital package is ignored, skipping forward to the next action
// and letting the apply still reach success (specification section 7,
// "Non-vital packages"). Everything else rolls back from the active
// checkpoint. If the boundary rollback stops at is non-vital, the
// stream seeks forward to the next rollback_boundary and resumes
// instead of ending the apply.
func (e *engine) runExecute(ctx context.Context, cacheDone <-chan error) error {
	actions := e.plan.ExecuteActions
	var lastCheckpoint uint32

	i := 0
	for i < len(actions) {
		a := actions[i]

		switch a.Kind {
		case plan.ExecCheckpoint:
			lastCheckpoint = a.CheckpointID

		case plan.ExecWaitSyncpoint:
			if err := e.waitSyncpoint(ctx, a.SyncpointEvent, cacheDone); err != nil {
				return err
			}

		case plan.ExecRollbackBoundary:
			// A plain forward pass over a boundary is a no-op; boundaries
			// only matter to rollbackFrom and to the resume seek below.

		case plan.ExecRegistration:
			// Bundle/package registration state is applied by the
			// engine's registration store, outside the package drivers;
			// nothing to retry here.

		case plan.ExecPackageProvider, plan.ExecPackageDependency, plan.ExecCompatiblePackage:
			if err := e.tick("execute", a.PackageID, executeActionKindLabel(a.Kind)); err != nil {
				_, rerr := e.rollbackFrom(ctx, lastCheckpoint, err)
				return rerr
			}

		case plan.ExecExePackage, plan.ExecMsiPackage, plan.ExecMspTarget, plan.ExecMsuPackage:
			var err error
			if a.Kind == plan.ExecMspTarget && len(a.PatchIDs) > 0 {
				err = e.executeMspTargetMerged(ctx, a, false)
			} else {
				err = e.executePackageAction(ctx, a, false)
			}
			if err != nil {
				if bferr.Is(err, bferr.RebootRequired) || bferr.Is(err, bferr.RebootInitiated) {
					return err
				}
				cancel := bferr.Is(err, bferr.UserExit) || bferr.Is(err, bferr.Cancelled)
				if !cancel {
					if pkg := e.packageFor(a.PackageID); pkg != nil && !pkg.Vital {
						i++
						continue
					}
				}
				resume, rerr := e.rollbackFrom(ctx, lastCheckpoint, err)
				if cancel || !resume {
					return rerr
				}
				i = nextRollbackBoundaryIndex(actions, i)
				continue
			}
		}

		i++
	}
	return nil
}

// nextRollbackBoundaryIndex finds the first rollback_boundary after
// from and returns the index just past it, or len(actions) if none
// remains, per specification section 4.7 step B.3's "seek the execute
// stream forward to the next rollback boundary and resume".
func nextRollbackBoundaryIndex(actions []plan.ExecuteAction, from int) int {
	for j := from + 1; j < len(actions); j++ {
		if actions[j].Kind == plan.ExecRollbackBoundary {
			return j + 1
		}
	}
	return len(actions)
}

// executePackageAction runs one driver's Execute for a, retrying up to
// MaxForcedRestarts times when the driver asks for it, per specification
// section 4.7 step B.2. rollback selects which of (Action, rollback
// Action) the driver should carry out.
func (e *engine) executePackageAction(ctx context.Context, a plan.ExecuteAction, rollback bool) error {
	pkg := e.packageFor(a.PackageID)
	if pkg == nil {
		return bferr.New(bferr.NotFound, "apply.executePackageAction").WithBundle(a.PackageID)
	}
	drv := e.opts.Drivers(pkg.Kind)
	if drv == nil {
		return bferr.New(bferr.NotImplemented, "apply.executePackageAction").WithBundle(a.PackageID)
	}

	onMessage := func(m driver.Message) error {
		return e.tick("execute", a.PackageID, m.Text)
	}

	restarts := 0
	for {
		result, err := drv.Execute(ctx, pkg, a.Action, e.opts.Store, rollback, onMessage)
		if err == nil {
			if result.Restart == driver.RestartRequired {
				return bferr.New(bferr.RebootRequired, "apply.executePackageAction").WithBundle(a.PackageID)
			}
			if result.Restart == driver.RestartInitiated {
				return bferr.New(bferr.RebootInitiated, "apply.executePackageAction").WithBundle(a.PackageID)
			}
			return nil
		}
		if result.Retry && restarts < e.opts.MaxForcedRestarts {
			restarts++
			continue
		}
		return err
	}
}

// executeMspTargetMerged runs a's PatchIDs in sequence against the
// merged target product a.PackageID, implementing the "one ordered
// target-action" the cross-patch merge step in package plan produces.
// Each patch still runs its own driver.Execute call (this engine has no
// single-call batch-patch primitive to hand a real installer), but the
// group shares one checkpoint/rollback boundary so a mid-group failure
// unwinds every patch already applied to that target.
func (e *engine) executeMspTargetMerged(ctx context.Context, a plan.ExecuteAction, rollback bool) error {
	ids := a.PatchIDs
	if rollback {
		ids = reversePatchIDs(ids)
	}
	for _, patchID := range ids {
		patchAction := plan.ExecuteAction{Kind: plan.ExecMspTarget, PackageID: patchID, Action: a.Action}
		if err := e.executePackageAction(ctx, patchAction, rollback); err != nil {
			return err
		}
	}
	return nil
}

func reversePatchIDs(ids []string) []string {
	reversed := make([]string, len(ids))
	for i, id := range ids {
		reversed[len(ids)-1-i] = id
	}
	return reversed
}

// waitSyncpoint blocks until name is signaled by the cache thread or the
// cache thread exits with failure, in which case the execute loop
// inherits that failure per specification section 4.7 phase B.
func (e *engine) waitSyncpoint(ctx context.Context, name string, cacheDone <-chan error) error {
	ch := e.syncpoint(name)
	select {
	case <-ch:
		return nil
	case err := <-cacheDone:
		if err != nil {
			return err
		}
		// Cache thread finished cleanly before signaling; the syncpoint
		// itself must already be closed in that case.
		select {
		case <-ch:
			return nil
		default:
			return nil
		}
	case <-ctx.Done():
		return bferr.Wrap(bferr.Cancelled, "apply.waitSyncpoint", ctx.Err())
	}
}

// rollbackFrom replays RollbackActions from the nearest checkpoint
// downward, stopping at the first rollback_boundary, per specification
// section 4.7 step B.3. A vital boundary ends the apply with failure
// (resume=false). A non-vital one reports resume=true, telling the
// caller it may seek the execute stream forward to the next
// rollback_boundary and continue rather than ending the apply; the
// caller still ends the apply on resume=true if cause is itself a
// cancel, since a cancelled apply always ends once rollback has run.
func (e *engine) rollbackFrom(ctx context.Context, checkpoint uint32, cause error) (resume bool, err error) {
	e.opts.Metrics.IncRollback()
	start := len(e.plan.RollbackActions)
	for j, a := range e.plan.RollbackActions {
		if a.Kind == plan.ExecCheckpoint && a.CheckpointID > checkpoint {
			start = j
			break
		}
	}
	for idx := start - 1; idx >= 0; idx-- {
		a := e.plan.RollbackActions[idx]
		if a.Kind == plan.ExecCheckpoint && a.CheckpointID > checkpoint {
			continue
		}
		if a.Kind == plan.ExecRollbackBoundary {
			if a.Vital {
				return false, cause
			}
			e.untick()
			return true, cause
		}
		switch a.Kind {
		case plan.ExecExePackage, plan.ExecMsiPackage, plan.ExecMspTarget, plan.ExecMsuPackage:
			if a.Action != driver.ActionNone {
				if a.Kind == plan.ExecMspTarget && len(a.PatchIDs) > 0 {
					_ = e.executeMspTargetMerged(ctx, a, true)
				} else {
					_ = e.executePackageAction(ctx, a, true)
				}
				e.untick()
			}
		}
	}
	return false, cause
}

func executeActionKindLabel(k plan.ExecuteActionKind) string {
	switch k {
	case plan.ExecPackageProvider:
		return "package_provider"
	case plan.ExecPackageDependency:
		return "package_dependency"
	case plan.ExecCompatiblePackage:
		return "compatible_package"
	default:
		return "execute"
	}
}
