package engine

import (
	"context"
	"sync"

	"github.com/pithecene-io/bundleforge/apply"
	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/driver"
	"github.com/pithecene-io/bundleforge/elevation"
	"github.com/pithecene-io/bundleforge/log"
	"github.com/pithecene-io/bundleforge/metrics"
	"github.com/pithecene-io/bundleforge/pipe"
	"github.com/pithecene-io/bundleforge/plan"
)

// verb enumerates the message catalogue specification section 4.9
// describes for the controller's external surface.
type verb int

const (
	verbDetect verb = iota
	verbPlan
	verbApply
	verbElevate
	verbLaunchApprovedExe
	verbQuit
)

// request is one posted mailbox entry: a verb plus its arguments and a
// reply channel the caller blocks on.
type request struct {
	kind verb

	// verbPlan
	action driver.Action

	// verbApply
	report apply.ReportFunc
	maxForcedRestarts int

	// verbElevate
	companionPath string
	companionArgs []string

	// verbLaunchApprovedExe
	approvedKey  string
	approvedArgs []string

	reply chan response
}

type response struct {
	detected []plan.DetectedPackage
	plan     *plan.Plan
	result   *apply.Result
	pid      int
	err      error
}

// Engine is the mailbox-serialized controller. Exactly one verb
// executes at a time; a verb invoked while another is in flight fails
// immediately with bferr.Busy rather than queuing, per specification
// section 5's single-activity-token rule.
type Engine struct {
	state    *State
	log      *log.Logger
	metrics  *metrics.Collector
	bundleID string

	mailbox chan *request
	token   sync.Mutex

	companion *elevation.Companion
}

// New returns an Engine ready to Run, bound to state and tagged with
// bundleID for logging and metrics dimension labels.
func New(bundleID string, state *State, logger *log.Logger, collector *metrics.Collector) *Engine {
	return &Engine{
		state:    state,
		log:      logger,
		metrics:  collector,
		bundleID: bundleID,
		mailbox:  make(chan *request, 1),
	}
}

// Run drains the mailbox until verbQuit or ctx is cancelled, returning
// the process exit code the specification's controller command loop
// surfaces, taken from the last apply (see exitCodeFor): 0 when no apply
// has run or the last one succeeded, a reboot-pending code when it asked
// for one, 1602 or 1603 when it was cancelled or failed.
func (e *Engine) Run(ctx context.Context) int {
	exitCode := 0
	for {
		select {
		case <-ctx.Done():
			return exitCode
		case req := <-e.mailbox:
			if req.kind == verbQuit {
				req.reply <- response{}
				return exitCode
			}
			resp := e.dispatch(ctx, req)
			if resp.result != nil {
				exitCode = exitCodeFor(resp.result)
			}
			req.reply <- resp
		}
	}
}

func exitCodeFor(r *apply.Result) int {
	switch r.Restart {
	case driver.RestartRequired:
		return 3010
	case driver.RestartInitiated:
		return 1641
	default:
		if r.Outcome == apply.OutcomeFailed {
			return 1603
		}
		if r.Outcome == apply.OutcomeUserExit {
			return 1602
		}
		return 0
	}
}

func (e *Engine) dispatch(ctx context.Context, req *request) response {
	switch req.kind {
	case verbDetect:
		detected, err := e.doDetect(ctx)
		return response{detected: detected, err: err}
	case verbPlan:
		p, err := e.doPlan(ctx, req.action)
		return response{plan: p, err: err}
	case verbApply:
		result, err := e.doApply(ctx, req.report, req.maxForcedRestarts)
		return response{result: result, err: err}
	case verbElevate:
		err := e.doElevate(ctx, req.companionPath, req.companionArgs)
		return response{err: err}
	case verbLaunchApprovedExe:
		pid, err := e.doLaunchApprovedExe(ctx, req.approvedKey, req.approvedArgs)
		return response{pid: pid, err: err}
	default:
		return response{err: bferr.New(bferr.NotImplemented, "engine.dispatch")}
	}
}

// post enforces the busy/activity-token rule and round-trips req
// through the mailbox, blocking until Run's loop processes it.
func (e *Engine) post(ctx context.Context, req *request) (response, error) {
	if !e.token.TryLock() {
		return response{}, bferr.New(bferr.Busy, "engine.post")
	}
	defer e.token.Unlock()

	req.reply = make(chan response, 1)
	select {
	case e.mailbox <- req:
	case <-ctx.Done():
		return response{}, bferr.Wrap(bferr.Cancelled, "engine.post", ctx.Err())
	}

	select {
	case resp := <-req.reply:
		return resp, resp.err
	case <-ctx.Done():
		return response{}, bferr.Wrap(bferr.Cancelled, "engine.post", ctx.Err())
	}
}

// Detect runs every package's driver Detect and records the result set
// for a subsequent PlanAction call.
func (e *Engine) Detect(ctx context.Context) ([]plan.DetectedPackage, error) {
	resp, err := e.post(ctx, &request{kind: verbDetect})
	return resp.detected, err
}

// PlanAction builds a Plan from the last Detect's results against
// action, including the cross-patch MSP merge step.
func (e *Engine) PlanAction(ctx context.Context, action driver.Action) (*plan.Plan, error) {
	resp, err := e.post(ctx, &request{kind: verbPlan, action: action})
	return resp.plan, err
}

// Apply interprets the last PlanAction's result via package apply,
// reporting progress through report.
func (e *Engine) Apply(ctx context.Context, report apply.ReportFunc, maxForcedRestarts int) (*apply.Result, error) {
	resp, err := e.post(ctx, &request{kind: verbApply, report: report, maxForcedRestarts: maxForcedRestarts})
	return resp.result, err
}

// Elevate launches the companion process at path, completing its
// handshake before returning.
func (e *Engine) Elevate(ctx context.Context, path string, args []string) error {
	_, err := e.post(ctx, &request{kind: verbElevate, companionPath: path, companionArgs: args})
	return err
}

// LaunchApprovedExe starts the bundle-authored executable registered
// under key, outside the normal plan/apply flow.
func (e *Engine) LaunchApprovedExe(ctx context.Context, key string, args []string) (int, error) {
	resp, err := e.post(ctx, &request{kind: verbLaunchApprovedExe, approvedKey: key, approvedArgs: args})
	return resp.pid, err
}

// SetRequested records the caller's requested disposition for pkgID
// ahead of the next PlanAction call. It touches only this process's
// local bookkeeping (no drivers run, no IPC), so it bypasses the mailbox
// the way the original engine's request-state setters run directly on
// the UI thread rather than posting to the controller's message loop.
func (e *Engine) SetRequested(pkgID string, req driver.Request) {
	e.state.SetRequested(pkgID, req)
}

// Quit stops Run's loop.
func (e *Engine) Quit(ctx context.Context) {
	reply := make(chan response, 1)
	select {
	case e.mailbox <- &request{kind: verbQuit, reply: reply}:
		<-reply
	case <-ctx.Done():
	}
}

func (e *Engine) doDetect(ctx context.Context) ([]plan.DetectedPackage, error) {
	detected := make([]plan.DetectedPackage, 0, len(e.state.Packages))
	for _, pkg := range e.state.Packages {
		if err := ctx.Err(); err != nil {
			return nil, bferr.Wrap(bferr.Cancelled, "engine.doDetect", err)
		}
		drv := driver.ForKind(pkg.Kind, e.state.ProductDB, e.state.PatchDB)
		if drv == nil {
			return nil, bferr.New(bferr.NotImplemented, "engine.doDetect").WithBundle(pkg.ID)
		}
		st, err := drv.Detect(ctx, pkg, e.state.Store)
		if err != nil {
			return nil, bferr.Wrap(bferr.IO, "engine.doDetect", err).WithBundle(pkg.ID)
		}
		if e.log != nil {
			e.log.Debug("detected package", map[string]any{"package_id": pkg.ID, "kind": pkg.Kind.String(), "state": st.String()})
		}
		detected = append(detected, plan.DetectedPackage{
			Pkg:          pkg,
			State:        st,
			Requested:    e.state.requested[pkg.ID],
			ProviderKeys: providerKeysFor(pkg),
		})
	}
	e.state.detected = detected
	e.state.current = nil
	return detected, nil
}

// providerKeysFor derives the dependency-provider key a package exposes
// for registration and "still needed" tracking: its authored product or
// patch code when one exists, falling back to the package's own id for
// exe/msu packages, which have neither.
func providerKeysFor(pkg *driver.Package) []string {
	switch pkg.Kind {
	case driver.KindMSI:
		if pkg.ProductCode != "" {
			return []string{pkg.ProductCode}
		}
	case driver.KindMSP:
		if pkg.PatchCode != "" {
			return []string{pkg.PatchCode}
		}
	}
	return []string{pkg.ID}
}

func (e *Engine) doPlan(ctx context.Context, action driver.Action) (*plan.Plan, error) {
	if e.state.detected == nil {
		return nil, bferr.New(bferr.InvalidArgument, "engine.doPlan")
	}

	var mspRefs []plan.MspPatchRef

	for i := range e.state.detected {
		dp := &e.state.detected[i]
		drv := driver.ForKind(dp.Pkg.Kind, e.state.ProductDB, e.state.PatchDB)
		if drv == nil {
			return nil, bferr.New(bferr.NotImplemented, "engine.doPlan").WithBundle(dp.Pkg.ID)
		}

		if dp.Pkg.Kind == driver.KindMSP {
			patchDrv, ok := drv.(*driver.PatchDriver)
			if !ok {
				return nil, bferr.New(bferr.Unexpected, "engine.doPlan").WithBundle(dp.Pkg.ID)
			}
			targets, err := patchDrv.PlanTargets(dp.Pkg, dp.Requested)
			if err != nil {
				return nil, bferr.Wrap(bferr.IO, "engine.doPlan", err).WithBundle(dp.Pkg.ID)
			}
			for _, t := range targets {
				mspRefs = append(mspRefs, plan.MspPatchRef{PatchID: dp.Pkg.ID, Target: t.Target, Order: t.Order})
			}
			// Zeroed so plan.Build's per-package path skips this
			// patch; the merged ExecMspTarget entries appended below
			// replace it.
			dp.Execute = driver.ActionNone
			dp.Rollback = driver.ActionNone
			continue
		}

		execute, rollback, err := drv.Plan(dp.Pkg, dp.Requested, dp.State)
		if err != nil {
			return nil, bferr.Wrap(bferr.IO, "engine.doPlan", err).WithBundle(dp.Pkg.ID)
		}
		dp.Execute = execute
		dp.Rollback = rollback
	}

	built, err := plan.Build(plan.BuildInput{
		Packages:       e.state.detected,
		RelatedBundles: e.state.RelatedBundles,
		BundleAction:   action,
	}, e.state.Dependencies)
	if err != nil {
		return nil, err
	}

	if len(mspRefs) > 0 {
		appendMergedMspActions(built, mspRefs)
	}

	e.state.current = built
	return built, nil
}

// appendMergedMspActions folds the cross-patch merge step's output onto
// an already-built Plan, per specification section 4.5's "MSP actions
// targeting the same product are merged into one ordered target-action"
// rule. plan.Build's per-package path already skipped these packages
// (their Execute/Rollback were zeroed before Build ran), so there is no
// duplicate entry to reconcile.
func appendMergedMspActions(p *plan.Plan, refs []plan.MspPatchRef) {
	merged := plan.MergePatchActions(refs)
	if len(merged) == 0 {
		return
	}

	ck := nextCheckpoint(p)
	forward := make([]plan.ExecuteAction, 0, len(merged)+1)
	forward = append(forward, plan.ExecuteAction{Kind: plan.ExecCheckpoint, CheckpointID: ck})
	for _, a := range merged {
		if a.Kind == plan.ExecMspTarget {
			a.Action = driver.ActionPatch
		}
		forward = append(forward, a)
	}

	rollback := make([]plan.ExecuteAction, 0, len(merged)+1)
	rollback = append(rollback, plan.ExecuteAction{Kind: plan.ExecCheckpoint, CheckpointID: ck})
	for _, a := range merged {
		if a.Kind == plan.ExecMspTarget {
			a.Action = driver.ActionUninstall
		}
		rollback = append(rollback, a)
	}

	p.ExecuteActions = append(p.ExecuteActions, forward...)
	p.RollbackActions = append(p.RollbackActions, rollback...)

	patched := 0
	for _, a := range merged {
		if a.Kind == plan.ExecMspTarget {
			patched++
		}
	}
	p.OverallProgressTicksTotal += patched
}

func nextCheckpoint(p *plan.Plan) uint32 {
	var max uint32
	for _, a := range p.ExecuteActions {
		if a.Kind == plan.ExecCheckpoint && a.CheckpointID > max {
			max = a.CheckpointID
		}
	}
	return max + 1
}

func (e *Engine) doApply(ctx context.Context, report apply.ReportFunc, maxForcedRestarts int) (*apply.Result, error) {
	if e.state.current == nil {
		return nil, bferr.New(bferr.InvalidArgument, "engine.doApply")
	}

	drivers := func(kind driver.Kind) driver.Driver {
		return driver.ForKind(kind, e.state.ProductDB, e.state.PatchDB)
	}

	result, err := apply.Run(ctx, e.state.current, apply.Options{
		Cache:             e.state.Cache,
		Source:            e.state.Source,
		Drivers:           drivers,
		Store:             e.state.Store,
		Report:            report,
		Packages:          e.state.packagesByID(),
		MaxForcedRestarts: maxForcedRestarts,
		Metrics:           e.metrics,
	})
	if err != nil && result == nil {
		return nil, err
	}
	return result, err
}

func (e *Engine) doElevate(ctx context.Context, path string, args []string) error {
	secret := pipe.NewSecret()
	companion, err := elevation.Launch(ctx, path, args, secret)
	if err != nil {
		e.metrics.IncCompanionLaunch("failure")
		return bferr.Wrap(bferr.IO, "engine.doElevate", err)
	}
	if e.log != nil {
		e.log.Info("companion launched", map[string]any{"path": path})
	}
	e.metrics.IncCompanionLaunch("success")
	e.companion = companion
	return nil
}

func (e *Engine) doLaunchApprovedExe(ctx context.Context, key string, args []string) (int, error) {
	if e.state.Approved == nil {
		return 0, bferr.New(bferr.NotFound, "engine.doLaunchApprovedExe").WithBundle(key)
	}
	return driver.LaunchApprovedExe(ctx, e.state.Approved, key, args)
}
