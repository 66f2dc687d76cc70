// Package apply interprets a built plan.Plan against the real package
// drivers and cache backend, per specification section 4.7's three
// sub-phases (cache, execute, clean).
//
// The cache-thread-parallel-to-execute-loop shape is grounded on
// quarry/runtime/run.go's Execute: start a subordinate goroutine, wait
// for it on a done channel, and propagate its failure into the main
// outcome, plus runtime/fanout.go's Operator worker pool for the bounded
// concurrency and atomic progress-counter idiom. Apply's cache phase
// reuses that run/drain/report shape for a single background thread
// instead of fanning out many child runs.
package apply

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/cache"
	"github.com/pithecene-io/bundleforge/driver"
	"github.com/pithecene-io/bundleforge/metrics"
	"github.com/pithecene-io/bundleforge/plan"
	"github.com/pithecene-io/bundleforge/vars"
)

// Outcome classifies how Run ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeUserExit
	OutcomeFailed
	OutcomeRebootRequired
	OutcomeRebootInitiated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUserExit:
		return "user_exit"
	case OutcomeFailed:
		return "failed"
	case OutcomeRebootRequired:
		return "reboot_required"
	case OutcomeRebootInitiated:
		return "reboot_initiated"
	default:
		return "success"
	}
}

// Progress is one tick report sent to ReportFunc.
type Progress struct {
	Phase      string
	TicksDone  int64
	TicksTotal int64
	PackageID  string
	Text       string
}

// ReportFunc receives progress reports. Returning an error cancels the
// apply (specification section 4.7: "a UI cancel surfaces as user_exit
// and triggers rollback").
type ReportFunc func(Progress) error

// Result is Run's final outcome.
type Result struct {
	Outcome Outcome
	Restart driver.RestartKind
}

// DriverFactory resolves the driver implementation for a package kind,
// matching driver.ForKind's signature so callers can inject test doubles.
type DriverFactory func(kind driver.Kind) driver.Driver

// Options configures one Run.
type Options struct {
	Cache    *cache.Index
	Source   cache.Source
	Drivers  DriverFactory
	Store    *vars.Store
	Report   ReportFunc
	Packages map[string]*driver.Package // by PackageID, for execute/cache lookups

	// MaxForcedRestarts bounds how many times a single execute action
	// may be retried before the engine gives up and fails the package,
	// per specification section 4.7 step B.2's "restart < forced" rule.
	MaxForcedRestarts int

	// Metrics records apply lifecycle, cache hit/miss, and rollback
	// counters. Nil-safe: a caller that doesn't want metrics can leave
	// this unset.
	Metrics *metrics.Collector
}

// engine holds the mutable state shared between the cache thread and the
// execute loop for one Run call.
type engine struct {
	plan *plan.Plan
	opts Options

	ticksDone  atomic.Int64
	ticksTotal int64

	syncpoints   map[string]chan struct{}
	syncpointsMu sync.Mutex

	// lastCacheCheckpoint tracks the most recent checkpoint id the cache
	// thread completed, for do_rollback_cache(checkpoint_at_entry).
	lastCacheCheckpoint atomic.Uint32
}

// Run executes plan's cache, execute, and clean phases to completion or
// first unrecoverable failure, per specification section 4.7.
func Run(ctx context.Context, p *plan.Plan, opts Options) (*Result, error) {
	e := &engine{
		plan:       p,
		opts:       opts,
		ticksTotal: int64(p.OverallProgressTicksTotal),
		syncpoints: make(map[string]chan struct{}),
	}
	opts.Metrics.IncApplyStarted()
	for _, a := range p.CacheActions {
		if a.Kind == plan.CacheSignalSyncpoint {
			e.syncpoint(a.SyncpointEvent)
		}
	}
	for _, a := range p.ExecuteActions {
		if a.Kind == plan.ExecWaitSyncpoint {
			e.syncpoint(a.SyncpointEvent)
		}
	}

	cacheDone := make(chan error, 1)
	go func() {
		cacheDone <- e.runCache(ctx)
	}()

	execErr := e.runExecute(ctx, cacheDone)

	// The cache thread may still be running past the execute loop's own
	// failure; wait for it so clean-up never races an in-flight cache
	// write, mirroring run.go's "ingestion before executor.Wait" ordering.
	cacheErr := <-cacheDone
	if execErr == nil {
		execErr = cacheErr
	}

	e.runClean(ctx)

	if execErr != nil {
		if bferr.Is(execErr, bferr.UserExit) {
			opts.Metrics.IncApplyCompleted(OutcomeUserExit.String())
			return &Result{Outcome: OutcomeUserExit}, nil
		}
		if bferr.Is(execErr, bferr.RebootRequired) {
			opts.Metrics.IncApplyCompleted(OutcomeRebootRequired.String())
			return &Result{Outcome: OutcomeRebootRequired, Restart: driver.RestartRequired}, nil
		}
		if bferr.Is(execErr, bferr.RebootInitiated) {
			opts.Metrics.IncApplyCompleted(OutcomeRebootInitiated.String())
			return &Result{Outcome: OutcomeRebootInitiated, Restart: driver.RestartInitiated}, nil
		}
		opts.Metrics.IncApplyCompleted(OutcomeFailed.String())
		return &Result{Outcome: OutcomeFailed}, execErr
	}
	opts.Metrics.IncApplyCompleted(OutcomeSuccess.String())
	return &Result{Outcome: OutcomeSuccess}, nil
}

func (e *engine) syncpoint(name string) chan struct{} {
	e.syncpointsMu.Lock()
	defer e.syncpointsMu.Unlock()
	ch, ok := e.syncpoints[name]
	if !ok {
		ch = make(chan struct{})
		e.syncpoints[name] = ch
	}
	return ch
}

func (e *engine) signalSyncpoint(name string) {
	ch := e.syncpoint(name)
	select {
	case <-ch:
		// already signaled
	default:
		close(ch)
	}
}

// tick reports progress on phase's behalf and is the single chokepoint
// every progress report flows through, direct or via a driver's
// onMessage callback. A UI cancel reply is translated to user_exit here
// so every caller, cache and execute alike, sees the same cancellation
// kind (specification section 4.7: "a UI cancel surfaces as user_exit
// and triggers rollback").
func (e *engine) tick(phase, packageID, text string) error {
	done := e.ticksDone.Add(1)
	e.opts.Metrics.SetOverallProgress(done, e.ticksTotal)
	if e.opts.Report == nil {
		return nil
	}
	if err := e.opts.Report(Progress{Phase: phase, TicksDone: done, TicksTotal: e.ticksTotal, PackageID: packageID, Text: text}); err != nil {
		return bferr.Wrap(bferr.UserExit, "apply.tick", err)
	}
	return nil
}

func (e *engine) untick() {
	for {
		cur := e.ticksDone.Load()
		if cur == 0 {
			return
		}
		if e.ticksDone.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

func (e *engine) packageFor(id string) *driver.Package {
	if e.opts.Packages == nil {
		return nil
	}
	return e.opts.Packages[id]
}
