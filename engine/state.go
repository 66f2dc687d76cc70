// Package engine implements the controller state machine: the single
// mailbox-serialized entry point through which a host (the CLI, a
// bootstrapper UI, or a companion process) drives detect, plan, apply,
// elevation, and approved-executable verbs against one bundle's
// package set.
//
// The single-entry-point shape is grounded on
// quarry/runtime/run.go's RunOrchestrator: one struct wrapping
// configuration plus a logger, one Execute-style method per verb, no
// exported mutable fields for a caller to reach around the orchestrator
// with. Serializing verb dispatch through a mailbox channel instead of
// guarding state with a plain mutex mirrors runtime/fanout.go's
// Operator, which also drains a single channel from one loop goroutine
// to avoid interleaving concurrent callers' work.
package engine

import (
	"github.com/pithecene-io/bundleforge/cache"
	"github.com/pithecene-io/bundleforge/driver"
	"github.com/pithecene-io/bundleforge/plan"
	"github.com/pithecene-io/bundleforge/vars"
)

// State is the controller's package-set-scoped data: what's authored,
// what's been requested, and what detect/plan last computed. A fresh
// Detect invalidates any previously computed Plan, per specification
// section 3's note that plan data is only valid against the detect
// state it was built from.
type State struct {
	Store        *vars.Store
	Packages     []*driver.Package
	ProductDB    driver.ProductDatabase
	PatchDB      driver.PatchDatabase
	Dependencies *driver.DependencyGraph
	Approved     *driver.ApprovedExeRegistry
	Cache        *cache.Index
	Source       cache.Source

	// RelatedBundles feeds plan.BuildInput's ordering rule directly;
	// this engine has no separate "bundle registry" component, so the
	// caller populates it the same way it populates Packages.
	RelatedBundles []plan.RelatedBundle

	requested map[string]driver.Request
	detected  []plan.DetectedPackage
	current   *plan.Plan
}

// NewState returns a State with an empty request set, ready for
// packages to be registered.
func NewState(store *vars.Store) *State {
	return &State{
		Store:     store,
		requested: make(map[string]driver.Request),
	}
}

// SetRequested records the caller-requested disposition for pkgID,
// invalidating any plan already built (it was built against the old
// request set and is no longer trustworthy).
func (s *State) SetRequested(pkgID string, req driver.Request) {
	s.requested[pkgID] = req
	s.current = nil
}

// packagesByID indexes Packages for apply.Options.Packages, keyed by
// package ID the way apply's execute/cache phases look them up.
func (s *State) packagesByID() map[string]*driver.Package {
	byID := make(map[string]*driver.Package, len(s.Packages))
	for _, p := range s.Packages {
		byID[p.ID] = p
	}
	return byID
}
