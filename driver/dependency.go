package driver

import "sync"

// DependencyGraph implements the provider-key reference-counting model:
// which dependents currently register against which provider keys, and
// whether a package is "still needed" and so must not be removed even
// when a plan requests it absent. Supplemented from original_source/'s
// dependency.cpp per the expanded specification, since spec.md's
// section 4.6 only alludes to the "still needed" rule without detailing
// how refcounts are tracked.
type DependencyGraph struct {
	mu sync.Mutex
	// dependents maps a provider key to the set of dependent keys
	// currently registered against it.
	dependents map[string]map[string]bool
	// ignored is the set of dependency keys -burn.ignoredependencies
	// names; a "still needed" check against an ignored dependent is
	// treated as if that dependent were not registered at all.
	ignored map[string]bool
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		dependents: make(map[string]map[string]bool),
		ignored:    make(map[string]bool),
	}
}

// SetIgnored configures the -burn.ignoredependencies switch's effect:
// registrations by any key in keys no longer count toward "still
// needed".
func (g *DependencyGraph) SetIgnored(keys []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ignored = make(map[string]bool, len(keys))
	for _, k := range keys {
		g.ignored[k] = true
	}
}

// Register records that dependentKey depends on providerKey.
func (g *DependencyGraph) Register(providerKey, dependentKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.dependents[providerKey]
	if !ok {
		set = make(map[string]bool)
		g.dependents[providerKey] = set
	}
	set[dependentKey] = true
}

// Unregister removes dependentKey's registration against providerKey.
func (g *DependencyGraph) Unregister(providerKey, dependentKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.dependents[providerKey]
	if !ok {
		return
	}
	delete(set, dependentKey)
	if len(set) == 0 {
		delete(g.dependents, providerKey)
	}
}

// StillNeeded reports whether providerKey has any non-ignored dependent
// remaining, per specification section 4.6: a package the dependency
// manager finds still needed has its execute action downgraded to none
// even when the plan requested absent.
func (g *DependencyGraph) StillNeeded(providerKey string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.dependents[providerKey]
	if !ok {
		return false
	}
	for dependent := range set {
		if !g.ignored[dependent] {
			return true
		}
	}
	return false
}

// DowngradeIfStillNeeded applies the "still needed" rule to a planned
// action: any removal-shaped action against providerKey with a
// remaining dependent downgrades to ActionNone.
func (g *DependencyGraph) DowngradeIfStillNeeded(providerKey string, action Action) Action {
	if !isRemovalAction(action) {
		return action
	}
	if g.StillNeeded(providerKey) {
		return ActionNone
	}
	return action
}

func isRemovalAction(a Action) bool {
	switch a {
	case ActionUninstall:
		return true
	default:
		return false
	}
}
