package plan

import "github.com/pithecene-io/bundleforge/driver"

// DetectedPackage is one package's already-detected state and the
// action pair its driver derived from (detected, requested).
type DetectedPackage struct {
	Pkg       *driver.Package
	State     driver.State
	Requested driver.Request
	Execute   driver.Action
	Rollback  driver.Action
	// ProviderKeys lists the dependency-provider keys this package
	// exposes, used for registration-action insertion and the "still
	// needed" downgrade.
	ProviderKeys []string
}

// RelatedBundle is one related-bundle entry for the ordering rule in
// specification section 4.6.
type RelatedBundle struct {
	ID      string
	Upgrade bool
}

// BuildInput is everything Build needs besides the DependencyGraph.
type BuildInput struct {
	Packages       []DetectedPackage
	RelatedBundles []RelatedBundle
	// BundleAction is the overall command action driving related-bundle
	// ordering (specification section 4.6: uninstall reverses order).
	BundleAction driver.Action
}

// buildState tracks the monotonically increasing checkpoint counter for
// one Build call. It is local to each call (never package-level) so
// concurrent Build calls, e.g. planning two bundles in the same
// process, don't interfere with each other's checkpoint numbering.
type buildState struct {
	nextCheckpoint uint32
}

func (s *buildState) checkpoint() uint32 {
	s.nextCheckpoint++
	return s.nextCheckpoint
}

// Build assembles a Plan from input, downgrading any package the
// dependency graph finds still-needed, inserting registration actions
// adjacent to install/uninstall, ordering related bundles per
// specification section 4.6, and finalizing by dropping no-op entries.
func Build(input BuildInput, dependencies *driver.DependencyGraph) (*Plan, error) {
	state := &buildState{}
	p := &Plan{}

	packages := make([]DetectedPackage, len(input.Packages))
	copy(packages, input.Packages)

	// Still-needed downgrade (specification section 4.6).
	if dependencies != nil {
		for i := range packages {
			for _, key := range packages[i].ProviderKeys {
				packages[i].Execute = dependencies.DowngradeIfStillNeeded(key, packages[i].Execute)
			}
		}
	}

	hasExecuteOrCacheWork := false
	for _, pkg := range packages {
		if pkg.Execute != driver.ActionNone {
			hasExecuteOrCacheWork = true
			break
		}
	}

	// Registration is scheduled before any execute work exists.
	if hasExecuteOrCacheWork {
		p.RegistrationActions = append(p.RegistrationActions, RegistrationAction{PackageID: "__bundle__", Register: true})
		p.RollbackRegistrationActions = append(p.RollbackRegistrationActions, RegistrationAction{PackageID: "__bundle__", Register: false})
	}

	before, after := orderRelatedBundles(input.RelatedBundles, input.BundleAction)

	for _, b := range before {
		appendRelatedBundleAction(p, state, b)
	}

	for _, pkg := range packages {
		appendPackageActions(p, state, pkg)
	}

	for _, b := range after {
		appendRelatedBundleAction(p, state, b)
	}

	finalize(p)
	p.OverallProgressTicksTotal = countTicks(p)
	return p, nil
}

// orderRelatedBundles implements specification section 4.6's
// related-bundle ordering rule: reverse declaration order before
// packages when uninstalling, forward order after packages otherwise;
// upgrade-related bundles always execute last within their group so
// downgrade refcounts resolve correctly.
func orderRelatedBundles(bundles []RelatedBundle, action driver.Action) (before, after []RelatedBundle) {
	var normal, upgrade []RelatedBundle
	for _, b := range bundles {
		if b.Upgrade {
			upgrade = append(upgrade, b)
		} else {
			normal = append(normal, b)
		}
	}

	if action == driver.ActionUninstall {
		reverseBundles(normal)
		reverseBundles(upgrade)
		before = append(append([]RelatedBundle{}, normal...), upgrade...)
		return before, nil
	}

	after = append(append([]RelatedBundle{}, normal...), upgrade...)
	return nil, after
}

func reverseBundles(b []RelatedBundle) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func appendRelatedBundleAction(p *Plan, state *buildState, b RelatedBundle) {
	ck := state.checkpoint()
	p.ExecuteActions = append(p.ExecuteActions, ExecuteAction{Kind: ExecCheckpoint, CheckpointID: ck})
	p.ExecuteActions = append(p.ExecuteActions, ExecuteAction{Kind: ExecCompatiblePackage, PackageID: b.ID})
}

func appendPackageActions(p *Plan, state *buildState, pkg DetectedPackage) {
	if pkg.Execute == driver.ActionNone {
		return
	}

	unregisterBefore := pkg.Execute == driver.ActionUninstall
	registerAfter := pkg.Execute == driver.ActionInstall

	if unregisterBefore {
		for _, key := range pkg.ProviderKeys {
			p.RegistrationActions = append(p.RegistrationActions, RegistrationAction{PackageID: pkg.Pkg.ID, ProviderKey: key, Register: false})
			p.RollbackRegistrationActions = append(p.RollbackRegistrationActions, RegistrationAction{PackageID: pkg.Pkg.ID, ProviderKey: key, Register: true})
		}
	}

	ck := state.checkpoint()
	p.ExecuteActions = append(p.ExecuteActions, ExecuteAction{Kind: ExecCheckpoint, CheckpointID: ck})
	p.RollbackActions = append(p.RollbackActions, ExecuteAction{Kind: ExecCheckpoint, CheckpointID: ck})

	kind := executeKindForDriver(pkg.Pkg.Kind)
	p.ExecuteActions = append(p.ExecuteActions, ExecuteAction{Kind: kind, PackageID: pkg.Pkg.ID, Action: pkg.Execute})
	p.RollbackActions = append(p.RollbackActions, ExecuteAction{Kind: kind, PackageID: pkg.Pkg.ID, Action: pkg.Rollback})

	p.CacheActions = append(p.CacheActions, CacheAction{Kind: CachePackageStart, PackageID: pkg.Pkg.ID})
	p.CacheActions = append(p.CacheActions, CacheAction{Kind: CacheCachePayload, PackageID: pkg.Pkg.ID, Path: pkg.Pkg.SourcePath})
	p.CacheActions = append(p.CacheActions, CacheAction{Kind: CachePackageStop, PackageID: pkg.Pkg.ID})
	p.RollbackCacheActions = append(p.RollbackCacheActions, CacheAction{Kind: CachePackageStop, PackageID: pkg.Pkg.ID})

	if registerAfter {
		for _, key := range pkg.ProviderKeys {
			p.RegistrationActions = append(p.RegistrationActions, RegistrationAction{PackageID: pkg.Pkg.ID, ProviderKey: key, Register: true})
			p.RollbackRegistrationActions = append(p.RollbackRegistrationActions, RegistrationAction{PackageID: pkg.Pkg.ID, ProviderKey: key, Register: false})
		}
	}

	p.CleanActions = append(p.CleanActions, CleanAction{PackageID: pkg.Pkg.ID})
}

func executeKindForDriver(kind driver.Kind) ExecuteActionKind {
	switch kind {
	case driver.KindMSI:
		return ExecMsiPackage
	case driver.KindMSP:
		return ExecMspTarget
	case driver.KindEXE:
		return ExecExePackage
	case driver.KindMSU:
		return ExecMsuPackage
	default:
		return ExecExePackage
	}
}

// finalize removes entries whose effective action is none, per
// specification section 4.6's finalization pass. Checkpoints and
// non-action entries (registration, waits) are never finalized away.
func finalize(p *Plan) {
	p.ExecuteActions = filterNoneActions(p.ExecuteActions)
	p.RollbackActions = filterNoneActions(p.RollbackActions)
}

func filterNoneActions(actions []ExecuteAction) []ExecuteAction {
	kept := actions[:0]
	for _, a := range actions {
		if isActionBearing(a.Kind) && a.Action == driver.ActionNone {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

func isActionBearing(k ExecuteActionKind) bool {
	switch k {
	case ExecExePackage, ExecMsiPackage, ExecMspTarget, ExecMsuPackage:
		return true
	default:
		return false
	}
}

func countTicks(p *Plan) int {
	ticks := 0
	for _, a := range p.CacheActions {
		if a.Kind == CachePackageStop {
			ticks++
		}
	}
	for _, a := range p.ExecuteActions {
		if isActionBearing(a.Kind) {
			ticks++
		}
	}
	return ticks
}
