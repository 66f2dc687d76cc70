// Package driver implements the per-package-kind detect/plan/execute
// contract: one Driver per authored package kind (native installer,
// patch, executable, OS update), selected by Kind the way quarry's
// policy.Policy implementations (strict, buffered, streaming) are
// selected by name in cli/cmd/run.go. A Driver never orders work across
// packages; that is package plan's job.
package driver

import (
	"context"

	"github.com/pithecene-io/bundleforge/vars"
)

// Kind identifies which driver handles a package.
type Kind int

const (
	KindUnknown Kind = iota
	KindMSI          // native installer
	KindMSP          // patch
	KindEXE           // bundled executable
	KindMSU           // operating-system update
)

func (k Kind) String() string {
	switch k {
	case KindMSI:
		return "msi"
	case KindMSP:
		return "msp"
	case KindEXE:
		return "exe"
	case KindMSU:
		return "msu"
	default:
		return "unknown"
	}
}

// State is a package or feature's detected install state. Ordering is
// significant: higher values mean "more installed". Patch detection
// takes the MIN across a patch's target products; planning takes the
// MAX of per-target actions, both relying on this ordering holding.
type State int

const (
	StateUnknown State = iota
	StateAbsent
	StateCached
	StateObsolete
	StateSuperseded
	StatePresent
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateCached:
		return "cached"
	case StateObsolete:
		return "obsolete"
	case StateSuperseded:
		return "superseded"
	case StatePresent:
		return "present"
	default:
		return "unknown"
	}
}

// MinState returns the least-installed of a and b.
func MinState(a, b State) State {
	if a < b {
		return a
	}
	return b
}

// MaxAction returns the "stronger" of two actions, used when merging
// per-target patch actions into one package-level action. Ordering
// follows the Action declaration order below, which runs from least to
// most work required.
func MaxAction(a, b Action) Action {
	if a > b {
		return a
	}
	return b
}

// Action is the package-level action a plan schedules, per specification
// section 4.6.
type Action int

const (
	ActionNone Action = iota
	ActionUninstall
	ActionInstall
	ActionAdminInstall
	ActionModify
	ActionRepair
	ActionMinorUpgrade
	ActionMajorUpgrade
	ActionPatch
)

func (a Action) String() string {
	switch a {
	case ActionUninstall:
		return "uninstall"
	case ActionInstall:
		return "install"
	case ActionAdminInstall:
		return "admin_install"
	case ActionModify:
		return "modify"
	case ActionRepair:
		return "repair"
	case ActionMinorUpgrade:
		return "minor_upgrade"
	case ActionMajorUpgrade:
		return "major_upgrade"
	case ActionPatch:
		return "patch"
	default:
		return "none"
	}
}

// Request is the caller-requested disposition for a package, per
// specification section 4.6.
type Request int

const (
	RequestNone Request = iota
	RequestForceAbsent
	RequestAbsent
	RequestCache
	RequestPresent
	RequestRepair
)

// FeatureAction is the native-installer feature sub-state-machine's
// action table, per specification section 4.5.
type FeatureAction int

const (
	FeatureNone FeatureAction = iota
	FeatureAddLocal
	FeatureAddSource
	FeatureAddDefault
	FeatureReinstall
	FeatureAdvertise
	FeatureRemove
)

// RestartKind normalizes an execute outcome's restart implication,
// mirroring elevation.Result's reboot_required/reboot_initiated split so
// a driver's rollback-free outcome reaches the apply engine in the same
// shape a companion callback would.
type RestartKind int

const (
	RestartNone RestartKind = iota
	RestartRequired
	RestartInitiated
)

// ExecuteResult is what Driver.Execute reports back to the apply engine
// about how the action went.
type ExecuteResult struct {
	Retry   bool
	Suspend bool
	Restart RestartKind
}

// Feature is one authored MSI-style feature entry for a native-installer
// package.
type Feature struct {
	Name   string
	Action FeatureAction
}

// Package is the authored, manifest-level description of one bundled
// package, independent of its detected or planned state.
type Package struct {
	ID          string
	Kind        Kind
	Vital       bool
	PerMachine  bool
	ProductCode string
	UpgradeCode string
	PatchCode   string

	// Targets lists explicitly authored target product codes for a
	// patch package. Empty means "derive targets at detect time"
	// (specification section 4.5, patch driver step 1).
	Targets []string

	// Condition is the authored boolean expression an exe package's
	// detection evaluates against the variable store.
	Condition string

	// Features lists the authored MSI feature entries a native-installer
	// package's Plan walks to derive each feature's FeatureAction.
	Features []Feature

	SourcePath   string
	CacheID      string
	CommandLine  string
	ServiceName  string // msu driver: OS update service to enable/start
}

// Message is a progress or diagnostic callback a driver emits during
// Execute. Kind mirrors the elevation-plane callback catalogue
// (execute_progress, execute_msi_message, execute_files_in_use) without
// depending on package elevation, since a driver can run unelevated too.
type Message struct {
	Kind     string
	Progress int // 0-100
	Text     string
}

// MessageFunc receives driver progress/diagnostic callbacks during
// Execute. Returning an error aborts the in-flight action.
type MessageFunc func(Message) error

// Driver implements detection, planning, and execution for one package
// kind.
type Driver interface {
	// Detect returns the package's current install state.
	Detect(ctx context.Context, pkg *Package, store *vars.Store) (State, error)

	// Plan derives the execute and rollback actions for requested,
	// given the package's current detected state.
	Plan(pkg *Package, requested Request, detected State) (execute, rollback Action, err error)

	// Execute carries out action (or, if rollback is true, undoes a
	// previously executed action), reporting progress via onMessage.
	Execute(ctx context.Context, pkg *Package, action Action, store *vars.Store, rollback bool, onMessage MessageFunc) (ExecuteResult, error)
}

// ForKind returns the driver implementation for kind, or nil if kind has
// no driver (KindUnknown).
func ForKind(kind Kind, db ProductDatabase, patchDB PatchDatabase) Driver {
	switch kind {
	case KindMSI:
		return &NativeInstallerDriver{DB: db}
	case KindMSP:
		return &PatchDriver{DB: db, Patches: patchDB}
	case KindEXE:
		return &ExeDriver{}
	case KindMSU:
		return &OSUpdateDriver{}
	default:
		return nil
	}
}
