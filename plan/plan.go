// Package plan builds the immutable ordered action lists specification
// section 4.6 and section 3's Plan data model describe, from each
// package's already-detected state and driver-derived
// (execute, rollback) pair. Plan never calls into a driver's Execute;
// it only sequences what driver.Plan already decided, plus the
// cross-package concerns (registration adjacency, related-bundle
// ordering, dependency "still needed" downgrades, MSP action merging)
// that no single driver can see on its own.
package plan

import "github.com/pithecene-io/bundleforge/driver"

// CacheActionKind enumerates the cache-phase action catalogue from
// specification section 4.7.
type CacheActionKind int

const (
	CacheCheckpoint CacheActionKind = iota
	CacheLayoutBundle
	CachePackageStart
	CacheAcquireContainer
	CacheExtractContainer
	CacheLayoutContainer
	CacheAcquirePayload
	CacheCachePayload
	CacheLayoutPayload
	CachePackageStop
	CacheSignalSyncpoint
)

// CacheAction is one entry in a cache or rollback-cache action list.
type CacheAction struct {
	Kind         CacheActionKind
	CheckpointID uint32
	PackageID    string
	ContainerID  string
	PayloadKey   string
	Path         string
	TryCount     int
	// ExpectedSize and ExpectedHash are the cache_payload verification
	// inputs from the authored manifest (specification section 4.7: "a
	// hash or size verification occurs at cache_payload").
	ExpectedSize   int64
	ExpectedHash   string
	SyncpointEvent string
}

// ExecuteActionKind enumerates the execute-phase action catalogue from
// specification section 4.7.
type ExecuteActionKind int

const (
	ExecCheckpoint ExecuteActionKind = iota
	ExecWaitSyncpoint
	ExecExePackage
	ExecMsiPackage
	ExecMspTarget
	ExecMsuPackage
	ExecPackageProvider
	ExecPackageDependency
	ExecCompatiblePackage
	ExecRegistration
	ExecRollbackBoundary
)

// ExecuteAction is one entry in an execute or rollback action list.
type ExecuteAction struct {
	Kind           ExecuteActionKind
	CheckpointID   uint32
	SyncpointEvent string
	PackageID      string
	// PatchIDs is populated for ExecMspTarget: the ordered set of
	// patches merged against the same target product (specification
	// section 4.5, "MSP actions targeting the same product are
	// merged into one ordered target-action").
	PatchIDs []string
	Action   driver.Action
	// KeepRegistration is ExecRegistration's payload: whether bundle
	// registration survives an uninstall (true) or is removed (false).
	KeepRegistration bool
	// Vital marks an ExecRollbackBoundary as one that ends the apply
	// with failure rather than letting rollback skip past it.
	Vital bool
}

// CleanAction is a best-effort Phase C cache-removal entry.
type CleanAction struct {
	PackageID string
}

// RegistrationAction is a dependency-provider register/unregister
// entry, inserted adjacent to a package's execute action per
// specification section 4.6.
type RegistrationAction struct {
	PackageID   string
	ProviderKey string
	Register    bool // true: register (after install); false: unregister (before uninstall)
}

// Plan is the immutable output of Build.
type Plan struct {
	CacheActions                 []CacheAction
	RollbackCacheActions         []CacheAction
	ExecuteActions                []ExecuteAction
	RollbackActions               []ExecuteAction
	CleanActions                  []CleanAction
	RegistrationActions           []RegistrationAction
	RollbackRegistrationActions   []RegistrationAction
	OverallProgressTicksTotal    int
}
