package driver

import (
	"context"
	"fmt"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/vars"
)

// Exit codes the OS-native update installer can return, normalized per
// specification section 4.5. The WU_S_* values are named after the
// Windows Update success/error codes Burn itself recognizes; this
// module has no access to a real update service, so ServiceController
// below is an injectable stand-in (see its doc comment).
const (
	errSuccessRebootRequired = 3010
	wuSRebootRequired        = 2359302 // WU_S_REBOOT_REQUIRED, 0x00240006
	wuSAlreadyInstalled      = 2359303 // WU_S_ALREADY_INSTALLED, 0x00240007
)

// ServiceController enables, starts, and restores the OS update
// service's start type around an OS-update package's execution, per
// specification section 4.5 ("temporarily enabling, and if necessary
// starting, the OS update service; the previous service start-type is
// restored on exit"). No portable cross-platform equivalent of Windows'
// service control manager exists, so NoopServiceController is the
// default: it reports no prior state and does nothing, the same way
// vars/builtins.go's folder variables stand in for Windows shell folder
// APIs with portable paths rather than querying a Windows-only source.
type ServiceController interface {
	EnableAndStart(name string) (previousStartType string, err error)
	Restore(name, previousStartType string) error
}

// NoopServiceController is the default ServiceController: a no-op on
// every platform this driver actually runs on.
type NoopServiceController struct{}

func (NoopServiceController) EnableAndStart(name string) (string, error) { return "", nil }
func (NoopServiceController) Restore(name, previousStartType string) error { return nil }

// OSUpdateDriver implements the msu package kind.
type OSUpdateDriver struct {
	Runner   ProcessRunner
	Services ServiceController
}

func (d *OSUpdateDriver) runner() ProcessRunner {
	if d.Runner != nil {
		return d.Runner
	}
	return ExecRunner{}
}

func (d *OSUpdateDriver) services() ServiceController {
	if d.Services != nil {
		return d.Services
	}
	return NoopServiceController{}
}

func (d *OSUpdateDriver) Detect(ctx context.Context, pkg *Package, store *vars.Store) (State, error) {
	// The OS update installer itself is the source of truth for
	// whether an update is applied; without a query API this engine
	// can only trust prior apply history, which lives in the package's
	// cached execute-state, not in this driver. Absent is the safe
	// default: it causes a re-attempted install, which the updater's
	// own WU_S_ALREADY_INSTALLED normalization (see Execute) turns into
	// a harmless success rather than a failure.
	return StateAbsent, nil
}

func (d *OSUpdateDriver) Plan(pkg *Package, requested Request, detected State) (Action, Action, error) {
	switch requested {
	case RequestPresent:
		if detected >= StatePresent {
			return ActionNone, ActionNone, nil
		}
		return ActionInstall, ActionNone, nil
	case RequestAbsent, RequestForceAbsent:
		// OS updates generally cannot be rolled back through this
		// driver; uninstall is left to the OS's own update history UI.
		return ActionNone, ActionNone, nil
	default:
		return ActionNone, ActionNone, nil
	}
}

func (d *OSUpdateDriver) Execute(ctx context.Context, pkg *Package, action Action, store *vars.Store, rollback bool, onMessage MessageFunc) (ExecuteResult, error) {
	if action == ActionNone {
		return ExecuteResult{}, nil
	}

	var previousStartType string
	if pkg.ServiceName != "" {
		pt, err := d.services().EnableAndStart(pkg.ServiceName)
		if err != nil {
			return ExecuteResult{}, bferr.Wrap(bferr.IO, "driver.OSUpdateDriver.Execute", err)
		}
		previousStartType = pt
		defer func() { _ = d.services().Restore(pkg.ServiceName, previousStartType) }()
	}

	cmdLine := pkg.CommandLine
	if cmdLine == "" {
		cmdLine = fmt.Sprintf("echo msu %s", pkg.ID)
	}

	exitCode, err := d.runner().Run(ctx, cmdLine, onMessage)
	if err != nil {
		return ExecuteResult{}, err
	}

	switch exitCode {
	case 0, wuSAlreadyInstalled:
		return ExecuteResult{}, nil
	case errSuccessRebootRequired, wuSRebootRequired:
		return ExecuteResult{Restart: RestartRequired}, nil
	default:
		return ExecuteResult{}, bferr.New(bferr.ChildFailed, "driver.OSUpdateDriver.Execute").WithBundle(fmt.Sprintf("exit=%d", exitCode))
	}
}
