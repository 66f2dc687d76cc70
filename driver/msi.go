package driver

import (
	"context"
	"fmt"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/vars"
)

// NativeInstallerDriver implements the msi package kind: product-code
// detection, a per-feature action table, and execution via an external
// installer command line. Grounded on specification section 4.5's
// description of feature state machines translated "as in the MSI
// reference"; DB stands in for the Windows Installer engine's own
// product/feature queries (see database.go).
type NativeInstallerDriver struct {
	DB     ProductDatabase
	Runner ProcessRunner
}

func (d *NativeInstallerDriver) runner() ProcessRunner {
	if d.Runner != nil {
		return d.Runner
	}
	return ExecRunner{}
}

func (d *NativeInstallerDriver) Detect(ctx context.Context, pkg *Package, store *vars.Store) (State, error) {
	if d.DB == nil {
		return StateUnknown, bferr.New(bferr.InvalidArgument, "driver.NativeInstallerDriver.Detect")
	}
	state, err := d.DB.ProductState(pkg.ProductCode)
	if err != nil {
		return StateUnknown, bferr.Wrap(bferr.IO, "driver.NativeInstallerDriver.Detect", err)
	}
	return state, nil
}

// Plan derives the package-level action from (detected, requested),
// and independently derives each feature's FeatureAction via
// planFeatureAction for logging/diagnostics; features do not change the
// package-level execute/rollback pair, which spec.md section 4.5 treats
// as the installer's own responsibility once invoked with the right
// feature states on its command line.
func (d *NativeInstallerDriver) Plan(pkg *Package, requested Request, detected State) (Action, Action, error) {
	execute, rollback := planAction(detected, requested)
	for i := range pkg.Features {
		pkg.Features[i].Action = planFeatureAction(detected, requested)
	}
	return execute, rollback, nil
}

func planAction(detected State, requested Request) (Action, Action) {
	switch requested {
	case RequestNone:
		return ActionNone, ActionNone
	case RequestRepair:
		if detected >= StatePresent {
			return ActionRepair, ActionNone
		}
		return ActionInstall, ActionUninstall
	case RequestCache:
		return ActionNone, ActionNone
	case RequestPresent:
		switch {
		case detected >= StatePresent:
			return ActionNone, ActionNone
		case detected == StateObsolete || detected == StateSuperseded:
			return ActionMinorUpgrade, ActionUninstall
		default:
			return ActionInstall, ActionUninstall
		}
	case RequestAbsent, RequestForceAbsent:
		if detected >= StateCached {
			return ActionUninstall, ActionInstall
		}
		return ActionNone, ActionNone
	default:
		return ActionNone, ActionNone
	}
}

func planFeatureAction(detected State, requested Request) FeatureAction {
	switch requested {
	case RequestPresent:
		if detected >= StatePresent {
			return FeatureReinstall
		}
		return FeatureAddLocal
	case RequestAbsent, RequestForceAbsent:
		return FeatureRemove
	case RequestRepair:
		return FeatureReinstall
	default:
		return FeatureNone
	}
}

func (d *NativeInstallerDriver) Execute(ctx context.Context, pkg *Package, action Action, store *vars.Store, rollback bool, onMessage MessageFunc) (ExecuteResult, error) {
	if action == ActionNone {
		return ExecuteResult{}, nil
	}

	cmdLine := pkg.CommandLine
	if cmdLine == "" {
		cmdLine = fmt.Sprintf("echo install %s", pkg.ProductCode)
	}

	if onMessage != nil {
		if err := onMessage(Message{Kind: "progress", Progress: 0}); err != nil {
			return ExecuteResult{}, err
		}
	}

	exitCode, err := d.runner().Run(ctx, cmdLine, onMessage)
	if err != nil {
		return ExecuteResult{}, err
	}

	if onMessage != nil {
		if err := onMessage(Message{Kind: "progress", Progress: 100}); err != nil {
			return ExecuteResult{}, err
		}
	}

	return classifyExitCode(exitCode, action, "driver.NativeInstallerDriver.Execute")
}

// classifyExitCode normalizes a raw process exit code into an
// ExecuteResult, treating the Windows Installer reboot sentinels
// (ERROR_SUCCESS_REBOOT_REQUIRED = 3010, ERROR_SUCCESS_REBOOT_INITIATED
// = 1641) as terminal-success restarts rather than failures, matching
// elevation.Result's own normalization of the same family of codes.
func classifyExitCode(exitCode int, action Action, op string) (ExecuteResult, error) {
	switch exitCode {
	case 0:
		return ExecuteResult{}, nil
	case 3010:
		return ExecuteResult{Restart: RestartRequired}, nil
	case 1641:
		return ExecuteResult{Restart: RestartInitiated}, nil
	default:
		return ExecuteResult{}, bferr.New(bferr.ChildFailed, op).WithBundle(fmt.Sprintf("exit=%d action=%s", exitCode, action))
	}
}
