package driver

import (
	"context"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/vars"
)

// ExeDriver implements the exe package kind: condition-based detection,
// forward-to-process execution with a 0/100 progress pair bracketing
// the call rather than progress reported during it, per specification
// section 4.5.
type ExeDriver struct {
	Runner ProcessRunner
}

func (d *ExeDriver) runner() ProcessRunner {
	if d.Runner != nil {
		return d.Runner
	}
	return ExecRunner{}
}

func (d *ExeDriver) Detect(ctx context.Context, pkg *Package, store *vars.Store) (State, error) {
	if pkg.Condition == "" {
		return StateAbsent, nil
	}
	present, err := EvaluateCondition(pkg.Condition, store)
	if err != nil {
		return StateUnknown, err
	}
	if present {
		return StatePresent, nil
	}
	return StateAbsent, nil
}

func (d *ExeDriver) Plan(pkg *Package, requested Request, detected State) (Action, Action, error) {
	switch requested {
	case RequestPresent:
		if detected >= StatePresent {
			return ActionNone, ActionNone, nil
		}
		return ActionInstall, ActionUninstall, nil
	case RequestAbsent, RequestForceAbsent:
		if detected >= StatePresent {
			return ActionUninstall, ActionInstall, nil
		}
		return ActionNone, ActionNone, nil
	case RequestRepair:
		return ActionRepair, ActionNone, nil
	default:
		return ActionNone, ActionNone, nil
	}
}

func (d *ExeDriver) Execute(ctx context.Context, pkg *Package, action Action, store *vars.Store, rollback bool, onMessage MessageFunc) (ExecuteResult, error) {
	if action == ActionNone {
		return ExecuteResult{}, nil
	}
	if pkg.CommandLine == "" {
		return ExecuteResult{}, bferr.New(bferr.InvalidArgument, "driver.ExeDriver.Execute").WithBundle(pkg.ID)
	}

	// Progress is a 0/100 pair around the call, never during it (spec.md
	// section 4.5): an exe package's own progress reporting, if any,
	// rides the "log" message kind instead of "progress".
	if onMessage != nil {
		if err := onMessage(Message{Kind: "progress", Progress: 0}); err != nil {
			return ExecuteResult{}, err
		}
	}

	exitCode, err := d.runner().Run(ctx, pkg.CommandLine, func(m Message) error {
		if onMessage == nil {
			return nil
		}
		if m.Kind == "progress" {
			m.Kind = "log"
		}
		return onMessage(m)
	})
	if err != nil {
		return ExecuteResult{}, err
	}

	if onMessage != nil {
		if err := onMessage(Message{Kind: "progress", Progress: 100}); err != nil {
			return ExecuteResult{}, err
		}
	}

	return classifyExitCode(exitCode, action, "driver.ExeDriver.Execute")
}
