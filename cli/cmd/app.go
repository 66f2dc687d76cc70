package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/bundleforge/apply"
	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/driver"
	"github.com/pithecene-io/bundleforge/engine"
	"github.com/pithecene-io/bundleforge/log"
	"github.com/pithecene-io/bundleforge/vars"
)

// requestForAction maps a top-level Action onto the per-package
// disposition every authored package is requested into, per
// specification section 4.6's "bundle action sets every package's
// default request" rule. Individual feature/package-level overrides
// (MSI feature state, per-package REQUEST properties) are layered on top
// by the caller before PlanAction runs; this only supplies the default.
func requestForAction(a Action) driver.Request {
	switch a {
	case ActionUninstall:
		return driver.RequestAbsent
	case ActionRepair:
		return driver.RequestRepair
	case ActionModify:
		return driver.RequestNone
	default:
		return driver.RequestPresent
	}
}

// planActionFor maps a top-level Action onto the plan-building action,
// per specification section 4.6.
func planActionFor(a Action) driver.Action {
	switch a {
	case ActionUninstall:
		return driver.ActionUninstall
	case ActionRepair:
		return driver.ActionRepair
	case ActionModify:
		return driver.ActionModify
	default:
		return driver.ActionInstall
	}
}

// Runner executes one already-parsed Command to completion and returns
// the process exit code the specification's external-interfaces section
// defines (ERROR_SUCCESS and friends).
type Runner struct {
	Engine *engine.Engine
	Store  *vars.Store
	Log    *log.SugaredLogger
	Report func(text string)

	// MaxForcedRestarts overrides maxForcedRestartsDefault when a launch
	// profile configures one; zero keeps the conservative default.
	MaxForcedRestarts int
}

// Execute applies c's variable assignments, runs detect, plans, and
// applies, reporting plain-text progress through r.Report. Layout and
// help short-circuit before any package verb runs.
func (r *Runner) Execute(ctx context.Context, c *Command) int {
	for _, v := range c.Variables {
		if err := r.Store.SetString(v.Name, v.Value, false, vars.AnyNonBuiltin); err != nil {
			r.logError("set variable", err)
			return exitForError(err)
		}
	}

	switch c.Action {
	case ActionHelp:
		r.Report(helpText())
		return 0

	case ActionLayout:
		r.logError("layout", errors.New("layout requires a bundle path supplied by the caller"))
		return 1
	}

	detected, err := r.Engine.Detect(ctx)
	if err != nil {
		r.logError("detect", err)
		return exitForError(err)
	}

	req := requestForAction(c.Action)
	for _, dp := range detected {
		r.Engine.SetRequested(dp.Pkg.ID, req)
	}

	if _, err := r.Engine.PlanAction(ctx, planActionFor(c.Action)); err != nil {
		r.logError("plan", err)
		return exitForError(err)
	}

	maxForcedRestarts := r.MaxForcedRestarts
	if maxForcedRestarts == 0 {
		maxForcedRestarts = maxForcedRestartsDefault
	}
	result, err := r.Engine.Apply(ctx, r.reportFunc(), maxForcedRestarts)
	if err != nil && result == nil {
		r.logError("apply", err)
		return exitForError(err)
	}

	return exitCodeForResult(result)
}

// maxForcedRestartsDefault bounds how many times apply will re-run a
// failed package execution whose driver asks for a retry before that
// failure is surfaced; zero means such a failure is never retried. It
// applies when a profile doesn't override it.
const maxForcedRestartsDefault = 0

// reportFunc adapts Runner.Report (a plain string sink, e.g. stdout or a
// future TUI's input channel) to apply.ReportFunc.
func (r *Runner) reportFunc() apply.ReportFunc {
	return func(p apply.Progress) error {
		if r.Report != nil {
			r.Report(fmt.Sprintf("[%s] %d/%d %s: %s", p.Phase, p.TicksDone, p.TicksTotal, p.PackageID, p.Text))
		}
		return nil
	}
}

// exitCodeForResult maps an apply.Result onto the specification's exit
// codes, mirroring engine.exitCodeFor for the caller-side Result this
// package receives back from Engine.Apply.
func exitCodeForResult(result *apply.Result) int {
	if result == nil {
		return 1603
	}
	switch result.Restart {
	case driver.RestartRequired:
		return 3010
	case driver.RestartInitiated:
		return 1641
	}
	switch result.Outcome {
	case apply.OutcomeFailed:
		return 1603
	case apply.OutcomeUserExit:
		return 1602
	default:
		return 0
	}
}

func (r *Runner) logError(op string, err error) {
	if r.Log != nil {
		r.Log.Errorf("%s failed: %v", op, err)
	}
}

func exitForError(err error) int {
	var be *bferr.Error
	if errors.As(err, &be) {
		switch be.Kind {
		case bferr.RebootRequired:
			return 3010
		case bferr.RebootInitiated:
			return 1641
		case bferr.UserExit:
			return 1602
		}
	}
	return 1603
}

// NewApp builds the urfave/cli/v2 application shell bundleforge's
// process bootstraps with, matching quarry/cmd/quarry/main.go's
// ExitErrHandler pattern. Argv is not modeled as urfave flags: Action
// hands the full, unparsed slice straight to ParseCommandLine (see the
// package doc comment), since the switch grammar doesn't fit a
// registered-flag table.
func NewApp(version, commit string, run func(c *Command) int) *cli.App {
	return &cli.App{
		Name:            "bundleforge",
		Usage:           "chained installer bundle engine",
		Version:         fmt.Sprintf("%s (commit: %s)", version, commit),
		HideHelp:        true,
		HideVersion:     true,
		ExitErrHandler:  exitErrHandler,
		Action: func(c *cli.Context) error {
			parsed, err := ParseCommandLine(c.Args().Slice(), nil)
			if err != nil {
				return cli.Exit(err.Error(), 1603)
			}
			return cli.Exit("", run(parsed))
		},
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func helpText() string {
	return `bundleforge [options] [NAME=VALUE ...]

  -l, -log <path>           write a log file, overwriting any existing one
  -log+ <path>              write a log file, appending to any existing one
  -?, -h, -help             show this help and exit
  -q, -quiet, -s, -silent   suppress all UI
  -passive                  show progress only, no prompts
  -norestart                never restart automatically
  -forcerestart             always restart automatically
  -promptrestart            prompt before restarting
  -layout [dir]             extract payloads to dir without installing
  -uninstall                remove the bundle
  -repair                   repair the bundle
  -modify                   change installed feature selection
  -package, -update         install or update the bundle (default)
  -originalsource <path>    record where this bundle was launched from
  NAME=VALUE                set a bundle variable
`
}
