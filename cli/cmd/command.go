// Package cmd turns a bundleforge process's raw argument vector into a
// Command the engine can act on, and wires that Command to the engine's
// detect/plan/apply/layout verbs.
//
// The parser in this package is grounded on
// original_source/src/burn/engine/core.cpp's ParseCommandLine: a single
// left-to-right scan of argv, not a registered-flag table. That shape
// does not fit urfave/cli/v2's per-flag model (switches accept three
// interchangeable leader characters, some consume a following bare
// positional, others assign with "=" inside one token, and a bare
// NAME=VALUE token with no leader at all sets a variable), so it is kept
// as its own scanner; app.go still builds one *cli.App for process
// bootstrapping and the exit handler pattern quarry/cmd/quarry/main.go
// uses, with its built-in --version/--help flags hidden.
package cmd

// Action is the top-level action requested, mapping BOOTSTRAPPER_ACTION.
type Action int

const (
	ActionUnknown Action = iota
	ActionHelp
	ActionLayout
	ActionUninstall
	ActionRepair
	ActionModify
	ActionInstall
)

func (a Action) String() string {
	switch a {
	case ActionHelp:
		return "help"
	case ActionLayout:
		return "layout"
	case ActionUninstall:
		return "uninstall"
	case ActionRepair:
		return "repair"
	case ActionModify:
		return "modify"
	case ActionInstall:
		return "install"
	default:
		return "unknown"
	}
}

// Display is the requested UI level, mapping BOOTSTRAPPER_DISPLAY.
type Display int

const (
	DisplayUnknown Display = iota
	DisplayNone
	DisplayPassive
	DisplayFull
	DisplayEmbedded
)

// Restart is the requested restart policy, mapping BOOTSTRAPPER_RESTART.
type Restart int

const (
	RestartUnknown Restart = iota
	RestartNever
	RestartPrompt
	RestartAutomatic
	RestartAlways
)

// RelationType records which related-bundle role launched this process,
// mapping BOOTSTRAPPER_RELATION_TYPE.
type RelationType int

const (
	RelationNone RelationType = iota
	RelationDetect
	RelationUpgrade
	RelationAddon
	RelationPatch
	RelationUpdate
)

// AUPauseAction is the requested Windows Update pause behavior, mapping
// BURN_AU_PAUSE_ACTION.
type AUPauseAction int

const (
	AUPauseIfElevated AUPauseAction = iota
	AUPauseNone
	AUPauseIfElevatedNoResume
)

// Mode records which of the engine's three processes this invocation is
// running as, mapping BURN_MODE.
type Mode int

const (
	ModeUntrusted Mode = iota
	ModeNormal
	ModeElevated
	ModeEmbedded
	ModeRunOnce
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeElevated:
		return "elevated"
	case ModeEmbedded:
		return "embedded"
	case ModeRunOnce:
		return "runonce"
	default:
		return "untrusted"
	}
}

// PipeConnection is the (name, secret, parent pid) triple the
// -elevated and -burn.embedded switches each carry, matching
// ParsePipeConnection in core.cpp.
type PipeConnection struct {
	Name            string
	Secret          string
	ParentProcessID int
}

// Variable is one NAME=VALUE pair set from the command line.
type Variable struct {
	Name  string
	Value string
}

// Command is the parsed result of one process's argv, generalizing
// BOOTSTRAPPER_COMMAND plus the engine-state out-parameters
// ParseCommandLine fills alongside it.
type Command struct {
	Action               Action
	Display              Display
	Restart              Restart
	RelationType         RelationType
	AutomaticUpdates     AUPauseAction
	DisableSystemRestore bool
	DisableUnelevate     bool
	Passthrough          bool
	Mode                 Mode

	LayoutDir string

	OriginalSource     string
	SourceProcessPath  string // from -burn.clean.room=<path>
	ActiveParent       string
	ActiveParentIsSet  bool
	IgnoreDependencies string
	Ancestors          string

	LogPath   string
	LogAppend bool

	CompanionConnection *PipeConnection // -elevated
	EmbeddedConnection  *PipeConnection // -burn.embedded

	Variables []Variable

	// UnknownArgs collects switches and bare tokens this scan did not
	// recognize, in argv order, the way core.cpp forwards unrecognized
	// arguments to the bootstrapper application's own command line.
	UnknownArgs []string

	// SanitizedCommandLine is argv re-joined with hidden-variable values
	// masked, suitable for logging.
	SanitizedCommandLine string
}

// NewCommand returns a Command with the defaults ParseCommandLine applies
// when nothing on the command line overrides them.
func NewCommand() *Command {
	return &Command{
		Action:           ActionUnknown,
		Display:          DisplayUnknown,
		Restart:          RestartUnknown,
		AutomaticUpdates: AUPauseIfElevated,
		Mode:             ModeUntrusted,
	}
}

// applyDefaults fills in the fields ParseCommandLine defaults once
// scanning finishes, per core.cpp's tail of ParseCommandLine.
func (c *Command) applyDefaults() {
	if c.Mode == ModeEmbedded {
		c.Display = DisplayEmbedded
	}
	if c.Action == ActionUnknown {
		c.Action = ActionInstall
	}
	if c.Display == DisplayUnknown {
		c.Display = DisplayFull
	}
	if c.Restart == RestartUnknown {
		c.Restart = RestartPrompt
	}
}
