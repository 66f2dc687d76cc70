package cmd

import (
	"strconv"
	"strings"

	"github.com/pithecene-io/bundleforge/bferr"
)

// burnPrefix namespaces the engine's private switches, per
// BURN_COMMANDLINE_SWITCH_PREFIX in core.cpp.
const burnPrefix = "burn."

// IsHiddenFunc reports whether name is a variable the store already
// knows to redact from logs, mirroring the VariableIsHidden lookup
// ParseCommandLine makes while building its sanitized command line.
type IsHiddenFunc func(name string) bool

// ParseCommandLine scans args (excluding argv[0]) left to right,
// matching each switch the way core.cpp's ParseCommandLine does: leader
// characters '-', '/', and "--" are interchangeable, matching is
// case-insensitive, and a token with neither leader is either a bare
// NAME=VALUE variable assignment or an unrecognized positional.
func ParseCommandLine(args []string, isHidden IsHiddenFunc) (*Command, error) {
	if isHidden == nil {
		isHidden = func(string) bool { return false }
	}

	c := NewCommand()
	var sanitized []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		sanitizedArg := arg
		unknown := false

		if name, ok := switchName(arg); ok {
			switch {
			case eq(name, "l") || eq(name, "log"):
				c.LogAppend = false
				next, err := requireNext(args, &i, "-l")
				if err != nil {
					return nil, err
				}
				c.LogPath = next

			case eq(name, "log+"):
				next, err := requireNext(args, &i, "-log+")
				if err != nil {
					return nil, err
				}
				c.LogPath = next
				c.LogAppend = true

			case eq(name, "?") || eq(name, "h") || eq(name, "help"):
				c.Action = ActionHelp

			case eq(name, "q") || eq(name, "quiet") || eq(name, "s") || eq(name, "silent"):
				c.Display = DisplayNone
				if c.Restart == RestartUnknown {
					c.Restart = RestartAutomatic
				}

			case eq(name, "passive"):
				c.Display = DisplayPassive
				if c.Restart == RestartUnknown {
					c.Restart = RestartAutomatic
				}

			case eq(name, "norestart"):
				c.Restart = RestartNever

			case eq(name, "forcerestart"):
				c.Restart = RestartAlways

			case eq(name, "promptrestart"):
				c.Restart = RestartPrompt

			case eq(name, "layout"):
				if c.Action != ActionHelp {
					c.Action = ActionLayout
				}
				if i+1 < len(args) && !hasLeader(args[i+1]) {
					i++
					c.LayoutDir = args[i]
					sanitizedArg = joinArg(arg, args[i])
				}

			case eq(name, "uninstall"):
				if c.Action != ActionHelp {
					c.Action = ActionUninstall
				}

			case eq(name, "repair"):
				if c.Action != ActionHelp {
					c.Action = ActionRepair
				}

			case eq(name, "modify"):
				if c.Action != ActionHelp {
					c.Action = ActionModify
				}

			case eq(name, "package") || eq(name, "update"):
				if c.Action == ActionUnknown {
					c.Action = ActionInstall
				}

			case eq(name, "noaupause"):
				c.AutomaticUpdates = AUPauseNone

			case eq(name, "keepaupaused"):
				if c.AutomaticUpdates != AUPauseNone {
					c.AutomaticUpdates = AUPauseIfElevatedNoResume
				}

			case eq(name, "disablesystemrestore"):
				c.DisableSystemRestore = true

			case eq(name, "originalsource"):
				next, err := requireNext(args, &i, "-originalsource")
				if err != nil {
					return nil, err
				}
				c.OriginalSource = next

			case eq(name, "parent"):
				next, err := requireNext(args, &i, "-parent")
				if err != nil {
					return nil, err
				}
				c.ActiveParent = next
				c.ActiveParentIsSet = true

			case eq(name, "parent:none"):
				c.ActiveParent = ""
				c.ActiveParentIsSet = true

			case eq(name, "elevated"):
				conn, consumed, err := requirePipeConnection(args, i, "-elevated")
				if err != nil {
					return nil, err
				}
				if c.Mode != ModeUntrusted {
					return nil, bferr.New(bferr.InvalidArgument, "cmd.ParseCommandLine")
				}
				c.Mode = ModeElevated
				c.CompanionConnection = conn
				i += consumed

			case hasPrefixFold(name, burnPrefix):
				sub := name[len(burnPrefix):]

				switch {
				case hasPrefixFold(sub, "clean.room="):
					value := sub[len("clean.room="):]
					if value == "" {
						return nil, bferr.New(bferr.InvalidArgument, "cmd.ParseCommandLine")
					}
					if c.Mode != ModeUntrusted {
						return nil, bferr.New(bferr.InvalidArgument, "cmd.ParseCommandLine")
					}
					c.Mode = ModeNormal
					c.SourceProcessPath = value

				case eq(sub, "embedded"):
					conn, consumed, err := requirePipeConnection(args, i, "-burn.embedded")
					if err != nil {
						return nil, err
					}
					switch c.Mode {
					case ModeUntrusted:
						// leave mode untrusted; this process still launches its clean room.
					case ModeNormal:
						c.Mode = ModeEmbedded
					default:
						return nil, bferr.New(bferr.InvalidArgument, "cmd.ParseCommandLine")
					}
					c.EmbeddedConnection = conn
					i += consumed

				case eq(sub, "related.detect"):
					c.RelationType = RelationDetect
				case eq(sub, "related.upgrade"):
					c.RelationType = RelationUpgrade
				case eq(sub, "related.addon"):
					c.RelationType = RelationAddon
				case eq(sub, "related.patch"):
					c.RelationType = RelationPatch
				case eq(sub, "related.update"):
					c.RelationType = RelationUpdate

				case eq(sub, "passthrough"):
					c.Passthrough = true

				case eq(sub, "disable.unelevate"):
					c.DisableUnelevate = true

				case eq(sub, "runonce"):
					if c.Mode != ModeUntrusted {
						return nil, bferr.New(bferr.InvalidArgument, "cmd.ParseCommandLine")
					}
					c.Mode = ModeRunOnce

				case hasPrefixFold(sub, "ignoredependencies="):
					value := sub[len("ignoredependencies="):]
					if value == "" {
						return nil, bferr.New(bferr.InvalidArgument, "cmd.ParseCommandLine")
					}
					c.IgnoreDependencies = value

				case hasPrefixFold(sub, "ancestors="):
					value := sub[len("ancestors="):]
					if value == "" {
						return nil, bferr.New(bferr.InvalidArgument, "cmd.ParseCommandLine")
					}
					c.Ancestors = value

				case hasPrefixFold(sub, "filehandle.attached="), hasPrefixFold(sub, "filehandle.self="):
					// Consumed by the process bootstrapper before argv parsing runs.

				default:
					// Unknown private switch from a newer bundle; skip without failing.
				}

			default:
				unknown = true
			}
		} else {
			unknown = true
			if name, val, ok := strings.Cut(arg, "="); ok {
				if isHidden(name) {
					sanitizedArg = name + "=*****"
				}
				c.Variables = append(c.Variables, Variable{Name: name, Value: val})
			}
		}

		if unknown {
			c.UnknownArgs = append(c.UnknownArgs, arg)
		}
		sanitized = append(sanitized, sanitizedArg)
	}

	c.applyDefaults()
	c.SanitizedCommandLine = strings.Join(sanitized, " ")
	return c, nil
}

// switchName strips a leading "--", "-", or "/" and reports whether arg
// carried one of those leaders at all.
func switchName(arg string) (string, bool) {
	if strings.HasPrefix(arg, "--") {
		return arg[2:], true
	}
	if strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "/") {
		return arg[1:], true
	}
	return "", false
}

func hasLeader(arg string) bool {
	_, ok := switchName(arg)
	return ok
}

func eq(a, b string) bool {
	return strings.EqualFold(a, b)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func requireNext(args []string, i *int, switchLabel string) (string, error) {
	if *i+1 >= len(args) {
		return "", bferr.New(bferr.InvalidArgument, "cmd.ParseCommandLine").WithBundle(switchLabel)
	}
	*i++
	return args[*i], nil
}

// requirePipeConnection reads the three tokens following the switch at
// index i (name, secret, parent pid), returning how many extra tokens
// were consumed beyond the switch itself, matching ParsePipeConnection.
func requirePipeConnection(args []string, i int, switchLabel string) (*PipeConnection, int, error) {
	if i+3 >= len(args) {
		return nil, 0, bferr.New(bferr.InvalidArgument, "cmd.ParseCommandLine").WithBundle(switchLabel)
	}
	pid, err := strconv.Atoi(args[i+3])
	if err != nil {
		return nil, 0, bferr.Wrap(bferr.InvalidArgument, "cmd.ParseCommandLine", err).WithBundle(switchLabel)
	}
	return &PipeConnection{
		Name:            args[i+1],
		Secret:          args[i+2],
		ParentProcessID: pid,
	}, 3, nil
}

func joinArg(a, b string) string {
	return a + " " + b
}
