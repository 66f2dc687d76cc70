package cmd

import "testing"

func TestParseCommandLine_Defaults(t *testing.T) {
	c, err := ParseCommandLine(nil, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Action != ActionInstall {
		t.Errorf("expected default action install, got %v", c.Action)
	}
	if c.Display != DisplayFull {
		t.Errorf("expected default display full, got %v", c.Display)
	}
	if c.Restart != RestartPrompt {
		t.Errorf("expected default restart prompt, got %v", c.Restart)
	}
}

func TestParseCommandLine_Quiet(t *testing.T) {
	c, err := ParseCommandLine([]string{"-quiet"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Display != DisplayNone {
		t.Errorf("expected display none, got %v", c.Display)
	}
	if c.Restart != RestartAutomatic {
		t.Errorf("expected restart automatic default under quiet, got %v", c.Restart)
	}
}

func TestParseCommandLine_AlternateLeaders(t *testing.T) {
	for _, leader := range []string{"-uninstall", "/uninstall", "--uninstall"} {
		c, err := ParseCommandLine([]string{leader}, nil)
		if err != nil {
			t.Fatalf("parse %q: %v", leader, err)
		}
		if c.Action != ActionUninstall {
			t.Errorf("%q: expected uninstall, got %v", leader, c.Action)
		}
	}
}

func TestParseCommandLine_CaseInsensitive(t *testing.T) {
	c, err := ParseCommandLine([]string{"-REPAIR"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Action != ActionRepair {
		t.Errorf("expected repair, got %v", c.Action)
	}
}

func TestParseCommandLine_HelpWinsOverLaterAction(t *testing.T) {
	c, err := ParseCommandLine([]string{"-?", "-uninstall"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Action != ActionHelp {
		t.Errorf("expected help to stick, got %v", c.Action)
	}
}

func TestParseCommandLine_LayoutWithDir(t *testing.T) {
	c, err := ParseCommandLine([]string{"-layout", "C:\\out"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Action != ActionLayout {
		t.Errorf("expected layout action, got %v", c.Action)
	}
	if c.LayoutDir != "C:\\out" {
		t.Errorf("expected layout dir, got %q", c.LayoutDir)
	}
}

func TestParseCommandLine_LayoutWithoutDir(t *testing.T) {
	c, err := ParseCommandLine([]string{"-layout", "-quiet"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.LayoutDir != "" {
		t.Errorf("expected no layout dir when next token is a switch, got %q", c.LayoutDir)
	}
	if c.Display != DisplayNone {
		t.Errorf("expected -quiet to still be parsed, got %v", c.Display)
	}
}

func TestParseCommandLine_LogAppend(t *testing.T) {
	c, err := ParseCommandLine([]string{"-log+", "C:\\log.txt"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.LogPath != "C:\\log.txt" || !c.LogAppend {
		t.Errorf("expected append log, got path=%q append=%v", c.LogPath, c.LogAppend)
	}
}

func TestParseCommandLine_LogRequiresPath(t *testing.T) {
	if _, err := ParseCommandLine([]string{"-log"}, nil); err == nil {
		t.Fatal("expected error for missing log path")
	}
}

func TestParseCommandLine_ParentNone(t *testing.T) {
	c, err := ParseCommandLine([]string{"-parent:none"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !c.ActiveParentIsSet || c.ActiveParent != "" {
		t.Errorf("expected active parent set to empty, got set=%v value=%q", c.ActiveParentIsSet, c.ActiveParent)
	}
}

func TestParseCommandLine_Elevated(t *testing.T) {
	c, err := ParseCommandLine([]string{"-elevated", "pipe1", "secret1", "4242"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Mode != ModeElevated {
		t.Errorf("expected elevated mode, got %v", c.Mode)
	}
	if c.CompanionConnection == nil || c.CompanionConnection.ParentProcessID != 4242 {
		t.Fatalf("expected companion connection with pid 4242, got %+v", c.CompanionConnection)
	}
}

func TestParseCommandLine_ElevatedRequiresThreeArgs(t *testing.T) {
	if _, err := ParseCommandLine([]string{"-elevated", "pipe1", "secret1"}, nil); err == nil {
		t.Fatal("expected error for incomplete elevated connection")
	}
}

func TestParseCommandLine_BurnCleanRoom(t *testing.T) {
	c, err := ParseCommandLine([]string{"-burn.clean.room=C:\\src\\bundle.exe"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Mode != ModeNormal {
		t.Errorf("expected normal mode, got %v", c.Mode)
	}
	if c.SourceProcessPath != "C:\\src\\bundle.exe" {
		t.Errorf("expected source process path, got %q", c.SourceProcessPath)
	}
}

func TestParseCommandLine_BurnEmbeddedFromCleanRoom(t *testing.T) {
	c, err := ParseCommandLine([]string{
		"-burn.clean.room=C:\\src\\bundle.exe",
		"-burn.embedded", "pipe2", "secret2", "99",
	}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Mode != ModeEmbedded {
		t.Errorf("expected embedded mode, got %v", c.Mode)
	}
	if c.EmbeddedConnection == nil || c.EmbeddedConnection.Name != "pipe2" {
		t.Fatalf("expected embedded connection, got %+v", c.EmbeddedConnection)
	}
	if c.Display != DisplayEmbedded {
		t.Errorf("expected embedded display, got %v", c.Display)
	}
}

func TestParseCommandLine_BurnRelatedDetect(t *testing.T) {
	c, err := ParseCommandLine([]string{"-burn.related.detect"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.RelationType != RelationDetect {
		t.Errorf("expected relation detect, got %v", c.RelationType)
	}
}

func TestParseCommandLine_BurnIgnoreDependencies(t *testing.T) {
	c, err := ParseCommandLine([]string{"-burn.ignoredependencies=DepA,DepB"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.IgnoreDependencies != "DepA,DepB" {
		t.Errorf("expected ignore dependencies list, got %q", c.IgnoreDependencies)
	}
}

func TestParseCommandLine_UnknownBurnSwitchSkipped(t *testing.T) {
	c, err := ParseCommandLine([]string{"-burn.some.future.switch"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(c.UnknownArgs) != 0 {
		t.Errorf("expected private burn switch to be silently skipped, got %v", c.UnknownArgs)
	}
}

func TestParseCommandLine_BareVariable(t *testing.T) {
	c, err := ParseCommandLine([]string{"INSTALLDIR=C:\\Program Files\\App"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(c.Variables) != 1 || c.Variables[0].Name != "INSTALLDIR" || c.Variables[0].Value != "C:\\Program Files\\App" {
		t.Fatalf("expected one variable, got %+v", c.Variables)
	}
}

func TestParseCommandLine_HiddenVariableSanitized(t *testing.T) {
	isHidden := func(name string) bool { return name == "SECRET" }
	c, err := ParseCommandLine([]string{"SECRET=topsecret"}, isHidden)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.SanitizedCommandLine != "SECRET=*****" {
		t.Errorf("expected sanitized command line, got %q", c.SanitizedCommandLine)
	}
	if c.Variables[0].Value != "topsecret" {
		t.Errorf("expected real value preserved for engine use, got %q", c.Variables[0].Value)
	}
}

func TestParseCommandLine_UnknownSwitchForwarded(t *testing.T) {
	c, err := ParseCommandLine([]string{"-somefutureswitch"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(c.UnknownArgs) != 1 || c.UnknownArgs[0] != "-somefutureswitch" {
		t.Fatalf("expected unknown switch forwarded, got %v", c.UnknownArgs)
	}
}

func TestParseCommandLine_PackageDoesNotOverrideExplicitAction(t *testing.T) {
	c, err := ParseCommandLine([]string{"-uninstall", "-package"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Action != ActionUninstall {
		t.Errorf("expected uninstall to stick, got %v", c.Action)
	}
}

func TestParseCommandLine_KeepAUPausedYieldsToNoAUPause(t *testing.T) {
	c, err := ParseCommandLine([]string{"-noaupause", "-keepaupaused"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.AutomaticUpdates != AUPauseNone {
		t.Errorf("expected noaupause to win, got %v", c.AutomaticUpdates)
	}
}

func TestParseCommandLine_MultipleModeSwitchesFail(t *testing.T) {
	_, err := ParseCommandLine([]string{
		"-elevated", "p", "s", "1",
		"-burn.runonce",
	}, nil)
	if err == nil {
		t.Fatal("expected error for conflicting mode switches")
	}
}
