package cmd

import (
	"context"
	"testing"

	"github.com/pithecene-io/bundleforge/driver"
	"github.com/pithecene-io/bundleforge/engine"
	"github.com/pithecene-io/bundleforge/vars"
)

func newTestRunner(t *testing.T) (*Runner, []string) {
	t.Helper()
	store := vars.NewStore()
	state := engine.NewState(store)
	state.Packages = []*driver.Package{
		{ID: "pkgA", Kind: driver.KindEXE, Condition: ""},
	}
	state.ProductDB = driver.NewInMemoryDatabase()
	state.PatchDB = driver.NewInMemoryDatabase()
	state.Dependencies = driver.NewDependencyGraph()

	eng := engine.New("{BundleGuid}", state, nil, nil)

	var lines []string
	r := &Runner{
		Engine: eng,
		Store:  store,
		Report: func(text string) { lines = append(lines, text) },
	}
	return r, lines
}

func TestRunner_Help(t *testing.T) {
	r, _ := newTestRunner(t)
	code := r.Execute(context.Background(), &Command{Action: ActionHelp})
	if code != 0 {
		t.Errorf("expected exit 0 for help, got %d", code)
	}
}

func TestRunner_SetsVariablesBeforeDetect(t *testing.T) {
	r, _ := newTestRunner(t)
	c, err := ParseCommandLine([]string{"INSTALLDIR=C:\\Apps"}, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c.Action = ActionHelp // avoid driving detect/plan/apply in this test

	r.Execute(context.Background(), c)

	got, err := r.Store.GetString("INSTALLDIR")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "C:\\Apps" {
		t.Errorf("expected INSTALLDIR set, got %q", got)
	}
}

func TestExitCodeForResult_NilIsFailure(t *testing.T) {
	if got := exitCodeForResult(nil); got != 1603 {
		t.Errorf("expected 1603 for nil result, got %d", got)
	}
}

func TestRequestForAction(t *testing.T) {
	cases := map[Action]driver.Request{
		ActionInstall:   driver.RequestPresent,
		ActionUninstall: driver.RequestAbsent,
		ActionRepair:    driver.RequestRepair,
		ActionModify:    driver.RequestNone,
	}
	for action, want := range cases {
		if got := requestForAction(action); got != want {
			t.Errorf("%v: expected %v, got %v", action, want, got)
		}
	}
}

func TestNewApp_BuildsWithoutPanicking(t *testing.T) {
	app := NewApp("1.0.0", "deadbeef", func(*Command) int { return 0 })
	if app.Name != "bundleforge" {
		t.Errorf("expected app name bundleforge, got %q", app.Name)
	}
}
