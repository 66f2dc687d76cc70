package driver

import (
	"context"
	"testing"

	"github.com/pithecene-io/bundleforge/vars"
	"github.com/stretchr/testify/require"
)

func TestNativeInstallerDetectReturnsProductState(t *testing.T) {
	db := NewInMemoryDatabase()
	db.Products["{PRODUCT}"] = StatePresent
	d := &NativeInstallerDriver{DB: db}

	state, err := d.Detect(context.Background(), &Package{ProductCode: "{PRODUCT}"}, vars.NewStore())
	require.NoError(t, err)
	require.Equal(t, StatePresent, state)
}

func TestNativeInstallerDetectAbsentWhenUnknownToDatabase(t *testing.T) {
	db := NewInMemoryDatabase()
	d := &NativeInstallerDriver{DB: db}

	state, err := d.Detect(context.Background(), &Package{ProductCode: "{MISSING}"}, vars.NewStore())
	require.NoError(t, err)
	require.Equal(t, StateAbsent, state)
}

func TestNativeInstallerPlanInstallsWhenAbsentAndRequestedPresent(t *testing.T) {
	d := &NativeInstallerDriver{DB: NewInMemoryDatabase()}
	execute, rollback, err := d.Plan(&Package{}, RequestPresent, StateAbsent)
	require.NoError(t, err)
	require.Equal(t, ActionInstall, execute)
	require.Equal(t, ActionUninstall, rollback)
}

func TestNativeInstallerPlanNoopWhenAlreadyPresent(t *testing.T) {
	d := &NativeInstallerDriver{DB: NewInMemoryDatabase()}
	execute, rollback, err := d.Plan(&Package{}, RequestPresent, StatePresent)
	require.NoError(t, err)
	require.Equal(t, ActionNone, execute)
	require.Equal(t, ActionNone, rollback)
}

func TestNativeInstallerPlanUninstallsWhenPresentAndRequestedAbsent(t *testing.T) {
	d := &NativeInstallerDriver{DB: NewInMemoryDatabase()}
	execute, rollback, err := d.Plan(&Package{}, RequestAbsent, StatePresent)
	require.NoError(t, err)
	require.Equal(t, ActionUninstall, execute)
	require.Equal(t, ActionInstall, rollback)
}

type fakeRunner struct {
	exitCode int
	messages []Message
}

func (f *fakeRunner) Run(ctx context.Context, commandLine string, onMessage MessageFunc) (int, error) {
	for _, m := range f.messages {
		if onMessage != nil {
			if err := onMessage(m); err != nil {
				return -1, err
			}
		}
	}
	return f.exitCode, nil
}

func TestNativeInstallerExecuteSucceedsOnZeroExit(t *testing.T) {
	d := &NativeInstallerDriver{DB: NewInMemoryDatabase(), Runner: &fakeRunner{exitCode: 0}}
	result, err := d.Execute(context.Background(), &Package{ProductCode: "{P}"}, ActionInstall, vars.NewStore(), false, nil)
	require.NoError(t, err)
	require.Equal(t, RestartNone, result.Restart)
}

func TestNativeInstallerExecuteReportsRebootRequired(t *testing.T) {
	d := &NativeInstallerDriver{DB: NewInMemoryDatabase(), Runner: &fakeRunner{exitCode: 3010}}
	result, err := d.Execute(context.Background(), &Package{ProductCode: "{P}"}, ActionInstall, vars.NewStore(), false, nil)
	require.NoError(t, err)
	require.Equal(t, RestartRequired, result.Restart)
}

func TestNativeInstallerExecuteFailsOnNonzeroExit(t *testing.T) {
	d := &NativeInstallerDriver{DB: NewInMemoryDatabase(), Runner: &fakeRunner{exitCode: 1}}
	_, err := d.Execute(context.Background(), &Package{ProductCode: "{P}"}, ActionInstall, vars.NewStore(), false, nil)
	require.Error(t, err)
}

func TestNativeInstallerExecuteNoopForActionNone(t *testing.T) {
	d := &NativeInstallerDriver{DB: NewInMemoryDatabase(), Runner: &fakeRunner{exitCode: 1}}
	result, err := d.Execute(context.Background(), &Package{}, ActionNone, vars.NewStore(), false, nil)
	require.NoError(t, err)
	require.Equal(t, ExecuteResult{}, result)
}
