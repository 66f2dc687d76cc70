package driver

import (
	"context"
	"testing"

	"github.com/pithecene-io/bundleforge/vars"
	"github.com/stretchr/testify/require"
)

func TestExeDetectEvaluatesCondition(t *testing.T) {
	store := vars.NewStore()
	require.NoError(t, store.SetNumeric("Installed", 1, vars.AnyNonBuiltin))

	d := &ExeDriver{}
	state, err := d.Detect(context.Background(), &Package{Condition: "Installed = 1"}, store)
	require.NoError(t, err)
	require.Equal(t, StatePresent, state)
}

func TestExeDetectAbsentWhenConditionFalse(t *testing.T) {
	store := vars.NewStore()
	require.NoError(t, store.SetNumeric("Installed", 0, vars.AnyNonBuiltin))

	d := &ExeDriver{}
	state, err := d.Detect(context.Background(), &Package{Condition: "Installed = 1"}, store)
	require.NoError(t, err)
	require.Equal(t, StateAbsent, state)
}

func TestExeDetectAbsentWhenNoCondition(t *testing.T) {
	d := &ExeDriver{}
	state, err := d.Detect(context.Background(), &Package{}, vars.NewStore())
	require.NoError(t, err)
	require.Equal(t, StateAbsent, state)
}

func TestExeExecuteRequiresCommandLine(t *testing.T) {
	d := &ExeDriver{Runner: &fakeRunner{exitCode: 0}}
	_, err := d.Execute(context.Background(), &Package{ID: "app"}, ActionInstall, vars.NewStore(), false, nil)
	require.Error(t, err)
}

func TestExeExecuteEmitsZeroAndHundredProgress(t *testing.T) {
	var progressSeen []int
	d := &ExeDriver{Runner: &fakeRunner{exitCode: 0}}
	_, err := d.Execute(context.Background(), &Package{ID: "app", CommandLine: "true"}, ActionInstall, vars.NewStore(), false, func(m Message) error {
		if m.Kind == "progress" {
			progressSeen = append(progressSeen, m.Progress)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{0, 100}, progressSeen)
}
