package driver

import (
	"context"
	"testing"

	"github.com/pithecene-io/bundleforge/vars"
	"github.com/stretchr/testify/require"
)

func TestPatchDetectZeroTargetsIsAbsent(t *testing.T) {
	db := NewInMemoryDatabase()
	d := &PatchDriver{DB: db, Patches: db}
	state, err := d.Detect(context.Background(), &Package{PatchCode: "{PATCH}"}, vars.NewStore())
	require.NoError(t, err)
	require.Equal(t, StateAbsent, state)
}

func TestPatchDetectTakesMinAcrossTargets(t *testing.T) {
	db := NewInMemoryDatabase()
	db.Patches["{PATCH}"] = map[string]PatchApplicability{
		"{A}": {Applicable: true, State: StatePresent, Order: 1},
		"{B}": {Applicable: true, State: StateSuperseded, Order: 2},
	}
	d := &PatchDriver{DB: db, Patches: db}
	pkg := &Package{PatchCode: "{PATCH}", Targets: []string{"{A}", "{B}"}}

	state, err := d.Detect(context.Background(), pkg, vars.NewStore())
	require.NoError(t, err)
	require.Equal(t, StateSuperseded, state)
}

func TestPatchDetectFallsBackToAllInstalledWhenNoExplicitTargets(t *testing.T) {
	db := NewInMemoryDatabase()
	db.Products["{X}"] = StatePresent
	db.Patches["{PATCH}"] = map[string]PatchApplicability{
		"{X}": {Applicable: true, State: StatePresent, Order: 1},
	}
	d := &PatchDriver{DB: db, Patches: db}
	pkg := &Package{PatchCode: "{PATCH}"}

	state, err := d.Detect(context.Background(), pkg, vars.NewStore())
	require.NoError(t, err)
	require.Equal(t, StatePresent, state)
}

func TestPatchPlanTargetsOrderedByDetectionOrder(t *testing.T) {
	db := NewInMemoryDatabase()
	db.Patches["{PATCH}"] = map[string]PatchApplicability{
		"{A}": {Applicable: true, State: StateAbsent, Order: 5},
		"{B}": {Applicable: true, State: StateAbsent, Order: 1},
	}
	d := &PatchDriver{DB: db, Patches: db}
	pkg := &Package{PatchCode: "{PATCH}", Targets: []string{"{A}", "{B}"}}

	plans, err := d.PlanTargets(pkg, RequestPresent)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	require.Equal(t, "{B}", plans[0].Target)
	require.Equal(t, "{A}", plans[1].Target)
}

func TestPatchPlanAggregatesViaMaxOverTargets(t *testing.T) {
	db := NewInMemoryDatabase()
	db.Patches["{PATCH}"] = map[string]PatchApplicability{
		"{A}": {Applicable: true, State: StatePresent, Order: 1},
		"{B}": {Applicable: true, State: StateAbsent, Order: 2},
	}
	d := &PatchDriver{DB: db, Patches: db}
	pkg := &Package{PatchCode: "{PATCH}", Targets: []string{"{A}", "{B}"}}

	execute, _, err := d.Plan(pkg, RequestPresent, StateAbsent)
	require.NoError(t, err)
	require.Equal(t, ActionPatch, execute)
}

func TestPatchExecuteNoopForActionNone(t *testing.T) {
	d := &PatchDriver{DB: NewInMemoryDatabase(), Patches: NewInMemoryDatabase()}
	result, err := d.Execute(context.Background(), &Package{}, ActionNone, vars.NewStore(), false, nil)
	require.NoError(t, err)
	require.Equal(t, ExecuteResult{}, result)
}
