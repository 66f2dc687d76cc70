package elevation

import (
	"testing"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/stretchr/testify/require"
)

func TestResultOKHasNoError(t *testing.T) {
	require.NoError(t, ResultOK.ToError("apply"))
}

func TestResultRebootRequiredMapsToTerminalSuccess(t *testing.T) {
	err := ResultRebootRequired.ToError("apply")
	require.Error(t, err)
	require.True(t, bferr.Is(err, bferr.RebootRequired))
	require.True(t, bferr.IsTerminalSuccess(err))
}

func TestResultRebootInitiatedMapsToTerminalSuccess(t *testing.T) {
	err := ResultRebootInitiated.ToError("apply")
	require.Error(t, err)
	require.True(t, bferr.Is(err, bferr.RebootInitiated))
	require.True(t, bferr.IsTerminalSuccess(err))
}

func TestResultFailedMapsToChildFailed(t *testing.T) {
	err := ResultFailed.ToError("apply")
	require.Error(t, err)
	require.True(t, bferr.Is(err, bferr.ChildFailed))
}

func TestMessageTypeStringIsStable(t *testing.T) {
	require.Equal(t, "msg(1)", MsgApplyInitialize.String())
}
