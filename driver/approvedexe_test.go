package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/stretchr/testify/require"
)

func TestLaunchApprovedExeRejectsUnknownKey(t *testing.T) {
	registry := NewApprovedExeRegistry(nil)
	_, err := LaunchApprovedExe(context.Background(), registry, "repair", nil)
	require.Error(t, err)
	require.True(t, bferr.Is(err, bferr.NotFound))
}

func TestLaunchApprovedExeStartsRegisteredProcess(t *testing.T) {
	script := filepath.Join(t.TempDir(), "repair.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	registry := NewApprovedExeRegistry([]ApprovedExe{{Key: "repair", Path: script}})
	pid, err := LaunchApprovedExe(context.Background(), registry, "repair", []string{"--quiet"})
	require.NoError(t, err)
	require.Positive(t, pid)
}
