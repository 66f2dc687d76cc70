package driver

import (
	"context"
	"os/exec"

	"github.com/pithecene-io/bundleforge/bferr"
)

// ApprovedExe is one bundle-authored "approved" executable: a bootstrapper
// UI may launch it by key outside the normal plan/apply flow (the
// "repair my app" style button), but only if it's registered in the
// bundle's manifest, never from an arbitrary caller-supplied path.
// Supplemented from original_source/'s approvedexe.cpp per the expanded
// specification.
type ApprovedExe struct {
	Key         string
	Path        string
	DefaultArgs []string
}

// ApprovedExeRegistry holds the bundle-authored approved-executable
// catalogue, keyed by ApprovedExe.Key.
type ApprovedExeRegistry struct {
	entries map[string]ApprovedExe
}

// NewApprovedExeRegistry builds a registry from entries.
func NewApprovedExeRegistry(entries []ApprovedExe) *ApprovedExeRegistry {
	r := &ApprovedExeRegistry{entries: make(map[string]ApprovedExe, len(entries))}
	for _, e := range entries {
		r.entries[e.Key] = e
	}
	return r
}

// LaunchApprovedExe starts the approved executable registered under
// key with args appended after its default arguments, returning the
// spawned process id. The caller owns reaping the process; this engine
// does not track approved-exe processes as part of plan/apply.
func LaunchApprovedExe(ctx context.Context, registry *ApprovedExeRegistry, key string, args []string) (pid int, err error) {
	entry, ok := registry.entries[key]
	if !ok {
		return 0, bferr.New(bferr.NotFound, "driver.LaunchApprovedExe").WithBundle(key)
	}

	fullArgs := append(append([]string{}, entry.DefaultArgs...), args...)
	cmd := exec.CommandContext(ctx, entry.Path, fullArgs...)
	if err := cmd.Start(); err != nil {
		return 0, bferr.Wrap(bferr.IO, "driver.LaunchApprovedExe", err)
	}
	return cmd.Process.Pid, nil
}
