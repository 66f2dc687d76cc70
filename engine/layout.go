package engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/container"
	"github.com/pithecene-io/bundleforge/section"
)

// Layout implements the -layout [dir] command line switch: parse the
// running executable's own embedded section, open every attached
// container it describes, and extract each container's streams under
// destDir, without running any package's detect/plan/execute. This is
// deliberately outside the mailbox/verb machinery: layout never touches
// package or variable state, so it carries no risk of racing a
// concurrent Detect/Apply and needs no activity token.
func Layout(ctx context.Context, bundlePath string, bundleGUID [16]byte, destDir string) error {
	desc, err := section.Read(bundlePath, bundleGUID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return bferr.Wrap(bferr.IO, "engine.Layout", err)
	}

	for i := range desc.ContainerSizes {
		if err := ctx.Err(); err != nil {
			return bferr.Wrap(bferr.Cancelled, "engine.Layout", err)
		}

		info, err := desc.AttachedContainerInfo(i)
		if err != nil {
			return err
		}
		if !info.Present {
			continue
		}

		if err := extractOneContainer(bundlePath, info, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractOneContainer(bundlePath string, info section.ContainerInfo, destDir string) error {
	r, err := container.Open(bundlePath, info.Offset, info.Size)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		name, err := r.NextStream()
		if err != nil {
			if err == container.ErrEnd {
				return nil
			}
			return err
		}
		dest := filepath.Join(destDir, name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return bferr.Wrap(bferr.IO, "engine.extractOneContainer", err)
		}
		if err := r.StreamToFile(dest); err != nil {
			return err
		}
	}
}
