package apply

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/cache"
	"github.com/pithecene-io/bundleforge/container"
	"github.com/pithecene-io/bundleforge/plan"
)

// maxVerifyRetries is the "up to 2 verify-tryagain attempts" bound from
// specification section 4.7 phase A.
const maxVerifyRetries = 2

// runCache is the background thread that sequentially interprets
// plan.CacheActions, per specification section 4.7 phase A. On any
// failure that exits the loop it rolls back cache state from the
// checkpoint active at entry downward, then returns the original error.
func (e *engine) runCache(ctx context.Context) error {
	actions := e.plan.CacheActions
	i := 0
	for i < len(actions) {
		a := actions[i]

		if err := ctx.Err(); err != nil {
			e.rollbackCache(ctx, e.lastCacheCheckpoint.Load())
			return bferr.Wrap(bferr.Cancelled, "apply.runCache", err)
		}

		switch a.Kind {
		case plan.CacheCheckpoint:
			e.lastCacheCheckpoint.Store(a.CheckpointID)

		case plan.CacheLayoutBundle:
			// Best-effort directory layout; no verification step.
			if a.Path != "" {
				if err := os.MkdirAll(a.Path, 0o755); err != nil {
					e.rollbackCache(ctx, e.lastCacheCheckpoint.Load())
					return bferr.Wrap(bferr.IO, "apply.layoutBundle", err)
				}
			}
			if err := e.tick("cache", a.PackageID, "layout_bundle"); err != nil {
				e.rollbackCache(ctx, e.lastCacheCheckpoint.Load())
				return err
			}

		case plan.CachePackageStart:
			// No-op marker; brackets the package's cache work.

		case plan.CacheAcquireContainer:
			if err := e.opts.Source.Fetch(ctx, a.ContainerID, a.Path); err != nil {
				if done, rerr := e.retryOrFail(ctx, &i, a, err); done {
					return rerr
				}
				continue
			}

		case plan.CacheExtractContainer:
			if err := extractContainer(a.Path); err != nil {
				if done, rerr := e.retryOrFail(ctx, &i, a, err); done {
					return rerr
				}
				continue
			}

		case plan.CacheLayoutContainer:
			// The container's streams were already extracted to Path by
			// CacheExtractContainer; nothing further to lay out here.

		case plan.CacheAcquirePayload:
			if e.opts.Cache != nil && e.opts.Cache.Status(a.PayloadKey, a.ExpectedSize) == cache.StatusComplete {
				e.opts.Metrics.IncCacheHit()
				break
			}
			e.opts.Metrics.IncCacheMiss()
			if err := e.opts.Source.Fetch(ctx, a.PayloadKey, a.Path); err != nil {
				if done, rerr := e.retryOrFail(ctx, &i, a, err); done {
					return rerr
				}
				continue
			}

		case plan.CacheCachePayload:
			if e.opts.Cache != nil {
				expectedSize := a.ExpectedSize
				if expectedSize == 0 {
					if info, statErr := os.Stat(a.Path); statErr == nil {
						expectedSize = info.Size()
					}
				}
				if err := e.opts.Cache.CachePayload(a.PayloadKey, a.Path, expectedSize, a.ExpectedHash); err != nil {
					e.opts.Metrics.IncCacheVerifyFailure()
					if done, rerr := e.retryOrFail(ctx, &i, a, err); done {
						return rerr
					}
					continue
				}
			}

		case plan.CacheLayoutPayload:
			if e.opts.Cache != nil {
				if err := e.opts.Cache.LayoutPayload(a.PayloadKey, a.Path); err != nil {
					if done, rerr := e.retryOrFail(ctx, &i, a, err); done {
						return rerr
					}
					continue
				}
			}

		case plan.CachePackageStop:
			if err := e.tick("cache", a.PackageID, "package_cached"); err != nil {
				e.rollbackCache(ctx, e.lastCacheCheckpoint.Load())
				return err
			}

		case plan.CacheSignalSyncpoint:
			e.signalSyncpoint(a.SyncpointEvent)
		}

		i++
	}
	return nil
}

// retryOrFail applies the "retry acquire from start" rule: up to
// maxVerifyRetries attempts reset the loop index back to the entry's
// package_start. No ticks are subtracted: a package's cache tick is only
// counted at its package_stop, which a retried package has not reached. Beyond
// that bound, a non-vital package's failure is ignored: the loop skips
// ahead to the next package_start and caching continues, converting the
// apply's eventual outcome to success (specification section 7,
// "Non-vital packages"). A vital package's failure still propagates and
// the caller must stop the loop.
func (e *engine) retryOrFail(ctx context.Context, i *int, failed plan.CacheAction, cause error) (done bool, err error) {
	if failed.TryCount < maxVerifyRetries {
		failed.TryCount++
		e.plan.CacheActions[*i] = failed
		start := packageStartIndex(e.plan.CacheActions, *i)
		*i = start
		return false, nil
	}
	if pkg := e.packageFor(failed.PackageID); pkg != nil && !pkg.Vital {
		*i = nextPackageStartIndex(e.plan.CacheActions, *i)
		return false, nil
	}
	e.rollbackCache(ctx, e.lastCacheCheckpoint.Load())
	return true, bferr.Wrap(bferr.IO, "apply.cacheAction", cause)
}

func packageStartIndex(actions []plan.CacheAction, from int) int {
	for j := from; j >= 0; j-- {
		if actions[j].Kind == plan.CachePackageStart {
			return j
		}
	}
	return 0
}

func nextPackageStartIndex(actions []plan.CacheAction, from int) int {
	for j := from + 1; j < len(actions); j++ {
		if actions[j].Kind == plan.CachePackageStart {
			return j
		}
	}
	return len(actions)
}

// rollbackCache walks RollbackCacheActions from the last checkpoint at or
// below entryCheckpoint downward, uncaching packages along the way, per
// specification section 4.7's do_rollback_cache.
func (e *engine) rollbackCache(ctx context.Context, entryCheckpoint uint32) {
	start := len(e.plan.RollbackCacheActions)
	for j, a := range e.plan.RollbackCacheActions {
		if a.Kind == plan.CacheCheckpoint && a.CheckpointID > entryCheckpoint {
			start = j
			break
		}
	}
	for idx := start - 1; idx >= 0; idx-- {
		a := e.plan.RollbackCacheActions[idx]
		if a.Kind == plan.CacheCheckpoint && a.CheckpointID > entryCheckpoint {
			continue
		}
		if a.Kind == plan.CachePackageStop && e.opts.Cache != nil {
			e.opts.Cache.RemoveFromCache(a.PackageID)
		}
	}
}

// extractContainer opens the attached container at path and streams every
// entry into a same-named file alongside it, per specification section
// 4.7's extract_container action.
func extractContainer(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return bferr.Wrap(bferr.IO, "apply.extractContainer", err)
	}
	r, err := container.Open(path, 0, info.Size())
	if err != nil {
		return bferr.Wrap(bferr.IO, "apply.extractContainer", err)
	}
	defer r.Close()

	dir := filepath.Dir(path)
	for {
		name, err := r.NextStream()
		if err != nil {
			break
		}
		if err := r.StreamToFile(filepath.Join(dir, name)); err != nil {
			return bferr.Wrap(bferr.IO, "apply.extractContainer", err)
		}
	}
	return nil
}
