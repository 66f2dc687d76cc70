package apply

import "context"

// runClean iterates plan.CleanActions, each a best-effort
// remove_package_from_cache, per specification section 4.7 phase C.
// Failures here never fail the overall apply.
func (e *engine) runClean(ctx context.Context) {
	if e.opts.Cache == nil {
		return
	}
	for _, a := range e.plan.CleanActions {
		if ctx.Err() != nil {
			return
		}
		e.opts.Cache.RemoveFromCache(a.PackageID)
	}
}
