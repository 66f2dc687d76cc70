package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollector_IncrementMethodsExposedViaHandler(t *testing.T) {
	c := NewCollector("{BundleGuid}", "install")

	c.IncApplyStarted()
	c.IncApplyCompleted("success")
	c.IncApplyCompleted("success")
	c.IncApplyCompleted("failed")
	c.IncRollback()
	c.IncCacheHit()
	c.IncCacheHit()
	c.IncCacheMiss()
	c.IncCacheVerifyFailure()
	c.IncPipeReconnect()
	c.IncPipeAuthFailure()
	c.IncCompanionLaunch("success")
	c.IncCompanionLaunch("failure")
	c.SetOverallProgress(50, 200)

	body := scrape(t, c)

	require.Contains(t, body, `bundleforge_apply_started_total{action="install",bundle_id="{BundleGuid}"} 1`)
	require.Contains(t, body, `bundleforge_apply_completed_total{action="install",bundle_id="{BundleGuid}",outcome="success"} 2`)
	require.Contains(t, body, `bundleforge_apply_completed_total{action="install",bundle_id="{BundleGuid}",outcome="failed"} 1`)
	require.Contains(t, body, `bundleforge_rollback_total{action="install",bundle_id="{BundleGuid}"} 1`)
	require.Contains(t, body, `bundleforge_cache_hits_total{action="install",bundle_id="{BundleGuid}"} 2`)
	require.Contains(t, body, `bundleforge_cache_misses_total{action="install",bundle_id="{BundleGuid}"} 1`)
	require.Contains(t, body, `bundleforge_cache_verify_failures_total{action="install",bundle_id="{BundleGuid}"} 1`)
	require.Contains(t, body, `bundleforge_pipe_reconnects_total{action="install",bundle_id="{BundleGuid}"} 1`)
	require.Contains(t, body, `bundleforge_pipe_auth_failures_total{action="install",bundle_id="{BundleGuid}"} 1`)
	require.Contains(t, body, `bundleforge_companion_launch_total{action="install",bundle_id="{BundleGuid}",result="success"} 1`)
	require.Contains(t, body, `bundleforge_companion_launch_total{action="install",bundle_id="{BundleGuid}",result="failure"} 1`)
	require.Contains(t, body, `bundleforge_overall_progress_ratio{action="install",bundle_id="{BundleGuid}"} 25`)
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.IncApplyStarted()
		c.IncApplyCompleted("success")
		c.IncRollback()
		c.IncCacheHit()
		c.IncCacheMiss()
		c.IncCacheVerifyFailure()
		c.IncPipeReconnect()
		c.IncPipeAuthFailure()
		c.IncCompanionLaunch("success")
		c.SetOverallProgress(1, 0)
		c.Handler()
	})
}

func TestCollector_SeparateRegistries(t *testing.T) {
	// Two collectors in the same process (e.g. a controller and a
	// nested bundle) must not collide on a shared default registry.
	a := NewCollector("bundle-a", "install")
	b := NewCollector("bundle-b", "uninstall")
	a.IncApplyStarted()
	b.IncApplyStarted()
	b.IncApplyStarted()

	require.Contains(t, scrape(t, a), `bundleforge_apply_started_total{action="install",bundle_id="bundle-a"} 1`)
	require.Contains(t, scrape(t, b), `bundleforge_apply_started_total{action="uninstall",bundle_id="bundle-b"} 2`)
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return strings.ReplaceAll(rec.Body.String(), "\n", "\n")
}
