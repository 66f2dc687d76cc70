// Command bundleforge is the engine process bootstrap: it loads the
// bundle manifest a packaging tool attached alongside this binary,
// wires the cache, notification, and metrics backends a launch profile
// names, and drives one command-line invocation through engine.Engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/bundle"
	"github.com/pithecene-io/bundleforge/cache"
	"github.com/pithecene-io/bundleforge/cli/cmd"
	"github.com/pithecene-io/bundleforge/config"
	"github.com/pithecene-io/bundleforge/engine"
	"github.com/pithecene-io/bundleforge/log"
	"github.com/pithecene-io/bundleforge/metrics"
	"github.com/pithecene-io/bundleforge/notify"
	"github.com/pithecene-io/bundleforge/vars"
)

// version is set via ldflags at build time.
var version = "dev"

// commit is set via ldflags at build time.
var commit = "unknown"

// manifestEnv names the environment variable a bootstrapper can use to
// point at the bundle manifest explicitly. Absent that, the manifest is
// expected next to this executable, the way an attached container
// travels with Burn's own stub.
const manifestEnv = "BUNDLEFORGE_MANIFEST"

// profileEnv names the environment variable pointing at an optional
// launch profile overriding cache/notify/log defaults.
const profileEnv = "BUNDLEFORGE_PROFILE"

func main() {
	app := cmd.NewApp(version, commit, run)

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func run(c *cmd.Command) int {
	manifestPath := os.Getenv(manifestEnv)
	if manifestPath == "" {
		exe, err := os.Executable()
		if err != nil {
			fmt.Fprintf(os.Stderr, "bundleforge: locate executable: %v\n", err)
			return 1603
		}
		manifestPath = filepath.Join(filepath.Dir(exe), "bundle.yaml")
	}

	manifest, err := bundle.Load(manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bundleforge: load manifest: %v\n", err)
		return 1603
	}

	var profile config.Profile
	if path := os.Getenv(profileEnv); path != "" {
		p, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bundleforge: load profile: %v\n", err)
			return 1603
		}
		profile = *p
	}

	store := vars.NewStore()
	state, err := manifest.BuildState(store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bundleforge: build state: %v\n", err)
		return 1603
	}

	cacheIndex, source, err := wireCache(profile.Cache)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bundleforge: wire cache: %v\n", err)
		return 1603
	}
	state.Cache = cacheIndex
	state.Source = source

	bundleGUID, err := manifest.BundleGUIDBytes()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bundleforge: bundle guid: %v\n", err)
		return 1603
	}
	bundleID := fmt.Sprintf("%x", bundleGUID[:])
	runID := uuid.NewString()

	identity := log.Identity{BundleID: bundleID, RunID: runID, Elevated: c.Mode == cmd.ModeElevated}

	var logger *log.Logger
	if c.LogPath != "" {
		bundleLogger, logFile, err := log.NewBundleLogger(c.LogPath, version, c.SanitizedCommandLine, identity)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bundleforge: open log: %v\n", err)
			return 1603
		}
		defer logFile.Close()
		logger = bundleLogger
	} else {
		logger = log.NewLogger(identity)
	}

	collector := metrics.NewCollector(bundleID, c.Action.String())
	publisher := wireNotify(profile.Notify)
	defer publisher.Close()

	switch c.Mode {
	case cmd.ModeElevated, cmd.ModeEmbedded:
		// A companion-side message loop answering the control and cache
		// planes this process was launched with does not exist yet; only
		// the top-level controller path below runs to completion.
		logger.Sugar().Errorf("companion mode %s requested but not implemented", c.Mode)
		return exitCodeFor(bferr.New(bferr.NotImplemented, "main.run"))
	}

	eng := engine.New(bundleID, state, logger, collector)
	runner := &cmd.Runner{
		Engine:            eng,
		Store:             store,
		Log:               logger.Sugar(),
		Report:            func(text string) { fmt.Println(text) },
		MaxForcedRestarts: profile.Apply.MaxForcedRestarts,
	}

	publishEvent(publisher, notify.EventApplyBegin, bundleID, runID, c.Action.String(), "")
	code := runner.Execute(context.Background(), c)
	publishEvent(publisher, notify.EventApplyComplete, bundleID, runID, c.Action.String(), outcomeForExitCode(code))

	return code
}

func wireCache(cfg config.CacheConfig) (*cache.Index, cache.Source, error) {
	root := cfg.Root
	if root == "" {
		root = filepath.Join(os.TempDir(), "bundleforge-cache")
	}
	idx, err := cache.NewIndex(root, 256)
	if err != nil {
		return nil, nil, err
	}

	var sources []cache.Source
	if roots := cfg.CacheRoots(); len(roots) > 0 {
		sources = append(sources, &cache.LocalSource{Roots: roots})
	}
	if cfg.S3 != nil {
		s3src, err := cache.NewS3Source(context.Background(), cache.S3Config{
			Bucket:       cfg.S3.Bucket,
			Prefix:       cfg.S3.Prefix,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, s3src)
	}

	var source cache.Source = &cache.ChainSource{Sources: sources}
	return idx, source, nil
}

func wireNotify(cfg config.NotifyConfig) notify.Publisher {
	if cfg.URL == "" {
		return notify.NopPublisher{}
	}
	retries := notify.DefaultRetries
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}
	adapter, err := notify.NewRedisAdapter(notify.RedisConfig{
		URL:     cfg.URL,
		Channel: cfg.Channel,
		Timeout: cfg.Timeout.Duration,
		Retries: retries,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "bundleforge: notify disabled: %v\n", err)
		return notify.NopPublisher{}
	}
	return adapter
}

func publishEvent(p notify.Publisher, eventType notify.EventType, bundleID, runID, action, outcome string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.Publish(ctx, &notify.Event{
		ContractVersion: notify.ContractVersion,
		EventType:       eventType,
		BundleID:        bundleID,
		RunID:           runID,
		Action:          action,
		Outcome:         outcome,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
}

func outcomeForExitCode(code int) string {
	switch code {
	case 0:
		return "success"
	case 1602:
		return "user_exit"
	case 3010:
		return "reboot_required"
	case 1641:
		return "reboot_initiated"
	default:
		return "failed"
	}
}

func exitCodeFor(err error) int {
	var be *bferr.Error
	if errors.As(err, &be) {
		switch be.Kind {
		case bferr.RebootRequired:
			return 3010
		case bferr.RebootInitiated:
			return 1641
		case bferr.UserExit:
			return 1602
		}
	}
	return 1603
}
