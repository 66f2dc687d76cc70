// Package bundle decodes the bundle manifest a packaging tool attaches
// alongside the engine's own executable into the driver and engine types
// the rest of this module operates on.
//
// The manifest is authored, human-editable, build-time data describing
// one bundle's package set, not wire protocol, so it is decoded the way
// quarry/cli/config decodes its profile file: gopkg.in/yaml.v3 with
// strict key rejection, rather than the vmihailenco/msgpack/v5 codec the
// pipe package reserves for live IPC message bodies.
package bundle

import (
	"bytes"
	"encoding/hex"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/driver"
	"github.com/pithecene-io/bundleforge/engine"
	"github.com/pithecene-io/bundleforge/plan"
	"github.com/pithecene-io/bundleforge/vars"
)

// Manifest is the authored description of one bundle's package set.
type Manifest struct {
	BundleGUID     string               `yaml:"bundle_guid"`
	Packages       []PackageSpec        `yaml:"packages"`
	RelatedBundles []RelatedBundleSpec  `yaml:"related_bundles,omitempty"`
	ApprovedExes   []ApprovedExeSpec    `yaml:"approved_exes,omitempty"`
	IgnoredDeps    []string             `yaml:"-"`
}

// PackageSpec mirrors driver.Package for YAML decoding; Kind is spelled
// out as a string in the manifest and resolved to driver.Kind here.
type PackageSpec struct {
	ID          string            `yaml:"id"`
	Kind        string            `yaml:"kind"`
	Vital       bool              `yaml:"vital,omitempty"`
	PerMachine  bool              `yaml:"per_machine,omitempty"`
	ProductCode string            `yaml:"product_code,omitempty"`
	UpgradeCode string            `yaml:"upgrade_code,omitempty"`
	PatchCode   string            `yaml:"patch_code,omitempty"`
	Targets     []string          `yaml:"targets,omitempty"`
	Condition   string            `yaml:"condition,omitempty"`
	Features    []FeatureSpec     `yaml:"features,omitempty"`
	SourcePath  string            `yaml:"source_path"`
	CacheID     string            `yaml:"cache_id"`
	CommandLine string            `yaml:"command_line,omitempty"`
	ServiceName string            `yaml:"service_name,omitempty"`
}

// FeatureSpec mirrors driver.Feature for YAML decoding.
type FeatureSpec struct {
	Name   string `yaml:"name"`
	Action string `yaml:"action,omitempty"`
}

// RelatedBundleSpec mirrors plan.RelatedBundle for YAML decoding.
type RelatedBundleSpec struct {
	ID      string `yaml:"id"`
	Upgrade bool   `yaml:"upgrade,omitempty"`
}

// ApprovedExeSpec mirrors driver.ApprovedExe for YAML decoding.
type ApprovedExeSpec struct {
	Key         string   `yaml:"key"`
	Path        string   `yaml:"path"`
	DefaultArgs []string `yaml:"default_args,omitempty"`
}

var kindByName = map[string]driver.Kind{
	"exe": driver.KindEXE,
	"msi": driver.KindMSI,
	"msp": driver.KindMSP,
	"msu": driver.KindMSU,
}

// Load reads and strictly decodes a manifest file at path, rejecting
// unknown keys the way config.Load does.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, bferr.Wrap(bferr.NotFound, "bundle.Load", err)
		}
		return nil, bferr.Wrap(bferr.IO, "bundle.Load", err)
	}

	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, bferr.Wrap(bferr.InvalidArgument, "bundle.Load", err)
	}
	return &m, nil
}

// BundleGUIDBytes decodes the manifest's hex-encoded bundle GUID into the
// fixed-size array section.Read and engine.Layout expect.
func (m *Manifest) BundleGUIDBytes() ([16]byte, error) {
	var out [16]byte
	raw, err := hex.DecodeString(m.BundleGUID)
	if err != nil || len(raw) != 16 {
		return out, bferr.New(bferr.CorruptFormat, "bundle.BundleGUIDBytes").WithBundle(m.BundleGUID)
	}
	copy(out[:], raw)
	return out, nil
}

// BuildState assembles an engine.State from the manifest against store,
// wiring an in-memory product/patch database and dependency graph ready
// for Detect.
func (m *Manifest) BuildState(store *vars.Store) (*engine.State, error) {
	state := engine.NewState(store)
	state.ProductDB = driver.NewInMemoryDatabase()
	state.PatchDB = driver.NewInMemoryDatabase()
	state.Dependencies = driver.NewDependencyGraph()
	if len(m.IgnoredDeps) > 0 {
		state.Dependencies.SetIgnored(m.IgnoredDeps)
	}

	state.Packages = make([]*driver.Package, 0, len(m.Packages))
	for _, ps := range m.Packages {
		pkg, err := ps.toPackage()
		if err != nil {
			return nil, err
		}
		state.Packages = append(state.Packages, pkg)
	}

	state.RelatedBundles = make([]plan.RelatedBundle, 0, len(m.RelatedBundles))
	for _, rb := range m.RelatedBundles {
		state.RelatedBundles = append(state.RelatedBundles, plan.RelatedBundle{ID: rb.ID, Upgrade: rb.Upgrade})
	}

	if len(m.ApprovedExes) > 0 {
		entries := make([]driver.ApprovedExe, 0, len(m.ApprovedExes))
		for _, a := range m.ApprovedExes {
			entries = append(entries, driver.ApprovedExe{Key: a.Key, Path: a.Path, DefaultArgs: a.DefaultArgs})
		}
		state.Approved = driver.NewApprovedExeRegistry(entries)
	}

	return state, nil
}

func (ps PackageSpec) toPackage() (*driver.Package, error) {
	kind, ok := kindByName[ps.Kind]
	if !ok {
		return nil, bferr.New(bferr.InvalidArgument, "bundle.PackageSpec.toPackage").WithBundle(ps.ID)
	}

	features := make([]driver.Feature, 0, len(ps.Features))
	for _, f := range ps.Features {
		features = append(features, driver.Feature{Name: f.Name})
	}

	return &driver.Package{
		ID:          ps.ID,
		Kind:        kind,
		Vital:       ps.Vital,
		PerMachine:  ps.PerMachine,
		ProductCode: ps.ProductCode,
		UpgradeCode: ps.UpgradeCode,
		PatchCode:   ps.PatchCode,
		Targets:     ps.Targets,
		Condition:   ps.Condition,
		Features:    features,
		SourcePath:  ps.SourcePath,
		CacheID:     ps.CacheID,
		CommandLine: ps.CommandLine,
		ServiceName: ps.ServiceName,
	}, nil
}
