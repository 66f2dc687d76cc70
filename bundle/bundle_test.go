package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pithecene-io/bundleforge/driver"
	"github.com/pithecene-io/bundleforge/vars"
)

const validManifest = `
bundle_guid: "00112233445566778899aabbccddeeff"
packages:
  - id: pkgA
    kind: exe
    vital: true
    source_path: payloads/a.exe
    cache_id: a-cache-id
    condition: "VersionNT >= v6.1"
  - id: pkgB
    kind: msi
    per_machine: true
    product_code: "{A1111111-1111-1111-1111-111111111111}"
    upgrade_code: "{B2222222-2222-2222-2222-222222222222}"
    source_path: payloads/b.msi
    cache_id: b-cache-id
    features:
      - name: Complete
related_bundles:
  - id: "{C3333333-3333-3333-3333-333333333333}"
    upgrade: true
approved_exes:
  - key: notepad
    path: payloads/notepad.exe
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeManifest(t, validManifest)
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Packages) != 2 {
		t.Fatalf("expected 2 packages, got %d", len(m.Packages))
	}
	if m.Packages[0].ID != "pkgA" || m.Packages[1].ID != "pkgB" {
		t.Errorf("unexpected package ids: %+v", m.Packages)
	}
	if len(m.RelatedBundles) != 1 || !m.RelatedBundles[0].Upgrade {
		t.Errorf("expected one upgrade-related bundle, got %+v", m.RelatedBundles)
	}
	if len(m.ApprovedExes) != 1 || m.ApprovedExes[0].Key != "notepad" {
		t.Errorf("expected approved exe notepad, got %+v", m.ApprovedExes)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeManifest(t, validManifest+"\nnot_a_real_field: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing manifest file")
	}
}

func TestBundleGUIDBytes(t *testing.T) {
	m := &Manifest{BundleGUID: "00112233445566778899aabbccddeeff"}
	got, err := m.BundleGUIDBytes()
	if err != nil {
		t.Fatalf("BundleGUIDBytes: %v", err)
	}
	want := [16]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	if got != want {
		t.Errorf("expected %x, got %x", want, got)
	}
}

func TestBundleGUIDBytes_Invalid(t *testing.T) {
	cases := []string{"", "not-hex", "aabb"}
	for _, guid := range cases {
		m := &Manifest{BundleGUID: guid}
		if _, err := m.BundleGUIDBytes(); err == nil {
			t.Errorf("expected error for bundle guid %q", guid)
		}
	}
}

func TestPackageSpec_UnknownKind(t *testing.T) {
	ps := PackageSpec{ID: "pkgX", Kind: "dmg"}
	if _, err := ps.toPackage(); err == nil {
		t.Fatal("expected error for unknown package kind")
	}
}

func TestPackageSpec_ToPackage(t *testing.T) {
	ps := PackageSpec{
		ID:         "pkgA",
		Kind:       "exe",
		Vital:      true,
		SourcePath: "payloads/a.exe",
		CacheID:    "a-cache-id",
		Features:   []FeatureSpec{{Name: "Complete"}},
	}
	pkg, err := ps.toPackage()
	if err != nil {
		t.Fatalf("toPackage: %v", err)
	}
	if pkg.Kind != driver.KindEXE {
		t.Errorf("expected KindEXE, got %v", pkg.Kind)
	}
	if !pkg.Vital {
		t.Error("expected vital flag carried over")
	}
	if len(pkg.Features) != 1 || pkg.Features[0].Name != "Complete" {
		t.Errorf("expected one feature named Complete, got %+v", pkg.Features)
	}
}

func TestBuildState(t *testing.T) {
	path := writeManifest(t, validManifest)
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	store := vars.NewStore()
	state, err := m.BuildState(store)
	if err != nil {
		t.Fatalf("BuildState: %v", err)
	}

	if len(state.Packages) != 2 {
		t.Fatalf("expected 2 packages in state, got %d", len(state.Packages))
	}
	if state.ProductDB == nil || state.PatchDB == nil || state.Dependencies == nil {
		t.Fatal("expected product/patch databases and dependency graph to be initialized")
	}
	if len(state.RelatedBundles) != 1 {
		t.Errorf("expected 1 related bundle, got %d", len(state.RelatedBundles))
	}
	if state.Approved == nil {
		t.Fatal("expected approved exe registry to be built")
	}
}

func TestBuildState_InvalidPackageKind(t *testing.T) {
	m := &Manifest{
		BundleGUID: "00112233445566778899aabbccddeeff",
		Packages:   []PackageSpec{{ID: "bad", Kind: "unknown"}},
	}
	if _, err := m.BuildState(vars.NewStore()); err == nil {
		t.Fatal("expected error for invalid package kind during BuildState")
	}
}

func TestBuildState_IgnoredDependencies(t *testing.T) {
	m := &Manifest{
		BundleGUID:  "00112233445566778899aabbccddeeff",
		IgnoredDeps: []string{"DepA", "DepB"},
	}
	state, err := m.BuildState(vars.NewStore())
	if err != nil {
		t.Fatalf("BuildState: %v", err)
	}
	if state.Dependencies == nil {
		t.Fatal("expected dependency graph to be built")
	}
}
