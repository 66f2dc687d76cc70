package driver

import "sort"

// ProductDatabase answers native-installer detection queries: a
// product's install state, a feature's install state within a product,
// and which installed products are related to a given upgrade code.
// Real Burn asks the Windows Installer engine these questions directly;
// this engine asks a ProductDatabase instead, so the same driver logic
// runs and is testable on any platform. InMemoryDatabase below is the
// concrete implementation this module ships; a host embedding this
// engine on Windows would provide one backed by MSI's own APIs.
type ProductDatabase interface {
	ProductState(productCode string) (State, error)
	FeatureState(productCode, featureName string) (State, error)
	// RelatedByUpgradeCode returns installed product codes sharing
	// upgradeCode, for patch target discovery.
	RelatedByUpgradeCode(upgradeCode string) ([]string, error)
	// AllInstalled returns every known installed product code, used as
	// the patch driver's fallback when a patch authors no explicit
	// targets and no upgrade-code relation exists.
	AllInstalled() ([]string, error)
}

// PatchApplicability is one (patch, product) applicability result, per
// specification section 4.5 step 2.
type PatchApplicability struct {
	Applicable bool
	State      State
	// Order is the sequence position the installer assigned this patch
	// for this product; merge ordering in package plan is insertion-
	// sorted by this value.
	Order int
}

// PatchDatabase answers patch-applicability queries. Applicable is a
// single batched call per specification section 4.5 step 2 ("compute
// patch applicability in a single batched call against the patch-
// sequence-info list").
type PatchDatabase interface {
	Applicable(patchCode string, targets []string) (map[string]PatchApplicability, error)
}

// InMemoryDatabase is a map-backed ProductDatabase/PatchDatabase used in
// tests and as the default backend for this portable reimagining of the
// installer database, where no real MSI engine is present.
type InMemoryDatabase struct {
	Products map[string]State
	Features map[string]map[string]State
	Upgrades map[string][]string
	Patches  map[string]map[string]PatchApplicability
}

// NewInMemoryDatabase returns an empty database ready for population.
func NewInMemoryDatabase() *InMemoryDatabase {
	return &InMemoryDatabase{
		Products: make(map[string]State),
		Features: make(map[string]map[string]State),
		Upgrades: make(map[string][]string),
		Patches:  make(map[string]map[string]PatchApplicability),
	}
}

func (d *InMemoryDatabase) ProductState(productCode string) (State, error) {
	if s, ok := d.Products[productCode]; ok {
		return s, nil
	}
	return StateAbsent, nil
}

func (d *InMemoryDatabase) FeatureState(productCode, featureName string) (State, error) {
	if byFeature, ok := d.Features[productCode]; ok {
		if s, ok := byFeature[featureName]; ok {
			return s, nil
		}
	}
	return StateAbsent, nil
}

func (d *InMemoryDatabase) RelatedByUpgradeCode(upgradeCode string) ([]string, error) {
	related := append([]string(nil), d.Upgrades[upgradeCode]...)
	sort.Strings(related)
	return related, nil
}

func (d *InMemoryDatabase) AllInstalled() ([]string, error) {
	all := make([]string, 0, len(d.Products))
	for code, state := range d.Products {
		if state >= StateCached {
			all = append(all, code)
		}
	}
	sort.Strings(all)
	return all, nil
}

func (d *InMemoryDatabase) Applicable(patchCode string, targets []string) (map[string]PatchApplicability, error) {
	result := make(map[string]PatchApplicability, len(targets))
	byTarget := d.Patches[patchCode]
	for _, t := range targets {
		if info, ok := byTarget[t]; ok {
			result[t] = info
			continue
		}
		result[t] = PatchApplicability{Applicable: false, State: StateAbsent}
	}
	return result, nil
}
