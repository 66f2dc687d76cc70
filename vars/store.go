package vars

import (
	"sort"
	"sync"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/variant"
)

// Store is the process-wide name -> Variant mapping. All operations take a
// single mutex, held for the duration of GetFormatted's recursive
// expansion so that a mid-format mutation can never observe a partially
// updated store, per spec.md section 4.3's concurrency note.
type Store struct {
	mu   sync.Mutex
	vars map[string]*Variable // keyed by folded name
}

// NewStore returns an empty store with the built-in catalogue registered
// (lazily: no builtin's value is computed until first read).
func NewStore() *Store {
	s := &Store{vars: make(map[string]*Variable)}
	registerBuiltins(s)
	return s
}

// sortedKeys returns folded keys in invariant-collation sorted order,
// per the storage-order invariant in spec.md section 3.
func (s *Store) sortedKeys() []string {
	keys := make([]string, 0, len(s.vars))
	for k := range s.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// registerRaw installs a fully-formed Variable, used by registerBuiltins
// and by Deserialize. Must be called with the lock held.
func (s *Store) registerRaw(v *Variable) {
	s.vars[foldName(v.Name)] = v
}

func (s *Store) get(name string) (*Variable, error) {
	vr, ok := s.vars[foldName(name)]
	if !ok {
		return nil, bferr.New(bferr.NotFound, "vars.get").WithBundle(name)
	}
	return vr, nil
}

// GetVariant returns a copy of the named variable's current value.
func (s *Store) GetVariant(name string) (*variant.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vr, err := s.get(name)
	if err != nil {
		return nil, err
	}
	v, err := vr.resolve()
	if err != nil {
		return nil, err
	}
	if v.Type() == variant.TypeNone {
		return nil, bferr.New(bferr.NotFound, "vars.GetVariant").WithBundle(name)
	}
	return v.Copy(), nil
}

// GetNumeric returns the named variable's value as int64.
func (s *Store) GetNumeric(name string) (int64, error) {
	v, err := s.GetVariant(name)
	if err != nil {
		return 0, err
	}
	return v.GetNumeric()
}

// GetString returns the named variable's raw (unformatted) string value.
func (s *Store) GetString(name string) (string, error) {
	v, err := s.GetVariant(name)
	if err != nil {
		return "", err
	}
	return v.GetString()
}

// GetVersion returns the named variable's value as a packed version.
func (s *Store) GetVersion(name string) (uint64, error) {
	v, err := s.GetVariant(name)
	if err != nil {
		return 0, err
	}
	return v.GetVersion()
}

// IsHidden reports whether name is hidden. Per spec.md section 4.3,
// absent is defined to be false.
func (s *Store) IsHidden(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	vr, ok := s.vars[foldName(name)]
	if !ok {
		return false
	}
	return vr.Hidden
}

// checkWrite enforces the builtin write-policy invariant in spec.md
// section 3. Must be called with the lock held.
func checkWrite(existing *Variable, policy WritePolicy) error {
	if existing == nil {
		return nil
	}
	if existing.InternalType != Builtin {
		return nil
	}
	switch policy {
	case OverrideBuiltin, OverridePersistedBuiltins:
		return nil
	default:
		return bferr.New(bferr.BuiltinReadonly, "vars.write")
	}
}

func (s *Store) setValue(name string, v *variant.Variant, hidden bool, literal bool, policy WritePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.vars[foldName(name)]
	if err := checkWrite(existing, policy); err != nil {
		return err
	}

	v.SetEncryption(hidden)

	if existing != nil {
		existing.Value = v
		existing.Hidden = hidden
		existing.Literal = literal
		if policy == OverridePersistedBuiltins && existing.InternalType == Builtin {
			existing.Persisted = true
		}
		return nil
	}

	s.vars[foldName(name)] = &Variable{
		Name:         name,
		Value:        v,
		Hidden:       hidden,
		Literal:      literal,
		InternalType: Normal,
		Persisted:    policy == OverridePersistedBuiltins,
	}
	return nil
}

// SetNumeric sets name to a numeric value.
func (s *Store) SetNumeric(name string, n int64, policy WritePolicy) error {
	v := variant.New()
	v.SetNumeric(n)
	return s.setValue(name, v, false, false, policy)
}

// SetString sets name to a string value. hidden controls whether the
// value is encrypted at rest.
func (s *Store) SetString(name, val string, hidden bool, policy WritePolicy) error {
	v := variant.New()
	v.SetString(val)
	return s.setValue(name, v, hidden, false, policy)
}

// SetVersion sets name to a version value.
func (s *Store) SetVersion(name string, ver uint64, policy WritePolicy) error {
	v := variant.New()
	v.SetVersion(ver)
	return s.setValue(name, v, false, false, policy)
}

// SetLiteralVariant sets name to v verbatim, marking it literal so the
// formatter never re-expands its string form.
func (s *Store) SetLiteralVariant(name string, v *variant.Variant, hidden bool, policy WritePolicy) error {
	return s.setValue(name, v.Copy(), hidden, true, policy)
}

// OverrideBuiltin sets a builtin or overridable-builtin variable's value,
// the only non-deserialization path allowed to write a builtin.
func (s *Store) OverrideBuiltin(name, val string) error {
	return s.SetString(name, val, false, OverrideBuiltin)
}
