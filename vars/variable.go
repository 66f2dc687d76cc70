// Package vars implements the variable store spec.md section 4.3 (C3)
// describes: an ordered, case-insensitive name -> Variant mapping with
// lazy built-in providers, hidden-value redaction, serialization across
// the elevation boundary, and recursive formatted-string expansion.
//
// The formatter's "[NAME]" substitution language is modeled directly on
// quarry/cli/config/envexpand.go's "${VAR}" / "${VAR:-default}" regex
// expander, generalized here to recursive, escaped, obfuscation-aware
// expansion against a private store instead of os.LookupEnv. Unlike
// envexpand, a reference to an unset NAME is neither an error nor
// expanded to empty: the "[NAME]" text is kept literally.
package vars

import (
	"strings"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/variant"
)

// InternalType classifies how privileged a variable's write path must be.
type InternalType int

const (
	// Normal variables may be written by any non-privileged caller.
	Normal InternalType = iota
	// OverridableBuiltin variables accept ordinary writes and are
	// formatted like Normal variables; only Builtin and literal
	// variables skip re-expansion.
	OverridableBuiltin
	// Builtin variables may only be written through OverrideBuiltin or
	// OverridePersistedBuiltins.
	Builtin
)

// WritePolicy controls which InternalType classes a write is allowed to
// touch, per spec.md section 4.3.
type WritePolicy int

const (
	// AnyNonBuiltin is the default policy for ordinary, non-privileged writes.
	AnyNonBuiltin WritePolicy = iota
	// OverrideBuiltin allows writing a single builtin variable (used by
	// the engine itself to set BundleAction, BundleElevated, etc.).
	OverrideBuiltin
	// OverridePersistedBuiltins is used only during deserialization of a
	// previously persisted store: it allows writing builtins that were
	// themselves persisted.
	OverridePersistedBuiltins
)

// Variable is one entry in the store.
type Variable struct {
	Name         string // original display-case name
	Value        *variant.Variant
	Hidden       bool
	Persisted    bool
	Literal      bool
	InternalType InternalType

	// Provider computes the value lazily on first access when Value is
	// nil. It is invoked at most once; the result is cached into Value
	// and Provider is cleared.
	Provider func() (*variant.Variant, error)
}

func foldName(name string) string {
	// Unicode-aware case folding for the invariant collation spec.md
	// section 9 calls for; strings.ToUpper over case-folded input keeps
	// ASCII names (the overwhelming majority in practice) cheap while
	// still handling non-ASCII display names reasonably.
	return strings.ToUpper(strings.ToLower(name))
}

// clone returns a value-independent copy suitable for safe handoff
// outside the store's lock.
func (vr *Variable) clone() *Variable {
	out := *vr
	if vr.Value != nil {
		out.Value = vr.Value.Copy()
	}
	return &out
}

// resolve realizes the variable's value, invoking Provider if needed.
// Must be called with the store's mutex held.
func (vr *Variable) resolve() (*variant.Variant, error) {
	if vr.Value != nil {
		return vr.Value, nil
	}
	if vr.Provider == nil {
		return nil, bferr.New(bferr.NotFound, "vars.resolve")
	}
	v, err := vr.Provider()
	if err != nil {
		return nil, bferr.Wrap(bferr.NotFound, "vars.resolve", err)
	}
	vr.Value = v
	vr.Provider = nil
	return v, nil
}
