package vars

import (
	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/variant"
	"github.com/pithecene-io/bundleforge/wire"
)

// serialized type tags, distinct from variant.Type so the wire format
// doesn't break if the in-memory enum ever gets reordered.
const (
	wireTypeNone    = uint32(0)
	wireTypeNumeric = uint32(1)
	wireTypeVersion = uint32(2)
	wireTypeString  = uint32(3)
)

// Serialize encodes every variable eligible for handoff into buf: a u32
// record count, then one record per variable laid out as {name, hidden,
// literal, type, value}. Records carry no per-record included flag; only
// eligible variables are written. When persisting is false (crossing the
// elevation boundary rather than writing a resume state file), every
// non-builtin variable is eligible, plus builtins marked Persisted; when
// persisting is true, only variables marked Persisted are eligible. Both
// paths use the same wire shape.
func (s *Store) Serialize(persisting bool) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := wire.NewBuffer()
	keys := s.sortedKeys()

	type entry struct {
		vr *Variable
	}
	var eligible []entry
	for _, k := range keys {
		vr := s.vars[k]
		if vr.InternalType == Builtin && !vr.Persisted {
			continue
		}
		if persisting && !vr.Persisted {
			continue
		}
		eligible = append(eligible, entry{vr})
	}

	buf.WriteU32(uint32(len(eligible)))
	for _, e := range eligible {
		vr := e.vr
		v, err := vr.resolve()
		if err != nil {
			// A provider that fails at serialize time contributes a
			// none-typed record rather than aborting the whole transfer.
			v = variant.New()
		}

		buf.WriteString(vr.Name)
		buf.WriteU32(boolU32(vr.Hidden))
		buf.WriteU32(boolU32(vr.Literal))

		switch v.Type() {
		case variant.TypeNumeric:
			buf.WriteU32(wireTypeNumeric)
			n, _ := v.GetNumeric()
			buf.WriteI64(n)
		case variant.TypeVersion:
			buf.WriteU32(wireTypeVersion)
			ver, _ := v.GetVersion()
			buf.WriteU64(ver)
		case variant.TypeString:
			buf.WriteU32(wireTypeString)
			str, _ := v.GetString()
			buf.WriteString(str)
		default:
			buf.WriteU32(wireTypeNone)
		}
	}
	return buf.Bytes()
}

// Deserialize decodes data written by Serialize and merges it into s. Each
// record may override a builtin only if wasPersisted is true, matching the
// asymmetry in spec.md section 4.3 between an elevated companion's initial
// handoff (ordinary variables only) and a resumed bundle's persisted state
// (previously persisted builtins too).
func (s *Store) Deserialize(data []byte, wasPersisted bool) error {
	buf := wire.NewReader(data)

	count, err := buf.ReadU32()
	if err != nil {
		return bferr.Wrap(bferr.CorruptFormat, "vars.Deserialize", err)
	}

	policy := AnyNonBuiltin
	if wasPersisted {
		policy = OverridePersistedBuiltins
	}

	for i := uint32(0); i < count; i++ {
		name, err := buf.ReadString()
		if err != nil {
			return bferr.Wrap(bferr.CorruptFormat, "vars.Deserialize", err)
		}
		hiddenFlag, err := buf.ReadU32()
		if err != nil {
			return bferr.Wrap(bferr.CorruptFormat, "vars.Deserialize", err)
		}
		literalFlag, err := buf.ReadU32()
		if err != nil {
			return bferr.Wrap(bferr.CorruptFormat, "vars.Deserialize", err)
		}
		typeTag, err := buf.ReadU32()
		if err != nil {
			return bferr.Wrap(bferr.CorruptFormat, "vars.Deserialize", err)
		}

		v := variant.New()
		switch typeTag {
		case wireTypeNumeric:
			n, err := buf.ReadI64()
			if err != nil {
				return bferr.Wrap(bferr.CorruptFormat, "vars.Deserialize", err)
			}
			v.SetNumeric(n)
		case wireTypeVersion:
			ver, err := buf.ReadU64()
			if err != nil {
				return bferr.Wrap(bferr.CorruptFormat, "vars.Deserialize", err)
			}
			v.SetVersion(ver)
		case wireTypeString:
			str, err := buf.ReadString()
			if err != nil {
				return bferr.Wrap(bferr.CorruptFormat, "vars.Deserialize", err)
			}
			v.SetString(str)
		case wireTypeNone:
			// leave v as none
		default:
			return bferr.New(bferr.CorruptFormat, "vars.Deserialize").WithBundle(name)
		}

		if err := s.SetLiteralVariantIf(name, v, hiddenFlag != 0, literalFlag != 0, policy); err != nil {
			return err
		}
	}
	return nil
}

// SetLiteralVariantIf sets name to v, marking it literal only if literal is
// true (an ordinary string write otherwise), used by Deserialize to
// reproduce each record's original Literal flag.
func (s *Store) SetLiteralVariantIf(name string, v *variant.Variant, hidden, literal bool, policy WritePolicy) error {
	if literal {
		return s.SetLiteralVariant(name, v, hidden, policy)
	}
	return s.setValue(name, v, hidden, false, policy)
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
