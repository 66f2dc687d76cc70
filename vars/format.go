package vars

import (
	"strings"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/variant"
)

// GetFormatted returns the string representation of name after recursive
// formatted-string expansion, unless the variable is a builtin or literal
// (neither is ever re-expanded), per spec.md section 4.3.
func (s *Store) GetFormatted(name string) (string, error) {
	raw, err := s.GetString(name)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	vr := s.vars[foldName(name)]
	if vr != nil && (vr.InternalType == Builtin || vr.Literal) {
		return raw, nil
	}
	return s.expandLocked(raw, false)
}

// Format expands a literal template string (not a stored variable's
// value) against the store, e.g. a package's authored command line.
func (s *Store) Format(template string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expandLocked(template, false)
}

// FormatObfuscated is identical to Format but replaces hidden variables'
// expansions with the fixed redaction mask, for safe logging.
func (s *Store) FormatObfuscated(template string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expandLocked(template, true)
}

// expandLocked implements the formatted-string language from spec.md
// section 4.3:
//
//	[NAME]   -> recursively-formatted value of variable NAME
//	[\c]     -> literal character c (escapes '[', ']', '{', '}')
//	[]       -> literal "[]" (the two characters are copied as-is)
//	unmatched '[' with no closing ']' is literal.
//
// Must be called with the store's mutex held (GetFormatted/Format already
// hold it; recursive calls for nested "[NAME]" reuse the same lock scope
// by calling expandLocked directly rather than re-entering Format).
func (s *Store) expandLocked(input string, obfuscate bool) (string, error) {
	var out strings.Builder
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		c := runes[i]
		if c != '[' {
			out.WriteRune(c)
			i++
			continue
		}

		// Escape form: [\c]
		if i+2 < len(runes) && runes[i+1] == '\\' && runes[i+2] != 0 {
			escaped := runes[i+2]
			if i+3 < len(runes) && runes[i+3] == ']' &&
				(escaped == '[' || escaped == ']' || escaped == '{' || escaped == '}') {
				out.WriteRune(escaped)
				i += 4
				continue
			}
		}

		// Find the matching ']'.
		closeAt := -1
		for j := i + 1; j < len(runes); j++ {
			if runes[j] == ']' {
				closeAt = j
				break
			}
			if runes[j] == '[' {
				// Nested unescaped '[' before a close: the outer '[' is
				// literal, per "unmatched '[' is literal".
				break
			}
		}

		if closeAt == -1 {
			// Unmatched '[' is literal.
			out.WriteRune('[')
			i++
			continue
		}

		name := string(runes[i+1 : closeAt])
		if name == "" {
			// Empty [] copies the two characters literally.
			out.WriteString("[]")
			i = closeAt + 1
			continue
		}

		expanded, err := s.expandNameLocked(name, obfuscate)
		if err != nil {
			if bferr.Is(err, bferr.NotFound) {
				// Unknown variable: treated as literal per source
				// behavior (preserve the bracketed text rather than fail
				// the whole format operation).
				out.WriteString(runes2str(runes[i : closeAt+1]))
				i = closeAt + 1
				continue
			}
			return "", err
		}
		out.WriteString(expanded)
		i = closeAt + 1
	}
	return out.String(), nil
}

func runes2str(r []rune) string { return string(r) }

// expandNameLocked resolves and recursively re-expands a single [NAME]
// reference. Must be called with the lock held.
func (s *Store) expandNameLocked(name string, obfuscate bool) (string, error) {
	vr, ok := s.vars[foldName(name)]
	if !ok {
		return "", bferr.New(bferr.NotFound, "vars.expandName").WithBundle(name)
	}
	v, err := vr.resolve()
	if err != nil {
		return "", err
	}
	if v.Type() == variant.TypeNone {
		return "", bferr.New(bferr.NotFound, "vars.expandName").WithBundle(name)
	}

	if obfuscate && vr.Hidden {
		return variant.RedactedMask, nil
	}

	raw, err := v.GetString()
	if err != nil {
		return "", err
	}

	if vr.InternalType == Builtin || vr.Literal {
		return raw, nil
	}

	return s.expandLocked(raw, obfuscate)
}
