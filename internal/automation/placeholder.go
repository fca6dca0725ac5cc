package automation

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// AliasTable maps a configured device alias name to the entity key it
// resolves to, and is consulted by both the placeholder formatter and the
// condition evaluator for `<alias>.<attr>` references.
type AliasTable map[string]string

// resolvePath resolves a single placeholder path against state, mirroring
// the precedence rules of spec.md §4.2:
//  1. a `previous.`-prefixed path resolves against state.Previous;
//  2. a bare name that matches a triggering attribute wins over an alias
//     of the same name;
//  3. a bare name that matches a configured alias resolves to that alias's
//     entity key (its "id");
//  4. an `<alias>.<attr>` path resolves against the snapshot entry for
//     that alias.
func resolvePath(path string, state *StateObject, aliases AliasTable) (any, bool) {
	if rest, ok := cutPrefix(path, "previous."); ok {
		if state.Previous == nil {
			return nil, false
		}
		v, ok := state.Previous.Attributes[rest]
		return v, ok
	}

	dot := strings.IndexByte(path, '.')
	if dot < 0 {
		if v, ok := state.Attributes[path]; ok {
			return v, true
		}
		if key, ok := aliases[path]; ok {
			return key, true
		}
		return nil, false
	}

	alias, attr := path[:dot], path[dot+1:]
	entry, ok := state.Snapshot[alias]
	if !ok {
		return nil, false
	}
	v, ok := entry.Attributes[attr]
	return v, ok
}

func cutPrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):], true
	}
	return "", false
}

// stringify renders a resolved dynamic value as placeholder substitution
// text.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// UnresolvedFunc is invoked once per distinct unresolved placeholder path
// encountered during formatting, so callers can log a warning.
type UnresolvedFunc func(path string)

// Format substitutes every `{path}` token in s against state and aliases.
// Unresolvable placeholders are replaced with the empty string and unresolved
// is invoked (if non-nil) for each one. Substituted text is not re-scanned
// for further tokens.
func Format(s string, state *StateObject, aliases AliasTable, unresolved UnresolvedFunc) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := match[1 : len(match)-1]
		v, ok := resolvePath(path, state, aliases)
		if !ok {
			if unresolved != nil {
				unresolved(path)
			}
			return ""
		}
		return stringify(v)
	})
}

// FormatValue recurses a formatter over an action configuration value:
// strings are substituted, map values (not keys) and slice elements are
// recursed into, everything else is returned unchanged.
func FormatValue(v any, state *StateObject, aliases AliasTable, unresolved UnresolvedFunc) any {
	switch t := v.(type) {
	case string:
		return Format(t, state, aliases, unresolved)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = FormatValue(val, state, aliases, unresolved)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = FormatValue(val, state, aliases, unresolved)
		}
		return out
	default:
		return v
	}
}

// ResolveForCondition substitutes every `{path}` token in s against state
// and aliases, same as Format, but reports failure instead of silently
// substituting the empty string: per spec.md §4.1, a condition whose RHS
// contains an unresolvable placeholder evaluates to false as a whole.
func ResolveForCondition(s string, state *StateObject, aliases AliasTable) (string, bool) {
	ok := true
	result := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := match[1 : len(match)-1]
		v, resolved := resolvePath(path, state, aliases)
		if !resolved {
			ok = false
			return ""
		}
		return stringify(v)
	})
	if !ok {
		return "", false
	}
	return result, true
}
