package auth

import (
	"encoding/json"
	"reflect"
)

// PermissionRule maps claim names to required values. Every entry must be
// satisfied (AND). An empty rule is satisfied by any claim set.
//
// A required sequence demands that the claim be a sequence containing every
// listed element. A required scalar demands that the claim equal it or, when
// the claim is a sequence, contain it. A missing claim never matches.
type PermissionRule map[string]any

// Evaluate reports whether claims satisfy every condition of r.
func (r PermissionRule) Evaluate(claims ClaimSet) bool {
	for name, required := range r {
		actual, ok := claims[name]
		if !ok {
			return false
		}
		if !claimSatisfies(actual, required) {
			return false
		}
	}
	return true
}

// ResourcePermission is an ordered list of rules where any match grants
// access (OR). An empty list never grants access.
type ResourcePermission []PermissionRule

// Match returns the index of the first rule satisfied by claims, or -1.
func (p ResourcePermission) Match(claims ClaimSet) int {
	for i, rule := range p {
		if rule.Evaluate(claims) {
			return i
		}
	}
	return -1
}

// Evaluate reports whether any rule is satisfied by claims.
func (p ResourcePermission) Evaluate(claims ClaimSet) bool {
	return p.Match(claims) >= 0
}

func claimSatisfies(actual, required any) bool {
	if want, ok := asSequence(required); ok {
		have, ok := asSequence(actual)
		if !ok {
			return false
		}
		for _, w := range want {
			if !containsScalar(have, w) {
				return false
			}
		}
		return true
	}

	if have, ok := asSequence(actual); ok {
		return containsScalar(have, required)
	}
	return scalarEqual(actual, required)
}

func containsScalar(seq []any, want any) bool {
	for _, v := range seq {
		if scalarEqual(v, want) {
			return true
		}
	}
	return false
}

// asSequence returns v as a slice when it is a slice or array. Byte slices
// are not sequences.
func asSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []byte:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// scalarEqual compares two scalars. Numbers compare by value regardless of
// their Go type; objects and sequences never compare equal.
func scalarEqual(a, b any) bool {
	a, aok := normalizeScalar(a)
	b, bok := normalizeScalar(b)
	return aok && bok && a == b
}

func normalizeScalar(v any) (any, bool) {
	switch n := v.(type) {
	case nil, string, bool, float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
		return n.String(), true
	}
	return nil, false
}
