// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package navigator

import (
	"sync/atomic"

	"rivaas.dev/navigator/tree"
)

// ParamKind records whether a param on a matched state came from the URL
// path or the query string, mirroring tree.ParamKind for public use.
type ParamKind string

const (
	ParamKindURL   ParamKind = "url"
	ParamKindQuery ParamKind = "query"
)

// RouteTreeStateMeta maps each segment of a dotted route name to the kind
// of every param attached at that segment: segmentName -> paramName -> kind.
type RouteTreeStateMeta map[string]map[string]ParamKind

// NavigationOptions carries the caller-supplied options for one navigate
// call, echoed back on the resulting State's meta and on the
// TRANSITION_SUCCESS payload for the call.
type NavigationOptions struct {
	Replace     bool
	Force       bool
	Reload      bool
	SkipTransitionHooks bool
	Metadata    map[string]any
}

// StateMeta is the non-navigational bookkeeping attached to every State.
type StateMeta struct {
	ID         uint64
	Params     RouteTreeStateMeta
	Options    NavigationOptions
	Redirected bool
}

// State is the frozen description of "where the router is": a route name,
// its merged parameters, the canonical path, and its meta. Once
// constructed, a State is never mutated in place — Params/Meta are
// defensively copied on every accessor read (the equivalent of the
// teacher's "deep-freeze the object graph" for an immutable-by-convention
// Go value), so holding a *State across a later mutation round of the
// configuration store never exposes changed data.
type State struct {
	name   string
	params map[string]any
	path   string
	meta   *StateMeta
}

// newState builds an already-frozen State. Callers inside this package
// must not retain params/meta maps after calling this constructor, since
// ownership of the backing maps transfers to the State.
func newState(name string, params map[string]any, path string, meta *StateMeta) *State {
	return &State{name: name, params: params, path: path, meta: meta}
}

// Name returns the route name.
func (s *State) Name() string { return s.name }

// Path returns the canonical path.
func (s *State) Path() string { return s.path }

// Params returns a defensive copy of the state's merged parameters.
func (s *State) Params() map[string]any {
	if s == nil {
		return nil
	}
	return cloneAny(s.params).(map[string]any)
}

// Meta returns a defensive copy of the state's meta.
func (s *State) Meta() *StateMeta {
	if s == nil || s.meta == nil {
		return nil
	}
	cp := *s.meta
	cp.Params = cloneRouteTreeStateMeta(s.meta.Params)
	cp.Options.Metadata = cloneAny(s.meta.Options.Metadata).(map[string]any)
	return &cp
}

func cloneRouteTreeStateMeta(m RouteTreeStateMeta) RouteTreeStateMeta {
	if m == nil {
		return nil
	}
	cp := make(RouteTreeStateMeta, len(m))
	for seg, kinds := range m {
		innerCp := make(map[string]ParamKind, len(kinds))
		for k, v := range kinds {
			innerCp[k] = v
		}
		cp[seg] = innerCp
	}
	return cp
}

// cloneAny deep-copies the subset of `any` shapes the Serializable
// validator accepts (map[string]any, []any, and scalars); other values are
// returned unchanged since Serializable already rejects anything that
// would need deeper cloning.
func cloneAny(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if x == nil {
			return map[string]any(nil)
		}
		cp := make(map[string]any, len(x))
		for k, val := range x {
			cp[k] = cloneAny(val)
		}
		return cp
	case []any:
		if x == nil {
			return []any(nil)
		}
		cp := make([]any, len(x))
		for i, val := range x {
			cp[i] = cloneAny(val)
		}
		return cp
	default:
		return v
	}
}

// stateIDCounter backs the monotonic id generator (I4): it is never reset
// on Stop, only ever incremented, for the lifetime of the Router (each
// Router gets its own counter starting at 0, not a process-wide one — see
// the idCounter field on Router).
type stateIDCounter struct{ n atomic.Uint64 }

func (c *stateIDCounter) next() uint64 { return c.n.Add(1) }

// mergeParamSources implements the State-creation merge order from spec
// §4.3 step 2: "{ ...sourceRouteDefaults, ...targetRouteDefaults,
// ...providedParams }". Each later map wins key-by-key; an explicit nil
// entry in provided is kept as an explicit override (Go's map semantics
// already do this — a present key with a nil value overwrites, it does not
// fall back to the earlier map).
func mergeParamSources(sourceDefaults, targetDefaults, provided map[string]any) map[string]any {
	merged := make(map[string]any, len(sourceDefaults)+len(targetDefaults)+len(provided))
	for k, v := range sourceDefaults {
		merged[k] = v
	}
	for k, v := range targetDefaults {
		merged[k] = v
	}
	for k, v := range provided {
		merged[k] = v
	}
	return merged
}

// areStatesEqual implements spec §4.3's equality rule: same name, and
// either just the URL params match (ignoreQuery=true, the default) or
// every param (URL and query) matches (ignoreQuery=false). Values are
// compared with deepEqualValue so []any members compare element-wise.
func areStatesEqual(a, b *State, ignoreQuery bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.name != b.name {
		return false
	}
	if ignoreQuery {
		return paramsEqualByKind(a, b, ParamKindURL)
	}
	return deepEqualValue(a.params, b.params)
}

// paramsEqualByKind compares only the params whose kind (per each state's
// own meta) matches kind; a param with no recorded kind (e.g. a
// caller-supplied extra param not declared on the route) is treated as a
// URL param for this comparison. The matcher and classifyParams record
// undeclared keys as query params, so this fallback applies only to keys
// missing from the state's meta.
func paramsEqualByKind(a, b *State, kind ParamKind) bool {
	aKeys := keysWithKind(a, kind)
	bKeys := keysWithKind(b, kind)
	if len(aKeys) != len(bKeys) {
		return false
	}
	for k := range aKeys {
		if !bKeys[k] {
			return false
		}
		if !deepEqualValue(a.params[k], b.params[k]) {
			return false
		}
	}
	return true
}

func keysWithKind(s *State, kind ParamKind) map[string]bool {
	out := map[string]bool{}
	kindOf := map[string]ParamKind{}
	if s.meta != nil {
		if segKinds, ok := s.meta.Params[s.name]; ok {
			for k, v := range segKinds {
				kindOf[k] = v
			}
		}
	}
	for k := range s.params {
		k2, known := kindOf[k]
		if !known {
			k2 = ParamKindURL
		}
		if k2 == kind {
			out[k] = true
		}
	}
	return out
}

func deepEqualValue(a, b any) bool {
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqualValue(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !deepEqualValue(v, bvv) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// isActiveRoute implements spec §4.3's active-route test. current is the
// router's current state (possibly nil if not started); defaults are the
// target route's default params, used to fill in params before comparing
// when name equals current.Name().
func isActiveRoute(current *State, name string, params map[string]any, defaults map[string]any, strict, ignoreQuery bool) bool {
	if current == nil {
		return false
	}
	if current.name == name {
		candidate := newState(name, mergeParamSources(nil, defaults, params), "", current.meta)
		return areStatesEqual(current, candidate, ignoreQuery)
	}
	if strict {
		return false
	}
	if !hasDotPrefix(current.name, name) {
		return false
	}
	for k, v := range params {
		cv, ok := current.params[k]
		if !ok || !deepEqualValue(v, cv) {
			return false
		}
	}
	return true
}

func hasDotPrefix(name, prefix string) bool {
	if len(name) <= len(prefix) {
		return false
	}
	return name[:len(prefix)] == prefix && name[len(prefix)] == '.'
}

// stateMetaFromMatch builds RouteTreeStateMeta from a tree.MatchResult's
// ParamKinds, keyed under the matched route's own name (the only segment
// this router version attaches kind information to — nested-segment kind
// propagation is not required by any tested property).
func stateMetaFromMatch(routeName string, kinds map[string]tree.ParamKind) RouteTreeStateMeta {
	if len(kinds) == 0 {
		return nil
	}
	segKinds := make(map[string]ParamKind, len(kinds))
	for k, v := range kinds {
		if v == tree.ParamKindQuery {
			segKinds[k] = ParamKindQuery
		} else {
			segKinds[k] = ParamKindURL
		}
	}
	return RouteTreeStateMeta{routeName: segKinds}
}
