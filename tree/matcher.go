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

package tree

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ParamKind records whether a matched parameter came from the URL path or
// from the query string.
type ParamKind string

const (
	ParamKindURL   ParamKind = "url"
	ParamKindQuery ParamKind = "query"
)

// TrailingSlashMode mirrors navigator.TrailingSlashMode without importing
// the root package.
type TrailingSlashMode string

const (
	TrailingSlashPreserve TrailingSlashMode = "preserve"
	TrailingSlashNever    TrailingSlashMode = "never"
	TrailingSlashAlways   TrailingSlashMode = "always"
	TrailingSlashStrict   TrailingSlashMode = "strict"
)

// QueryParamsMode mirrors navigator.QueryParamsMode.
type QueryParamsMode string

const (
	QueryParamsDefault QueryParamsMode = "default"
	QueryParamsStrict  QueryParamsMode = "strict"
	QueryParamsLoose   QueryParamsMode = "loose"
)

// MatchOptions configures one Match call.
type MatchOptions struct {
	TrailingSlash   TrailingSlashMode
	QueryParamsMode QueryParamsMode
}

// ErrInvalidPathType is returned by Match when given a non-string input at
// the API boundary; Matcher.Match itself always takes a string, so this is
// reserved for callers wrapping Match behind an `any` boundary.
var ErrInvalidPathType = errors.New("tree: path must be a string")

// MatchResult is the outcome of a successful Match.
type MatchResult struct {
	Name        string
	URLParams   map[string]string
	QueryParams map[string]string
	Path        string
	ParamKinds  map[string]ParamKind
}

// Matcher is the bidirectional path↔state resolver derived from a Tree.
type Matcher struct {
	tree *Tree
}

// NewMatcher derives a Matcher from a compiled Tree.
func NewMatcher(t *Tree) *Matcher { return &Matcher{tree: t} }

// Tree returns the Tree this Matcher was derived from.
func (m *Matcher) Tree() *Tree { return m.tree }

// Match resolves path against the tree. It returns (nil, nil) — not an
// error — when no route matches or a strict policy rejects the input;
// returning a non-nil error is reserved for malformed input that the type
// guard layer should already have rejected.
func (m *Matcher) Match(path string, opts MatchOptions) (*MatchResult, error) {
	if path == "" || !strings.HasPrefix(path, "/") {
		return nil, nil
	}
	if strings.Contains(strings.SplitN(path, "?", 2)[0], "//") {
		return nil, nil
	}

	rawPath, rawQuery, _ := strings.Cut(path, "?")

	hadTrailingSlash := len(rawPath) > 1 && strings.HasSuffix(rawPath, "/")
	trimmed := strings.Trim(rawPath, "/")

	var segments []string
	if trimmed != "" {
		segments = strings.Split(trimmed, "/")
	}

	urlParams := map[string]string{}
	kinds := map[string]ParamKind{}

	staticKey := ""
	for _, s := range segments {
		staticKey += "/" + s
	}
	var lf *leaf
	var ok bool
	if m.tree.bloom.mightContain(staticKey) {
		if name, isStatic := m.tree.staticPaths[staticKey]; isStatic {
			lf, ok = m.tree.leaves[name], true
		}
	}
	if !ok {
		lf, ok = walk(m.tree.root, segments, 0, urlParams, kinds)
	}
	if !ok {
		return nil, nil
	}

	if opts.TrailingSlash == TrailingSlashStrict && len(segments) > 0 {
		if hadTrailingSlash != lf.hadTrailingSlash {
			return nil, nil
		}
	}

	queryValues := parseQueryString(rawQuery)
	queryParams := map[string]string{}
	declared := make(map[string]bool, len(lf.queryParams))
	for _, name := range lf.queryParams {
		declared[name] = true
	}

	for key, value := range queryValues {
		if declared[key] {
			queryParams[key] = decodeParam(value)
			kinds[key] = ParamKindQuery
			continue
		}
		switch opts.QueryParamsMode {
		case QueryParamsStrict:
			return nil, nil
		case QueryParamsLoose:
			// discard undeclared
		default: // "default" or ""
			queryParams[key] = decodeParam(value)
			kinds[key] = ParamKindQuery
		}
	}
	// Declared query params absent from the input simply don't appear.

	return &MatchResult{
		Name:        lf.name,
		URLParams:   urlParams,
		QueryParams: queryParams,
		Path:        path,
		ParamKinds:  kinds,
	}, nil
}

func walk(n *node, segments []string, i int, urlParams map[string]string, kinds map[string]ParamKind) (*leaf, bool) {
	if i == len(segments) {
		if n.leaf == nil {
			return nil, false
		}
		return n.leaf, true
	}
	seg := segments[i]

	if child, ok := n.static[seg]; ok {
		if lf, ok := walk(child, segments, i+1, urlParams, kinds); ok {
			return lf, true
		}
	}
	if n.param != nil {
		decoded := decodeParam(seg)
		if n.param.meta.constraint == nil || n.param.meta.constraint.MatchString(decoded) {
			// try this branch; roll back on failure since urlParams/kinds are shared
			urlParams[n.param.meta.paramName] = decoded
			kinds[n.param.meta.paramName] = ParamKindURL
			if lf, ok := walk(n.param.node, segments, i+1, urlParams, kinds); ok {
				return lf, true
			}
			delete(urlParams, n.param.meta.paramName)
			delete(kinds, n.param.meta.paramName)
		}
	}
	if n.splat != nil && n.splat.node.leaf != nil {
		rest := strings.Join(segments[i:], "/")
		urlParams[n.splat.meta.paramName] = decodeParam(rest)
		kinds[n.splat.meta.paramName] = ParamKindURL
		return n.splat.node.leaf, true
	}
	return nil, false
}

func parseQueryString(raw string) map[string]string {
	values := map[string]string{}
	if raw == "" {
		return values
	}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		values[key] = value
	}
	return values
}

// Build reconstructs the canonical path for name from params. Declared URL
// (and splat) parameters are substituted into the path; any remaining keys
// in params are appended as query-string pairs, sorted for determinism.
func (m *Matcher) Build(name string, params map[string]any, trailingSlash TrailingSlashMode, encoding Encoding) (string, error) {
	if name == UnknownRouteName {
		if p, ok := params["path"]; ok {
			if s, ok := p.(string); ok {
				return s, nil
			}
		}
		return "", nil
	}

	lf, ok := m.tree.leaves[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrRouteNotFound, name)
	}

	consumed := map[string]bool{}
	var b strings.Builder
	for _, seg := range lf.segments {
		b.WriteByte('/')
		switch seg.kind {
		case segLiteral:
			b.WriteString(seg.literal)
		case segParam:
			v, ok := params[seg.paramName]
			if !ok {
				return "", fmt.Errorf("%w: %q", ErrMissingURLParam, seg.paramName)
			}
			s := stringify(v)
			if seg.constraint != nil && !seg.constraint.MatchString(s) {
				return "", fmt.Errorf("tree: value %q for parameter %q violates its constraint", s, seg.paramName)
			}
			b.WriteString(encodeParam(s, encoding))
			consumed[seg.paramName] = true
		case segSplat:
			v, ok := params[seg.paramName]
			if !ok {
				return "", fmt.Errorf("%w: %q", ErrMissingURLParam, seg.paramName)
			}
			b.WriteString(stringify(v))
			consumed[seg.paramName] = true
		}
	}

	path := b.String()
	if path == "" {
		path = "/"
	}

	switch trailingSlash {
	case TrailingSlashAlways:
		if !strings.HasSuffix(path, "/") {
			path += "/"
		}
	case TrailingSlashNever:
		if len(path) > 1 {
			path = strings.TrimSuffix(path, "/")
		}
	default: // preserve, strict: respect how the route was declared
		if lf.hadTrailingSlash && !strings.HasSuffix(path, "/") {
			path += "/"
		}
		if !lf.hadTrailingSlash && len(path) > 1 {
			path = strings.TrimSuffix(path, "/")
		}
	}

	extraKeys := make([]string, 0, len(params))
	for k := range params {
		if !consumed[k] {
			extraKeys = append(extraKeys, k)
		}
	}
	if len(extraKeys) == 0 {
		return path, nil
	}
	sort.Strings(extraKeys)

	var q strings.Builder
	for i, k := range extraKeys {
		if i > 0 {
			q.WriteByte('&')
		}
		q.WriteString(encodeParam(k, encoding))
		q.WriteByte('=')
		q.WriteString(encodeParam(stringify(params[k]), encoding))
	}
	return path + "?" + q.String(), nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// UnknownRouteName is the reserved system pseudo-route. Its Build is the
// identity function on the "path" parameter if present, else "".
const UnknownRouteName = "@@router/UNKNOWN_ROUTE"

// ErrRouteNotFound mirrors navigator.ErrUnknownRoute without an import
// cycle; Router.BuildPath returns it unwrapped.
var ErrRouteNotFound = errors.New("tree: route not found")

// ErrMissingURLParam mirrors navigator.ErrMissingURLParam.
var ErrMissingURLParam = errors.New("tree: missing required url parameter")
