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
	"fmt"
	"sort"
)

// node is one trie node. A node carries at most one param child and one
// splat child (per spec: each segment is either literal, parameterised or
// splat) plus any number of static children keyed by literal text.
type node struct {
	static map[string]*node
	param  *paramChild
	splat  *splatChild
	leaf   *leaf
}

type paramChild struct {
	meta pathSegment
	node *node
}

type splatChild struct {
	meta pathSegment
	node *node
}

// leaf is attached to the node terminating a registered route.
type leaf struct {
	name             string
	segments         []pathSegment
	queryParams      []string
	hadTrailingSlash bool
}

func newNode() *node { return &node{static: map[string]*node{}} }

// Input describes one route to compile: its fully-dotted name and raw path
// pattern.
type Input struct {
	Name string
	Path string
}

// Tree is the compiled, immutable route trie plus the indexes the Matcher
// needs (C2). Build a new Tree with Compile; there is no in-place mutation.
type Tree struct {
	root        *node
	leaves      map[string]*leaf
	staticPaths map[string]string // canonical static path -> route name, for bloom-guarded fast path
	bloom       *staticBloom
}

// Compile builds a Tree from a flat set of (name, path) pairs. Names must
// be unique and are expected to already be dotted by the caller (the
// router-configuration store is responsible for nesting names under their
// parents before calling Compile).
func Compile(inputs []Input) (*Tree, error) {
	root := newNode()
	leaves := make(map[string]*leaf, len(inputs))
	staticPaths := make(map[string]string)

	for _, in := range inputs {
		if _, exists := leaves[in.Name]; exists {
			return nil, fmt.Errorf("tree: duplicate route name %q", in.Name)
		}
		parsed, err := parsePath(in.Path)
		if err != nil {
			return nil, err
		}
		lf := &leaf{
			name:             in.Name,
			segments:         parsed.segments,
			queryParams:      parsed.queryParams,
			hadTrailingSlash: parsed.hadTrailingSlash,
		}
		if err := insert(root, parsed.segments, lf); err != nil {
			return nil, err
		}
		leaves[in.Name] = lf
		if isAllStatic(parsed.segments) {
			staticPaths[staticKey(parsed.segments)] = in.Name
		}
	}

	bloom := newStaticBloom(len(staticPaths))
	for key := range staticPaths {
		bloom.add(key)
	}

	return &Tree{root: root, leaves: leaves, staticPaths: staticPaths, bloom: bloom}, nil
}

func isAllStatic(segments []pathSegment) bool {
	for _, s := range segments {
		if s.kind != segLiteral {
			return false
		}
	}
	return true
}

func staticKey(segments []pathSegment) string {
	key := ""
	for _, s := range segments {
		key += "/" + s.literal
	}
	return key
}

func insert(root *node, segments []pathSegment, lf *leaf) error {
	n := root
	for _, seg := range segments {
		switch seg.kind {
		case segLiteral:
			child, ok := n.static[seg.literal]
			if !ok {
				child = newNode()
				n.static[seg.literal] = child
			}
			n = child
		case segParam:
			if n.param == nil {
				n.param = &paramChild{meta: seg, node: newNode()}
			} else if n.param.meta.paramName != seg.paramName {
				return fmt.Errorf("tree: conflicting parameter names %q and %q at the same position",
					n.param.meta.paramName, seg.paramName)
			}
			n = n.param.node
		case segSplat:
			if n.splat == nil {
				n.splat = &splatChild{meta: seg, node: newNode()}
			}
			n = n.splat.node
		}
	}
	if n.leaf != nil {
		return fmt.Errorf("tree: route %q collides with existing route %q on the same path", lf.name, n.leaf.name)
	}
	n.leaf = lf
	return nil
}

// RouteNames returns every compiled route name, sorted for deterministic
// introspection output.
func (t *Tree) RouteNames() []string {
	names := make([]string, 0, len(t.leaves))
	for name := range t.leaves {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasRoute reports whether name is a compiled route.
func (t *Tree) HasRoute(name string) bool {
	_, ok := t.leaves[name]
	return ok
}

// SegmentSpec describes one segment of a route's path pattern, as returned
// by SegmentsByName — used by callers that need the raw parameter/splat
// names for a route (e.g. the forwarding param-compatibility check).
type SegmentSpec struct {
	Literal   string
	ParamName string
	IsParam   bool
	IsSplat   bool
}

// SegmentsByName returns the ordered path segments for name, or (nil,
// false) if the route does not exist.
func (t *Tree) SegmentsByName(name string) ([]SegmentSpec, bool) {
	lf, ok := t.leaves[name]
	if !ok {
		return nil, false
	}
	specs := make([]SegmentSpec, 0, len(lf.segments))
	for _, s := range lf.segments {
		switch s.kind {
		case segLiteral:
			specs = append(specs, SegmentSpec{Literal: s.literal})
		case segParam:
			specs = append(specs, SegmentSpec{ParamName: s.paramName, IsParam: true})
		case segSplat:
			specs = append(specs, SegmentSpec{ParamName: s.paramName, IsSplat: true})
		}
	}
	return specs, true
}

// URLParamNames returns the declared URL parameter (and splat) names for a
// route, in path order — used by the forwarding param-compatibility check
// (target params must be a subset of source params).
func (t *Tree) URLParamNames(name string) ([]string, bool) {
	lf, ok := t.leaves[name]
	if !ok {
		return nil, false
	}
	names := make([]string, 0, len(lf.segments))
	for _, s := range lf.segments {
		if s.kind == segParam || s.kind == segSplat {
			names = append(names, s.paramName)
		}
	}
	return names, true
}

// QueryParamNames returns the declared query parameter names for a route.
func (t *Tree) QueryParamNames(name string) ([]string, bool) {
	lf, ok := t.leaves[name]
	if !ok {
		return nil, false
	}
	return lf.queryParams, true
}
