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

// Package routeconfig implements the route configuration store (C6): it
// owns route definitions, keeps the compiled tree and the derived forward
// maps consistent with every mutation, and validates forwarding before it
// ever reaches a transition. The compiled tree is swapped atomically on
// every mutation (copy-on-write) so an in-flight transition keeps reading
// its pre-mutation snapshot.
package routeconfig

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"rivaas.dev/navigator/internal/validate"
	"rivaas.dev/navigator/route"
	"rivaas.dev/navigator/tree"
)

// Sentinel errors mirror navigator's own Err* vars without importing the
// root package (routeconfig is imported BY navigator, not the reverse).
// The router layer maps these back onto navigator.RouterError via
// errors.Is against navigator's sentinels.
var (
	ErrDuplicateRouteName   = errors.New("routeconfig: route already registered with this name")
	ErrUnknownRoute         = errors.New("routeconfig: route does not exist")
	ErrForwardCycle         = errors.New("routeconfig: forwarding chain is cyclic")
	ErrForwardTooDeep       = errors.New("routeconfig: forwarding chain exceeds maximum depth")
	ErrForwardParamMismatch = errors.New("routeconfig: forwardTo target params are not a subset of source params")
	ErrRouteActive          = errors.New("routeconfig: cannot remove a route that is the current state or an ancestor of it")
	ErrTransitionInProgress = errors.New("routeconfig: cannot clear routes while a transition is in progress")
)

// entry is the flattened, stored form of a route.Definition: Children has
// been consumed into separate top-level entries keyed by their full dotted
// name, so entry itself never carries children.
type entry struct {
	def  route.Definition // Name is the full dotted name; Children is always nil here
	path string
}

// Store is the route configuration store (C6). Zero value is not usable;
// construct with New.
type Store struct {
	mu sync.RWMutex

	entries            map[string]entry
	forwardMap         map[string]string
	forwardFnMap       map[string]route.ForwardFunc
	resolvedForwardMap map[string]string

	treeRef    atomic.Pointer[tree.Tree]
	matcherRef atomic.Pointer[tree.Matcher]

	maxForwardDepth int
	forwardGroup    singleflight.Group
}

// New constructs an empty Store. maxForwardDepth bounds both the static
// resolvedForwardMap chain length and the number of hops ResolveForward
// will chase through dynamic forwards at request time.
func New(maxForwardDepth int) *Store {
	s := &Store{
		entries:            map[string]entry{},
		forwardMap:         map[string]string{},
		forwardFnMap:       map[string]route.ForwardFunc{},
		resolvedForwardMap: map[string]string{},
		maxForwardDepth:    maxForwardDepth,
	}
	empty, _ := tree.Compile(nil)
	s.treeRef.Store(empty)
	s.matcherRef.Store(tree.NewMatcher(empty))
	return s
}

// Tree returns the current compiled tree snapshot. Safe for concurrent use
// with mutations — the pointer swap is atomic and this snapshot remains
// valid even after a subsequent Add/Remove/Update/Clear.
func (s *Store) Tree() *tree.Tree { return s.treeRef.Load() }

// Matcher returns the Matcher derived from the current tree snapshot.
func (s *Store) Matcher() *tree.Matcher { return s.matcherRef.Load() }

// flatten recursively assigns full dotted names to defs and their children,
// validating each name/path, and appends every node (parent and descendant
// alike) to out as a childless entry.
func flatten(defs []route.Definition, parentName string, out map[string]entry) error {
	for _, d := range defs {
		fullName := d.Name
		if parentName != "" {
			fullName = parentName + "." + d.Name
		}
		if err := validate.RouteName(d.Name); err != nil {
			return err
		}
		if err := validate.RoutePath(d.Path); err != nil {
			return err
		}
		if _, exists := out[fullName]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateRouteName, fullName)
		}
		flat := d
		flat.Name = fullName
		flat.Children = nil
		out[fullName] = entry{def: flat, path: d.Path}

		if len(d.Children) > 0 {
			if err := flatten(d.Children, fullName, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// Add registers defs (possibly nested) under parentName ("" for top-level)
// atomically: on any validation or compile failure the store is left
// completely unchanged. On success it returns diagnostic messages for
// routes where both forwardTo/forwardToFn and a canActivate/canDeactivate
// guard are declared together — forwarding wins, the guard is dead code —
// for the caller to forward to a DiagnosticHandler.
func (s *Store) Add(defs []route.Definition, parentName string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flat := map[string]entry{}
	if err := flatten(defs, parentName, flat); err != nil {
		return nil, err
	}

	candidateEntries := make(map[string]entry, len(s.entries)+len(flat))
	for k, v := range s.entries {
		candidateEntries[k] = v
	}
	for k, v := range flat {
		if _, exists := candidateEntries[k]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRouteName, k)
		}
		candidateEntries[k] = v
	}

	candidateForwardMap := make(map[string]string, len(s.forwardMap)+len(flat))
	for k, v := range s.forwardMap {
		candidateForwardMap[k] = v
	}
	candidateForwardFnMap := make(map[string]route.ForwardFunc, len(s.forwardFnMap)+len(flat))
	for k, v := range s.forwardFnMap {
		candidateForwardFnMap[k] = v
	}
	var warnings []string
	for name, e := range flat {
		if e.def.ForwardTo != "" {
			candidateForwardMap[name] = e.def.ForwardTo
		}
		if e.def.ForwardToFn != nil {
			candidateForwardFnMap[name] = e.def.ForwardToFn
		}
		hasForward := e.def.ForwardTo != "" || e.def.ForwardToFn != nil
		hasGuard := e.def.CanActivate != nil || e.def.CanDeactivate != nil
		if hasForward && hasGuard {
			warnings = append(warnings, fmt.Sprintf("route %q declares both forwarding and a canActivate/canDeactivate guard; forwarding takes precedence and the guard is dead code", name))
		}
	}

	newTree, err := compileEntries(candidateEntries)
	if err != nil {
		return nil, err
	}

	for src, target := range candidateForwardMap {
		if _, ok := candidateEntries[target]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, target)
		}
		if err := checkForwardParams(newTree, src, target); err != nil {
			return nil, err
		}
	}

	resolved, err := rebuildResolved(candidateForwardMap, s.maxForwardDepth)
	if err != nil {
		return nil, err
	}

	s.entries = candidateEntries
	s.forwardMap = candidateForwardMap
	s.forwardFnMap = candidateForwardFnMap
	s.resolvedForwardMap = resolved
	s.treeRef.Store(newTree)
	s.matcherRef.Store(tree.NewMatcher(newTree))

	return warnings, nil
}

func compileEntries(entries map[string]entry) (*tree.Tree, error) {
	inputs := make([]tree.Input, 0, len(entries))
	for name, e := range entries {
		inputs = append(inputs, tree.Input{Name: name, Path: e.path})
	}
	return tree.Compile(inputs)
}

// checkForwardParams enforces I6: target URL params must be a subset of
// source URL params.
func checkForwardParams(t *tree.Tree, src, target string) error {
	srcParams, ok := t.URLParamNames(src)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRoute, src)
	}
	targetParams, ok := t.URLParamNames(target)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRoute, target)
	}
	have := make(map[string]bool, len(srcParams))
	for _, p := range srcParams {
		have[p] = true
	}
	for _, p := range targetParams {
		if !have[p] {
			return fmt.Errorf("%w: %q needs %q which %q does not provide", ErrForwardParamMismatch, target, p, src)
		}
	}
	return nil
}

// rebuildResolved computes the transitive closure of forwardMap, detecting
// cycles and enforcing maxDepth. The result satisfies P3: every chain
// terminates, and resolving an already-resolved target is a no-op
// (resolved[resolved[x]] == resolved[x] holds because resolved[x] is never
// itself a key of forwardMap once resolution has run to its end).
func rebuildResolved(forwardMap map[string]string, maxDepth int) (map[string]string, error) {
	resolved := make(map[string]string, len(forwardMap))
	for src := range forwardMap {
		visited := map[string]bool{src: true}
		cur := src
		depth := 0
		for {
			next, ok := forwardMap[cur]
			if !ok {
				break
			}
			if visited[next] {
				return nil, fmt.Errorf("%w: %q", ErrForwardCycle, src)
			}
			visited[next] = true
			cur = next
			depth++
			if depth > maxDepth {
				return nil, fmt.Errorf("%w: %q exceeds %d hops", ErrForwardTooDeep, src, maxDepth)
			}
		}
		resolved[src] = cur
	}
	return resolved, nil
}

// Remove deletes name and every descendant (name + "." prefix) from the
// store. isActiveOrAncestor must report whether name is the router's
// current state or an ancestor of it — Remove refuses in that case.
// Forward entries whose target is a removed name are purged.
func (s *Store) Remove(name string, isActiveOrAncestor func(string) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRoute, name)
	}
	if isActiveOrAncestor != nil && isActiveOrAncestor(name) {
		return fmt.Errorf("%w: %q", ErrRouteActive, name)
	}

	toRemove := map[string]bool{name: true}
	prefix := name + "."
	for n := range s.entries {
		if len(n) > len(prefix) && n[:len(prefix)] == prefix {
			toRemove[n] = true
		}
	}

	candidateEntries := make(map[string]entry, len(s.entries))
	for k, v := range s.entries {
		if !toRemove[k] {
			candidateEntries[k] = v
		}
	}

	candidateForwardMap := make(map[string]string, len(s.forwardMap))
	for k, v := range s.forwardMap {
		if toRemove[k] || toRemove[v] {
			continue
		}
		candidateForwardMap[k] = v
	}
	candidateForwardFnMap := make(map[string]route.ForwardFunc, len(s.forwardFnMap))
	for k, v := range s.forwardFnMap {
		if toRemove[k] {
			continue
		}
		candidateForwardFnMap[k] = v
	}

	newTree, err := compileEntries(candidateEntries)
	if err != nil {
		return err
	}
	resolved, err := rebuildResolved(candidateForwardMap, s.maxForwardDepth)
	if err != nil {
		return err
	}

	s.entries = candidateEntries
	s.forwardMap = candidateForwardMap
	s.forwardFnMap = candidateForwardFnMap
	s.resolvedForwardMap = resolved
	s.treeRef.Store(newTree)
	s.matcherRef.Store(tree.NewMatcher(newTree))
	return nil
}

// Update applies mutate to a copy of name's current definition and
// recompiles the store with the patched route in place. The route's full
// dotted name and children are preserved regardless of what mutate does to
// the Name/Children fields.
func (s *Store) Update(name string, mutate func(*route.Definition)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRoute, name)
	}

	patched := existing.def
	mutate(&patched)
	patched.Name = name
	patched.Children = nil

	if err := validate.RoutePath(patched.Path); err != nil {
		return err
	}

	candidateEntries := make(map[string]entry, len(s.entries))
	for k, v := range s.entries {
		candidateEntries[k] = v
	}
	candidateEntries[name] = entry{def: patched, path: patched.Path}

	candidateForwardMap := make(map[string]string, len(s.forwardMap))
	for k, v := range s.forwardMap {
		candidateForwardMap[k] = v
	}
	delete(candidateForwardMap, name)
	if patched.ForwardTo != "" {
		candidateForwardMap[name] = patched.ForwardTo
	}
	candidateForwardFnMap := make(map[string]route.ForwardFunc, len(s.forwardFnMap))
	for k, v := range s.forwardFnMap {
		candidateForwardFnMap[k] = v
	}
	delete(candidateForwardFnMap, name)
	if patched.ForwardToFn != nil {
		candidateForwardFnMap[name] = patched.ForwardToFn
	}

	newTree, err := compileEntries(candidateEntries)
	if err != nil {
		return err
	}
	if target, ok := candidateForwardMap[name]; ok {
		if _, exists := candidateEntries[target]; !exists {
			return fmt.Errorf("%w: %q", ErrUnknownRoute, target)
		}
		if err := checkForwardParams(newTree, name, target); err != nil {
			return err
		}
	}
	resolved, err := rebuildResolved(candidateForwardMap, s.maxForwardDepth)
	if err != nil {
		return err
	}

	s.entries = candidateEntries
	s.forwardMap = candidateForwardMap
	s.forwardFnMap = candidateForwardFnMap
	s.resolvedForwardMap = resolved
	s.treeRef.Store(newTree)
	s.matcherRef.Store(tree.NewMatcher(newTree))
	return nil
}

// Clear removes every route. hasActiveTransition must report whether a
// transition is currently in progress — Clear refuses in that case.
func (s *Store) Clear(hasActiveTransition func() bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hasActiveTransition != nil && hasActiveTransition() {
		return ErrTransitionInProgress
	}

	s.entries = map[string]entry{}
	s.forwardMap = map[string]string{}
	s.forwardFnMap = map[string]route.ForwardFunc{}
	s.resolvedForwardMap = map[string]string{}
	empty, _ := tree.Compile(nil)
	s.treeRef.Store(empty)
	s.matcherRef.Store(tree.NewMatcher(empty))
	return nil
}

// Get returns the registered Definition for name (Children always nil,
// since children are stored as independent top-level entries).
func (s *Store) Get(name string) (route.Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e.def, ok
}

// RouteConfig is a read-only snapshot of one route's configuration-store
// state, returned by GetConfig.
type RouteConfig struct {
	Name            string
	DefaultParams   map[string]any
	ForwardTo       string
	HasForwardToFn  bool
	ResolvedForward string
	Custom          map[string]any
}

// GetConfig returns a defensive-copy snapshot of name's route-config state.
func (s *Store) GetConfig(name string) (RouteConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return RouteConfig{}, false
	}
	return RouteConfig{
		Name:            name,
		DefaultParams:   copyAnyMap(e.def.DefaultParams),
		ForwardTo:       s.forwardMap[name],
		HasForwardToFn:  s.forwardFnMap[name] != nil,
		ResolvedForward: s.resolvedForwardMap[name],
		Custom:          copyAnyMap(e.def.Custom),
	}, true
}

func copyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// DefaultParams returns name's declared default params, or nil.
func (s *Store) DefaultParams(name string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAnyMap(s.entries[name].def.DefaultParams)
}

// DecodeParams returns name's decodeParams codec, or nil.
func (s *Store) DecodeParams(name string) route.ParamsCodec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[name].def.DecodeParams
}

// EncodeParams returns name's encodeParams codec, or nil.
func (s *Store) EncodeParams(name string) route.ParamsCodec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[name].def.EncodeParams
}

// CanActivate returns name's canActivate guard factory, or nil.
func (s *Store) CanActivate(name string) route.ActivationFactory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[name].def.CanActivate
}

// CanDeactivate returns name's canDeactivate guard factory, or nil.
func (s *Store) CanDeactivate(name string) route.ActivationFactory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[name].def.CanDeactivate
}

// ForwardMap returns a defensive copy of the static forward map, for
// devtool-style introspection (Router.ForwardMap).
func (s *Store) ForwardMap() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]string, len(s.forwardMap))
	for k, v := range s.forwardMap {
		cp[k] = v
	}
	return cp
}

// RouteNames returns every registered route name, sorted.
func (s *Store) RouteNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for n := range s.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HasRoute reports whether name is registered.
func (s *Store) HasRoute(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[name]
	return ok
}

// ResolveForward follows name's forward chain (dynamic then static,
// repeated until a route with no forward is reached or maxForwardDepth is
// exceeded) and returns the terminal route name. If name has no forward at
// all, it returns name unchanged. Concurrent dynamic resolutions for the
// same source name are coalesced via singleflight, since forwardFnMap
// callbacks are explicitly not cached and a burst of concurrent
// navigations to the same forwarding route would otherwise invoke the
// callback once per caller.
func (s *Store) ResolveForward(ctx context.Context, name string, params map[string]any) (string, error) {
	cur := name
	visited := map[string]bool{cur: true}

	for depth := 0; depth <= s.maxForwardDepth; depth++ {
		s.mu.RLock()
		fn := s.forwardFnMap[cur]
		resolved, hasStatic := s.resolvedForwardMap[cur]
		s.mu.RUnlock()

		if fn != nil {
			key := cur
			v, err, _ := s.forwardGroup.Do(key, func() (any, error) {
				return fn(params, ctx)
			})
			if err != nil {
				return "", err
			}
			next := v.(string)
			if visited[next] {
				return "", fmt.Errorf("%w: %q", ErrForwardCycle, name)
			}
			visited[next] = true
			cur = next
			continue
		}
		if !hasStatic || resolved == cur {
			return cur, nil
		}
		if visited[resolved] {
			return "", fmt.Errorf("%w: %q", ErrForwardCycle, name)
		}
		visited[resolved] = true
		cur = resolved
	}
	return "", fmt.Errorf("%w: %q exceeds %d hops", ErrForwardTooDeep, name, s.maxForwardDepth)
}
