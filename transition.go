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
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"rivaas.dev/navigator/events"
	"rivaas.dev/navigator/internal/validate"
	"rivaas.dev/navigator/tree"
)

// Middleware runs between canDeactivate and canActivate for every
// transition. Returning a non-nil error aborts the transition with
// CodeTransitionErr. This collapses the routing contract's arity-2/
// arity-3 JS middleware polymorphism (return value vs. a done callback)
// into the one idiomatic Go shape: a plain synchronous function with an
// explicit error return — see DESIGN.md for the Open Question note.
type Middleware func(ctx context.Context, to, from *State) error

// transitionToken is the cooperative cancellation handle for one
// in-flight transition (I3: at most one transition is committing at any
// instant). Starting a new navigation cancels whatever token currently
// owns r.inFlight before proceeding.
type transitionToken struct {
	canceled atomic.Bool
}

func (t *transitionToken) cancel()     { t.canceled.Store(true) }
func (t *transitionToken) isCanceled() bool { return t.canceled.Load() }

type inFlightTransition struct {
	token *transitionToken
	to    *State
	from  *State
}

// segmentChain returns name's ancestor chain, from the top-level segment
// down to name itself: "users.detail" -> ["users", "users.detail"].
func segmentChain(name string) []string {
	if name == "" {
		return nil
	}
	parts := strings.Split(name, ".")
	chain := make([]string, len(parts))
	cur := ""
	for i, p := range parts {
		if cur == "" {
			cur = p
		} else {
			cur = cur + "." + p
		}
		chain[i] = cur
	}
	return chain
}

// diffSegments computes the deactivating (deepest-first) and activating
// (shallowest-first) segment lists for a transition from fromName to
// toName, per spec §4.7 step 6: ancestors of one not shared with the
// other.
func diffSegments(fromName, toName string) (deactivating, activating []string) {
	fromChain := segmentChain(fromName)
	toChain := segmentChain(toName)

	shared := 0
	for shared < len(fromChain) && shared < len(toChain) && fromChain[shared] == toChain[shared] {
		shared++
	}

	deactivating = make([]string, len(fromChain)-shared)
	for i, seg := range fromChain[shared:] {
		deactivating[len(deactivating)-1-i] = seg
	}
	activating = append([]string(nil), toChain[shared:]...)
	return deactivating, activating
}

// buildState implements spec §4.3's state-creation algorithm for a
// navigate call that names a route directly (as opposed to one that
// matched a literal path — see matchPathToState for that variant).
func (r *Router) buildState(ctx context.Context, requestedName string, providedParams map[string]any, navOpts NavigationOptions) (*State, error) {
	if !r.store.HasRoute(requestedName) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, requestedName)
	}

	resolvedName, err := r.store.ResolveForward(ctx, requestedName, providedParams)
	if err != nil {
		return nil, err
	}
	redirected := resolvedName != requestedName

	merged := mergeParamSources(r.defaultParamsFor(requestedName), r.defaultParamsFor(resolvedName), providedParams)

	if decode := r.store.DecodeParams(resolvedName); decode != nil {
		if out := decode(merged); out != nil {
			merged = out
		}
	}

	for k, v := range merged {
		if err := validate.Serializable(v); err != nil {
			return nil, fmt.Errorf("%w: param %q: %v", ErrNotSerializable, k, err)
		}
	}

	encodeParams := merged
	if encode := r.store.EncodeParams(resolvedName); encode != nil {
		if out := encode(merged); out != nil {
			encodeParams = out
		}
	}

	path, err := r.store.Matcher().Build(resolvedName, encodeParams, r.opts.TrailingSlash, tree.Encoding(r.opts.URLParamsEncoding))
	if err != nil {
		return nil, err
	}

	meta := &StateMeta{
		ID:         r.idCounter.next(),
		Params:     classifyParams(r.store.Tree(), resolvedName, merged),
		Options:    navOpts,
		Redirected: redirected,
	}
	return newState(resolvedName, merged, r.getRootPath()+path, meta), nil
}

// classifyParams records, for every key in params, whether it is a
// declared URL parameter, a declared query parameter, or (falling back to
// the matcher's own default classification for unclassified values) a
// query parameter.
func classifyParams(t *tree.Tree, name string, params map[string]any) RouteTreeStateMeta {
	if len(params) == 0 {
		return nil
	}
	urlNames, _ := t.URLParamNames(name)
	urlSet := make(map[string]bool, len(urlNames))
	for _, n := range urlNames {
		urlSet[n] = true
	}
	kinds := make(map[string]ParamKind, len(params))
	for k := range params {
		if urlSet[k] {
			kinds[k] = ParamKindURL
		} else {
			kinds[k] = ParamKindQuery
		}
	}
	return RouteTreeStateMeta{name: kinds}
}

// matchPathToState implements spec §4.1 steps 3-9: turn an input path
// into a resolved, possibly-forwarded State.
func (r *Router) matchPathToState(ctx context.Context, path string, navOpts NavigationOptions) (*State, error) {
	if root := r.getRootPath(); root != "" && strings.HasPrefix(path, root) {
		rest := path[len(root):]
		switch {
		case rest == "" || rest[0] == '?':
			path = "/" + rest
		case rest[0] == '/':
			path = rest
		}
	}
	result, err := r.store.Matcher().Match(path, tree.MatchOptions{
		TrailingSlash:   r.opts.TrailingSlash,
		QueryParamsMode: tree.QueryParamsMode(r.opts.QueryParamsMode),
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	merged := map[string]any{}
	for k, v := range r.defaultParamsFor(result.Name) {
		merged[k] = v
	}
	for k, v := range result.URLParams {
		merged[k] = v
	}
	for k, v := range result.QueryParams {
		merged[k] = v
	}

	if decode := r.store.DecodeParams(result.Name); decode != nil {
		if out := decode(merged); out != nil {
			merged = out
		}
	}

	finalPath := result.Path
	if r.opts.RewritePathOnMatch {
		if built, err := r.store.Matcher().Build(result.Name, merged, r.opts.TrailingSlash, tree.Encoding(r.opts.URLParamsEncoding)); err == nil {
			finalPath = built
		}
	}

	resolvedName, err := r.store.ResolveForward(ctx, result.Name, merged)
	if err != nil {
		return nil, err
	}
	redirected := resolvedName != result.Name
	if redirected {
		merged = mergeParamSources(nil, r.defaultParamsFor(resolvedName), merged)
	}

	meta := &StateMeta{
		ID:         r.idCounter.next(),
		Params:     stateMetaFromMatch(resolvedName, result.ParamKinds),
		Options:    navOpts,
		Redirected: redirected,
	}
	return newState(resolvedName, merged, r.getRootPath()+finalPath, meta), nil
}

func (r *Router) defaultParamsFor(name string) map[string]any {
	merged := map[string]any{}
	for k, v := range r.opts.DefaultParams[name] {
		merged[k] = v
	}
	for k, v := range r.store.DefaultParams(name) {
		merged[k] = v
	}
	return merged
}

// resolveTarget dispatches nameOrPath to matchPathToState (paths start
// with "/") or buildState (bare route names), per spec's combined
// navigate(nameOrPath, ...) contract.
func (r *Router) resolveTarget(ctx context.Context, nameOrPath string, params map[string]any, navOpts NavigationOptions) (*State, error) {
	if strings.HasPrefix(nameOrPath, "/") {
		if err := validate.InputPath(nameOrPath); err != nil {
			return nil, err
		}
		return r.matchPathToState(ctx, nameOrPath, navOpts)
	}
	if err := validate.RouteName(nameOrPath); err != nil {
		return nil, err
	}
	return r.buildState(ctx, nameOrPath, params, navOpts)
}

// makeNotFoundState builds the "@@router/UNKNOWN_ROUTE" pseudo-state used
// when AllowNotFound is set and nothing matched.
func (r *Router) makeNotFoundState(rawInput string, navOpts NavigationOptions) *State {
	meta := &StateMeta{ID: r.idCounter.next(), Options: navOpts}
	return newState(tree.UnknownRouteName, map[string]any{"path": rawInput}, rawInput, meta)
}

func withRedirected(s *State, redirected bool) *State {
	if s == nil || !redirected {
		return s
	}
	meta := s.Meta()
	if meta == nil {
		meta = &StateMeta{}
	}
	meta.Redirected = true
	return newState(s.name, cloneAny(s.params).(map[string]any), s.path, meta)
}

// Navigate runs the full transition pipeline (C11) for one navigation
// request: forwarding resolution, path matching, canDeactivate ->
// middleware -> canActivate, commit, event emission, with cooperative
// cancellation of whatever transition was previously in flight.
func (r *Router) Navigate(ctx context.Context, nameOrPath string, params map[string]any, navOpts NavigationOptions) (*State, error) {
	if !r.started.Load() {
		return nil, newRouterError(CodeRouterNotStarted, nil, nil, nil)
	}
	newCorrelationID(&navOpts)

	target, err := r.resolveTarget(ctx, nameOrPath, params, navOpts)
	if err != nil {
		return nil, err
	}

	from := r.GetState()

	if target == nil {
		if r.opts.AllowNotFound {
			target = r.makeNotFoundState(nameOrPath, navOpts)
		} else {
			rerr := newRouterError(CodeRouteNotFound, nil, from, fmt.Errorf("%w: %q", ErrUnknownRoute, nameOrPath))
			_ = r.bus.Emit(events.TransitionError, events.TransitionErrorPayload{To: nil, From: from, Error: rerr})
			return nil, rerr
		}
	}

	return r.executeTransition(ctx, target, from, navOpts)
}

// executeTransition runs the canDeactivate -> middleware -> canActivate ->
// commit portion of the pipeline (spec §4.7 steps 3-10) against an
// already-resolved target. Both Navigate and the initial navigation run
// by Start share this so the first transition into the router also goes
// through guards and middleware like any other.
func (r *Router) executeTransition(ctx context.Context, target, from *State, navOpts NavigationOptions) (*State, error) {
	if !navOpts.Reload && !navOpts.Force && areStatesEqual(from, target, true) {
		return nil, newRouterError(CodeSameStates, target, from, nil)
	}

	token := &transitionToken{}
	r.mu.Lock()
	prev := r.inFlight
	r.inFlight = &inFlightTransition{token: token, to: target, from: from}
	r.mu.Unlock()
	if prev != nil {
		prev.token.cancel()
		_ = r.bus.Emit(events.TransitionCancel, events.TransitionPayload{To: prev.to, From: prev.from})
	}

	if !navOpts.SkipTransitionHooks {
		_ = r.bus.Emit(events.TransitionStart, events.TransitionPayload{To: target, From: from})
	}

	cancelled := func() (*State, error) {
		return nil, newRouterError(CodeTransitionCancelled, target, from, nil)
	}
	abort := func(code Code, cause error) (*State, error) {
		rerr := newRouterError(code, target, from, cause)
		_ = r.bus.Emit(events.TransitionError, events.TransitionErrorPayload{To: target, From: from, Error: rerr})
		r.clearInFlight(token)
		return nil, rerr
	}

	redirectCount := 0
	anyRedirect := false

	for {
		deactivating, activating := diffSegments(safeName(from), target.Name())

		redirectedThisPass := false
		for _, seg := range deactivating {
			if token.isCanceled() {
				return cancelled()
			}
			result := r.lifecycle.CheckDeactivateGuardSync(ctx, seg, target.Name(), target.Params(), safeName(from), safeParams(from))
			if result.Allow {
				continue
			}
			if result.RedirectName != "" {
				redirectCount++
				if redirectCount > r.opts.Limits.MaxRedirects {
					return abort(CodeCannotDeactivate, ErrForwardTooDeep)
				}
				newTarget, err := r.buildState(ctx, result.RedirectName, result.RedirectParams, navOpts)
				if err != nil {
					return abort(CodeCannotDeactivate, err)
				}
				target = newTarget
				anyRedirect = true
				redirectedThisPass = true
				break
			}
			return abort(CodeCannotDeactivate, nil)
		}
		if redirectedThisPass {
			continue
		}

		for _, mw := range r.middlewareSnapshot() {
			if token.isCanceled() {
				return cancelled()
			}
			if err := mw(ctx, target, from); err != nil {
				return abort(CodeTransitionErr, err)
			}
		}

		for _, seg := range activating {
			if token.isCanceled() {
				return cancelled()
			}
			result := r.lifecycle.CheckActivateGuardSync(ctx, seg, target.Name(), target.Params(), safeName(from), safeParams(from))
			if result.Allow {
				continue
			}
			if result.RedirectName != "" {
				redirectCount++
				if redirectCount > r.opts.Limits.MaxRedirects {
					return abort(CodeCannotActivate, ErrForwardTooDeep)
				}
				newTarget, err := r.buildState(ctx, result.RedirectName, result.RedirectParams, navOpts)
				if err != nil {
					return abort(CodeCannotActivate, err)
				}
				target = newTarget
				anyRedirect = true
				redirectedThisPass = true
				break
			}
			return abort(CodeCannotActivate, nil)
		}
		if redirectedThisPass {
			continue
		}
		break
	}

	if token.isCanceled() {
		return cancelled()
	}

	target = withRedirected(target, anyRedirect)

	r.mu.Lock()
	r.previous = r.current
	r.current = target
	if r.inFlight != nil && r.inFlight.token == token {
		r.inFlight = nil
	}
	r.mu.Unlock()

	_ = r.bus.Emit(events.TransitionSuccess, events.TransitionSuccessPayload{To: target, From: from, Options: navOpts})
	return target, nil
}

func (r *Router) clearInFlight(token *transitionToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight != nil && r.inFlight.token == token {
		r.inFlight = nil
	}
}

func safeName(s *State) string {
	if s == nil {
		return ""
	}
	return s.Name()
}

func safeParams(s *State) map[string]any {
	if s == nil {
		return nil
	}
	return s.Params()
}

// Cancel cancels whatever transition is currently in flight, if any. It is
// idempotent; a repeated call (or one with nothing in flight) is a no-op.
func (r *Router) Cancel() {
	r.mu.Lock()
	inFlight := r.inFlight
	r.inFlight = nil
	r.mu.Unlock()
	if inFlight != nil {
		inFlight.token.cancel()
		_ = r.bus.Emit(events.TransitionCancel, events.TransitionPayload{To: inFlight.to, From: inFlight.from})
	}
}
