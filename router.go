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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"rivaas.dev/navigator/events"
	"rivaas.dev/navigator/internal/diag"
	"rivaas.dev/navigator/lifecycle"
	"rivaas.dev/navigator/plugin"
	"rivaas.dev/navigator/route"
	"rivaas.dev/navigator/routeconfig"
	"rivaas.dev/navigator/tree"
)

// Router is the framework-agnostic navigation core (C12): it owns the
// route configuration store, the dependency map, the event bus, the
// lifecycle and plugin registries, and the current/previous State pair,
// and drives the transition pipeline for every navigation.
//
// Construction never fails (New always returns a usable *Router); runtime
// errors surface from Start/Navigate/AddRoute and friends instead,
// matching the teacher's "configuration errors surface loudly, at the
// point of use" philosophy.
type Router struct {
	opts Options
	deps *Dependencies

	store     *routeconfig.Store
	bus       *events.Bus
	lifecycle *lifecycle.Registry
	plugins   *plugin.Registry

	mu       sync.Mutex
	current  *State
	previous *State
	inFlight *inFlightTransition

	middlewareMu sync.RWMutex
	middleware   []Middleware

	rootPathMu sync.RWMutex
	rootPath   string

	idCounter stateIDCounter
	active    atomic.Bool
	stopping  atomic.Bool
	started   atomic.Bool
}

// diagFunc adapts o.diagnose (the root package's DiagnosticKind-typed
// callback) into the internal/diag.Func vocabulary every bounded registry
// package reports through, so events/lifecycle/plugin diagnostics surface
// through the same WithDiagnostics handler as the router's own.
func diagFunc(o *Options) diag.Func {
	return func(tier diag.Tier, message string) {
		switch tier {
		case diag.Error:
			o.diagnose(DiagnosticLimitError, message, nil)
		case diag.Overwritten:
			o.diagnose(DiagnosticGuardOverwritten, message, nil)
		default:
			o.diagnose(DiagnosticLimitWarn, message, nil)
		}
	}
}

// New constructs a Router from the given options. The returned Router is
// not started — call Start before Navigate.
func New(opts ...Option) *Router {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	bus := events.New(o.Limits.MaxListeners, o.Limits.MaxEventDepth, func(channel events.Channel, err error) {
		o.logger.Error("navigator: listener panicked", "channel", channel, "error", err)
	}, diagFunc(&o))

	lc := lifecycle.New(
		o.Limits.MaxLifecycleHandlers,
		o.Limits.warnThreshold(o.Limits.MaxLifecycleHandlers),
		o.Limits.errThreshold(o.Limits.MaxLifecycleHandlers),
		diagFunc(&o),
	)

	r := &Router{
		opts:      o,
		store:     routeconfig.New(o.Limits.MaxForwardDepth),
		bus:       bus,
		lifecycle: lc,
		plugins:   plugin.New(bus, o.Limits.MaxPlugins, diagFunc(&o)),
	}
	r.deps = newDependencies(o.Limits.MaxDependencies, func(kind DiagnosticKind, message string) {
		r.opts.diagnose(kind, message, nil)
	})
	return r
}

// translateConfigErr maps a routeconfig sentinel error onto the
// equivalent navigator.Err* sentinel, so callers using errors.Is against
// this package's own errors see a hit regardless of which layer actually
// detected the problem.
func translateConfigErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, routeconfig.ErrDuplicateRouteName):
		return fmt.Errorf("%w: %v", ErrDuplicateRouteName, err)
	case errors.Is(err, routeconfig.ErrUnknownRoute):
		return fmt.Errorf("%w: %v", ErrUnknownRoute, err)
	case errors.Is(err, routeconfig.ErrForwardCycle):
		return fmt.Errorf("%w: %v", ErrForwardCycle, err)
	case errors.Is(err, routeconfig.ErrForwardTooDeep):
		return fmt.Errorf("%w: %v", ErrForwardTooDeep, err)
	case errors.Is(err, routeconfig.ErrForwardParamMismatch):
		return fmt.Errorf("%w: %v", ErrForwardParamMismatch, err)
	case errors.Is(err, routeconfig.ErrRouteActive):
		return fmt.Errorf("%w: %v", ErrRouteActive, err)
	case errors.Is(err, routeconfig.ErrTransitionInProgress):
		return fmt.Errorf("%w: %v", ErrTransitionInProgress, err)
	default:
		return err
	}
}

// AddRoute registers defs (possibly nested) under parentName ("" for
// top-level), compiling their canActivate/canDeactivate guards into the
// lifecycle registry. It returns dead-guard diagnostic messages (also
// forwarded to WithDiagnostics, if configured).
func (r *Router) AddRoute(defs []route.Definition, parentName string) ([]string, error) {
	warnings, err := r.store.Add(defs, parentName)
	if err != nil {
		return nil, translateConfigErr(err)
	}
	for _, w := range warnings {
		r.opts.diagnose(DiagnosticDeadGuard, w, nil)
	}
	if err := r.registerGuards(defs, parentName); err != nil {
		return warnings, err
	}
	return warnings, nil
}

func (r *Router) registerGuards(defs []route.Definition, parentName string) error {
	for _, d := range defs {
		full := d.Name
		if parentName != "" {
			full = parentName + "." + d.Name
		}
		if d.CanActivate != nil {
			if err := r.lifecycle.AddCanActivate(full, d.CanActivate, r, r.deps.Get); err != nil {
				return err
			}
		}
		if d.CanDeactivate != nil {
			if err := r.lifecycle.AddCanDeactivate(full, d.CanDeactivate, r, r.deps.Get); err != nil {
				return err
			}
		}
		if len(d.Children) > 0 {
			if err := r.registerGuards(d.Children, full); err != nil {
				return err
			}
		}
	}
	return nil
}

// RemoveRoute deletes name and every descendant route. It refuses if name
// is the router's current state or an ancestor of it.
func (r *Router) RemoveRoute(name string) error {
	err := r.store.Remove(name, r.isActiveOrAncestor)
	if err != nil {
		return translateConfigErr(err)
	}
	r.lifecycle.ClearCanActivate(name)
	r.lifecycle.ClearCanDeactivate(name)
	return nil
}

func (r *Router) isActiveOrAncestor(name string) bool {
	cur := r.GetState()
	if cur == nil {
		return false
	}
	return cur.Name() == name || hasDotPrefix(cur.Name(), name)
}

// UpdateRoute applies mutate to name's current definition and recompiles
// the store with the patched route in place.
func (r *Router) UpdateRoute(name string, mutate func(*route.Definition)) error {
	return translateConfigErr(r.store.Update(name, mutate))
}

// ClearRoutes removes every route. It refuses while a transition is in
// progress.
func (r *Router) ClearRoutes() error {
	if err := r.store.Clear(r.hasActiveTransition); err != nil {
		return translateConfigErr(err)
	}
	r.lifecycle.ClearCanActivate("")
	r.lifecycle.ClearCanDeactivate("")
	return nil
}

func (r *Router) hasActiveTransition() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight != nil
}

// HasRoute reports whether name is registered.
func (r *Router) HasRoute(name string) bool { return r.store.HasRoute(name) }

// GetRoute returns the registered Definition for name.
func (r *Router) GetRoute(name string) (route.Definition, bool) { return r.store.Get(name) }

// GetRouteConfig returns a snapshot of name's route-config state
// (defaultParams, forwardTo, resolved forward target, custom fields).
func (r *Router) GetRouteConfig(name string) (routeconfig.RouteConfig, bool) {
	return r.store.GetConfig(name)
}

// RouteNames returns every registered route name, sorted. This also
// satisfies plugin.RouterHandle.
func (r *Router) RouteNames() []string { return r.store.RouteNames() }

// ForwardMap returns a defensive copy of the static forward map.
func (r *Router) ForwardMap() map[string]string { return r.store.ForwardMap() }

// SetRootPath sets the path prefix prepended to every built path and
// stripped, when present, from every path passed to MatchPath/Navigate.
func (r *Router) SetRootPath(path string) {
	r.rootPathMu.Lock()
	defer r.rootPathMu.Unlock()
	r.rootPath = path
}

// GetRootPath returns the current root path prefix.
func (r *Router) GetRootPath() string {
	r.rootPathMu.RLock()
	defer r.rootPathMu.RUnlock()
	return r.rootPath
}

func (r *Router) getRootPath() string { return r.GetRootPath() }

// MatchPath resolves path against the compiled route tree, applying
// defaults, decodeParams and forwarding resolution, without running the
// transition pipeline or mutating router state.
func (r *Router) MatchPath(path string) (*State, error) {
	return r.matchPathToState(context.Background(), path, NavigationOptions{})
}

// BuildPath reconstructs the canonical path for name from params,
// applying the route's encodeParams codec and the router's root path.
func (r *Router) BuildPath(name string, params map[string]any) (string, error) {
	encodeParams := params
	if encode := r.store.EncodeParams(name); encode != nil {
		if out := encode(params); out != nil {
			encodeParams = out
		}
	}
	path, err := r.store.Matcher().Build(name, encodeParams, r.opts.TrailingSlash, tree.Encoding(r.opts.URLParamsEncoding))
	if err != nil {
		return "", err
	}
	return r.getRootPath() + path, nil
}

// IsActive reports whether the router is between Start and Stop (true
// even during the brief window where Start is still running its initial
// navigation).
func (r *Router) IsActive() bool { return r.active.Load() }

// IsStarted reports whether Start has completed successfully and Stop has
// not yet been called.
func (r *Router) IsStarted() bool { return r.started.Load() }

// Start activates the router and runs the initial navigation. startTarget
// may be nil (use WithDefaultRoute/WithDefaultRouteFunc), a path string
// beginning with "/", or a route name. Start fails with
// ROUTER_ALREADY_STARTED if called while already active, and with
// NO_START_PATH_OR_STATE if no default route is configured and no target
// is supplied.
func (r *Router) Start(ctx context.Context, startTarget any) (*State, error) {
	if !r.active.CompareAndSwap(false, true) {
		return nil, newRouterError(CodeRouterAlreadyStarted, nil, nil, nil)
	}

	target, err := r.resolveStartTarget(ctx, startTarget)
	if err != nil {
		r.active.Store(false)
		return nil, err
	}

	navOpts := NavigationOptions{Replace: true}
	newCorrelationID(&navOpts)
	result, err := r.executeTransition(ctx, target, nil, navOpts)
	if err != nil {
		r.active.Store(false)
		return nil, err
	}

	r.started.Store(true)
	_ = r.bus.Emit(events.RouterStart, events.RouterStartPayload{})
	return result, nil
}

func (r *Router) resolveStartTarget(ctx context.Context, startTarget any) (*State, error) {
	switch v := startTarget.(type) {
	case nil:
		return r.resolveDefaultRoute(ctx)
	case string:
		if v == "" {
			return r.resolveDefaultRoute(ctx)
		}
		return r.resolvePathOrName(ctx, v)
	case *State:
		return v, nil
	default:
		return nil, newRouterError(CodeNoStartPathOrState, nil, nil, nil)
	}
}

func (r *Router) resolveDefaultRoute(ctx context.Context) (*State, error) {
	name := r.opts.DefaultRoute
	var params map[string]any
	if r.opts.DefaultRouteFn != nil {
		name, params = r.opts.DefaultRouteFn()
	}
	if name == "" {
		return nil, newRouterError(CodeNoStartPathOrState, nil, nil, nil)
	}
	return r.buildState(ctx, name, params, NavigationOptions{Replace: true})
}

func (r *Router) resolvePathOrName(ctx context.Context, nameOrPath string) (*State, error) {
	target, err := r.resolveTarget(ctx, nameOrPath, nil, NavigationOptions{Replace: true})
	if err != nil {
		return nil, err
	}
	if target == nil {
		if r.opts.AllowNotFound {
			return r.makeNotFoundState(nameOrPath, NavigationOptions{Replace: true}), nil
		}
		return nil, newRouterError(CodeRouteNotFound, nil, nil, fmt.Errorf("%w: %q", ErrUnknownRoute, nameOrPath))
	}
	return target, nil
}

// Stop cancels any in-flight transition, clears the current/previous
// state pair (the monotonic state id counter is never reset — I4), emits
// ROUTER_STOP, and only then deactivates the router — matching the
// lifecycle ordering so a concurrent Start cannot commit new state that
// this call would otherwise clobber. Calling Stop when not active is a
// no-op.
func (r *Router) Stop() {
	if !r.active.Load() {
		return
	}
	if !r.stopping.CompareAndSwap(false, true) {
		return
	}
	defer r.stopping.Store(false)

	r.Cancel()
	r.mu.Lock()
	r.current = nil
	r.previous = nil
	r.mu.Unlock()
	r.started.Store(false)
	_ = r.bus.Emit(events.RouterStop, events.RouterStopPayload{})
	r.active.Store(false)
}

// GetState returns the router's current state (nil if not started).
func (r *Router) GetState() *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// GetPreviousState returns the state the router transitioned from on its
// most recent successful navigation (nil if there has been none).
func (r *Router) GetPreviousState() *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.previous
}

// SetState forcibly overwrites the current state without running a
// transition. Intended for host integrations restoring persisted state;
// it does not emit any event.
func (r *Router) SetState(s *State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.previous = r.current
	r.current = s
}

// MakeState builds a State for name/params without running it through the
// transition pipeline or mutating router state — the building block
// exposed to host code that needs a State value for comparison or storage
// without navigating to it.
func (r *Router) MakeState(name string, params map[string]any, navOpts NavigationOptions) (*State, error) {
	return r.buildState(context.Background(), name, params, navOpts)
}

// MakeNotFoundState builds the "@@router/UNKNOWN_ROUTE" pseudo-state for
// rawInput, without consulting AllowNotFound.
func (r *Router) MakeNotFoundState(rawInput string) *State {
	return r.makeNotFoundState(rawInput, NavigationOptions{})
}

// BuildState resolves forwarding for name and stamps a fresh state id,
// without requiring the caller to have navigated.
func (r *Router) BuildState(name string, params map[string]any) (*State, error) {
	return r.buildState(context.Background(), name, params, NavigationOptions{})
}

// ForwardState resolves name's forward chain and returns the terminal
// route name, without building a full State.
func (r *Router) ForwardState(ctx context.Context, name string, params map[string]any) (string, error) {
	return r.store.ResolveForward(ctx, name, params)
}

// AreStatesEqual reports whether a and b are equal per spec §4.3: same
// name and (by default) matching URL params only; ignoreQuery=false also
// requires matching query params.
func (r *Router) AreStatesEqual(a, b *State, ignoreQuery bool) bool {
	return areStatesEqual(a, b, ignoreQuery)
}

// IsActiveRoute reports whether name (with params) describes the
// router's current state, or — unless strict is set — an ancestor
// segment of it whose own params also match.
func (r *Router) IsActiveRoute(name string, params map[string]any, strict, ignoreQuery bool) bool {
	defaults := r.defaultParamsFor(name)
	return isActiveRoute(r.GetState(), name, params, defaults, strict, ignoreQuery)
}

// AddEventListener subscribes fn to channel, rejecting a duplicate
// registration of the same function value.
func (r *Router) AddEventListener(channel events.Channel, fn events.Listener) (events.Unsubscribe, error) {
	return r.bus.On(channel, fn)
}

// InvokeEventListeners emits payload on channel directly — mainly useful
// for host code driving user-defined channels through the same bus the
// router uses internally.
func (r *Router) InvokeEventListeners(channel events.Channel, payload any) error {
	return r.bus.Emit(channel, payload)
}

// UsePlugin registers factories as one batch (see plugin.Registry.Use).
func (r *Router) UsePlugin(factories ...plugin.Factory) (events.Unsubscribe, error) {
	return r.plugins.Use(r, r.deps.Get, factories...)
}

// AddActivateGuard registers a canActivate guard factory for name,
// overwriting and warning on any prior guard for the same name.
func (r *Router) AddActivateGuard(name string, factory route.ActivationFactory) error {
	return r.lifecycle.AddCanActivate(name, factory, r, r.deps.Get)
}

// AddDeactivateGuard registers a canDeactivate guard factory for name.
func (r *Router) AddDeactivateGuard(name string, factory route.ActivationFactory) error {
	return r.lifecycle.AddCanDeactivate(name, factory, r, r.deps.Get)
}

// ClearCanActivate removes every registered canActivate guard, or only
// name's if name is non-empty.
func (r *Router) ClearCanActivate(name string) { r.lifecycle.ClearCanActivate(name) }

// ClearCanDeactivate removes every registered canDeactivate guard, or
// only name's if name is non-empty.
func (r *Router) ClearCanDeactivate(name string) { r.lifecycle.ClearCanDeactivate(name) }

// UseMiddleware appends mw to the middleware chain run between
// canDeactivate and canActivate on every transition, enforcing
// maxMiddleware.
func (r *Router) UseMiddleware(mw ...Middleware) error {
	r.middlewareMu.Lock()
	defer r.middlewareMu.Unlock()
	max := r.opts.Limits.MaxMiddleware
	total := len(r.middleware) + len(mw)
	if total > max {
		return fmt.Errorf("%w: %d > %d", ErrMiddlewareLimitExceeded, total, max)
	}
	r.middleware = append(r.middleware, mw...)
	switch {
	case total >= r.opts.Limits.errThreshold(max):
		r.opts.diagnose(DiagnosticLimitError, fmt.Sprintf("middleware: chain at %d/%d entries, past the error threshold", total, max), nil)
	case total >= r.opts.Limits.warnThreshold(max):
		r.opts.diagnose(DiagnosticLimitWarn, fmt.Sprintf("middleware: chain at %d/%d entries, past the warn threshold", total, max), nil)
	}
	return nil
}

// ClearMiddleware removes every registered middleware function.
func (r *Router) ClearMiddleware() {
	r.middlewareMu.Lock()
	defer r.middlewareMu.Unlock()
	r.middleware = nil
}

func (r *Router) middlewareSnapshot() []Middleware {
	r.middlewareMu.RLock()
	defer r.middlewareMu.RUnlock()
	return append([]Middleware(nil), r.middleware...)
}

// SetDependency stores a single named dependency.
func (r *Router) SetDependency(name string, value any) error { return r.deps.Set(name, value) }

// SetDependencies merges a batch of dependencies.
func (r *Router) SetDependencies(values map[string]any) error { return r.deps.SetAll(values) }

// GetDependency returns the named dependency and whether it was present.
func (r *Router) GetDependency(name string) (any, bool) { return r.deps.Get(name) }

// GetDependencies returns a defensive copy of every registered dependency.
func (r *Router) GetDependencies() map[string]any { return r.deps.GetAll() }

// HasDependency reports whether a dependency is registered under name.
func (r *Router) HasDependency(name string) bool { return r.deps.Has(name) }

// RemoveDependency deletes a named dependency.
func (r *Router) RemoveDependency(name string) { r.deps.Remove(name) }

// ResetDependencies clears every dependency.
func (r *Router) ResetDependencies() { r.deps.Reset() }

// newCorrelationID stamps a fresh UUID for NavigationOptions.Metadata when
// the caller hasn't supplied one under the "correlationId" key. The id is
// carried on the TRANSITION_SUCCESS payload's Options; the other
// TRANSITION_* payloads expose it only through a To state built after the
// stamp (Navigate's target, but not Start's initial target).
func newCorrelationID(navOpts *NavigationOptions) {
	if navOpts.Metadata == nil {
		navOpts.Metadata = map[string]any{}
	}
	if _, ok := navOpts.Metadata["correlationId"]; !ok {
		navOpts.Metadata["correlationId"] = uuid.NewString()
	}
}
