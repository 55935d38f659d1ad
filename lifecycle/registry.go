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

// Package lifecycle implements the lifecycle registry (C9): per-route
// canActivate/canDeactivate guard factories, compiled once at registration
// to bound guard functions, with the bounded-threshold warning behaviour
// shared by every limited registry in this module.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rivaas.dev/navigator/internal/diag"
	"rivaas.dev/navigator/route"
)

var ErrLimitExceeded = errors.New("lifecycle: registry exceeds maxLifecycleHandlers")

// Registry stores compiled canActivate/canDeactivate guards, one pair per
// route name. Zero value is not usable; construct with New.
type Registry struct {
	mu         sync.RWMutex
	activate   map[string]route.ActivationFunc
	deactivate map[string]route.ActivationFunc
	max        int
	warnAt     int
	errAt      int
	diagnostic diag.Func
}

// New constructs a Registry bounded by max total guards (activate +
// deactivate combined). warnAt/errAt are the 20%/50% threshold counts;
// crossing warnAt emits a diag.Warn diagnostic, crossing errAt emits
// diag.Error, crossing max is a hard error. Re-registering a guard under
// an existing name always emits diag.Overwritten, regardless of threshold.
func New(max, warnAt, errAt int, diagnostic diag.Func) *Registry {
	return &Registry{
		activate:   map[string]route.ActivationFunc{},
		deactivate: map[string]route.ActivationFunc{},
		max:        max,
		warnAt:     warnAt,
		errAt:      errAt,
		diagnostic: diagnostic,
	}
}

// getDependency is the dependency lookup passed to an ActivationFactory at
// registration time.
type getDependency = func(name string) (any, bool)

// AddCanActivate compiles factory (invoked exactly once, now, bound to
// router and getDep) and stores the result under name, overwriting and
// warning on any prior guard for the same name.
func (r *Registry) AddCanActivate(name string, factory route.ActivationFactory, router route.RouterHandle, getDep getDependency) error {
	return r.add(r.activate, name, factory, router, getDep, "canActivate")
}

// AddCanDeactivate compiles factory and stores it under name.
func (r *Registry) AddCanDeactivate(name string, factory route.ActivationFactory, router route.RouterHandle, getDep getDependency) error {
	return r.add(r.deactivate, name, factory, router, getDep, "canDeactivate")
}

func (r *Registry) add(dst map[string]route.ActivationFunc, name string, factory route.ActivationFactory, router route.RouterHandle, getDep getDependency, kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := dst[name]; exists {
		r.diagnose(diag.Overwritten, fmt.Sprintf("lifecycle: re-registering %s for route %q; prior guard overwritten", kind, name))
	}

	total := len(r.activate) + len(r.deactivate)
	if _, exists := dst[name]; !exists {
		total++ // this call will add a new entry
	}
	if total > r.max {
		return fmt.Errorf("%w: %d > %d", ErrLimitExceeded, total, r.max)
	}
	if total >= r.errAt {
		r.diagnose(diag.Error, fmt.Sprintf("lifecycle: registry at %d/%d guards, past the error threshold", total, r.max))
	} else if total >= r.warnAt {
		r.diagnose(diag.Warn, fmt.Sprintf("lifecycle: registry at %d/%d guards, past the warn threshold", total, r.max))
	}

	dst[name] = factory(router, getDep)
	return nil
}

func (r *Registry) diagnose(tier diag.Tier, message string) {
	if r.diagnostic != nil {
		r.diagnostic(tier, message)
	}
}

// GuardResult is the outcome of CheckActivateGuardSync /
// CheckDeactivateGuardSync: Allow is the permissive/deny verdict;
// RedirectName/RedirectParams are set when the guard requested a
// redirect instead of a plain allow/deny.
type GuardResult struct {
	Allow          bool
	RedirectName   string
	RedirectParams map[string]any
}

// CheckActivateGuardSync runs name's canActivate guard synchronously. A
// missing guard is permissive (Allow: true). A guard that returns an
// error is denied (Allow: false) — the error is not surfaced here, only
// the allow/deny verdict and any redirect request; callers that need the
// rejection reason should call the guard's error through a different
// path if they need it (this mirrors spec's boolean-first "throws ->
// false" sync check contract).
func (r *Registry) CheckActivateGuardSync(ctx context.Context, name, toName string, toParams map[string]any, fromName string, fromParams map[string]any) GuardResult {
	return r.checkSync(ctx, r.activate, name, toName, toParams, fromName, fromParams)
}

// CheckDeactivateGuardSync runs name's canDeactivate guard synchronously.
func (r *Registry) CheckDeactivateGuardSync(ctx context.Context, name, toName string, toParams map[string]any, fromName string, fromParams map[string]any) GuardResult {
	return r.checkSync(ctx, r.deactivate, name, toName, toParams, fromName, fromParams)
}

func (r *Registry) checkSync(ctx context.Context, src map[string]route.ActivationFunc, name, toName string, toParams map[string]any, fromName string, fromParams map[string]any) GuardResult {
	r.mu.RLock()
	guard, ok := src[name]
	r.mu.RUnlock()
	if !ok {
		return GuardResult{Allow: true}
	}

	allow, redirectName, redirectParams, err := guard(ctx, toName, toParams, fromName, fromParams)
	if err != nil {
		return GuardResult{Allow: false}
	}
	return GuardResult{Allow: allow, RedirectName: redirectName, RedirectParams: redirectParams}
}

// ClearCanActivate removes every registered canActivate guard (or only
// name's, if name is non-empty).
func (r *Registry) ClearCanActivate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		r.activate = map[string]route.ActivationFunc{}
		return
	}
	delete(r.activate, name)
}

// ClearCanDeactivate removes every registered canDeactivate guard (or only
// name's, if name is non-empty).
func (r *Registry) ClearCanDeactivate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		r.deactivate = map[string]route.ActivationFunc{}
		return
	}
	delete(r.deactivate, name)
}

// HasCanActivate reports whether name has a registered canActivate guard.
func (r *Registry) HasCanActivate(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.activate[name]
	return ok
}

// HasCanDeactivate reports whether name has a registered canDeactivate guard.
func (r *Registry) HasCanDeactivate(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.deactivate[name]
	return ok
}

// BoolGuardFactory adapts a constant boolean short-circuit into an
// ActivationFactory, matching spec's "A boolean short-circuits to a
// constant guard" registration form.
func BoolGuardFactory(allow bool) route.ActivationFactory {
	return func(router route.RouterHandle, getDependency func(string) (any, bool)) route.ActivationFunc {
		return func(ctx context.Context, toName string, toParams map[string]any, fromName string, fromParams map[string]any) (bool, string, map[string]any, error) {
			return allow, "", nil, nil
		}
	}
}
