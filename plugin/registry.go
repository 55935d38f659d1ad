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

// Package plugin implements the plugin registry (C10): hosts plugin
// factories, binds their event-handler fields to the event bus, and
// provides all-or-nothing rollback for a batch registration.
//
// The factory contract's "may only contain event-handler methods, unknown
// keys rejected" rule is enforced structurally in Go: Plugin is a struct
// of named, optional handler fields, so there is no dynamic key to
// validate — a value that does not fit the shape simply does not compile.
package plugin

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"rivaas.dev/navigator/events"
	"rivaas.dev/navigator/internal/diag"
)

var ErrLimitExceeded = errors.New("plugin: registry exceeds maxPlugins")

// RouterHandle is the subset of Router capabilities exposed to a plugin
// factory. navigator.Router satisfies this interface structurally; the
// plugin package never imports the root package.
type RouterHandle interface {
	RouteNames() []string
	HasRoute(name string) bool
}

// GetDependency resolves a named dependency, mirroring
// navigator.Dependencies.Get's (value, ok) shape.
type GetDependency func(name string) (any, bool)

// Plugin is the set of event-handler hooks a factory may wire up. Any
// field may be left nil.
type Plugin struct {
	OnStart             func(payload events.RouterStartPayload)
	OnStop              func(payload events.RouterStopPayload)
	OnTransitionStart   func(payload events.TransitionPayload)
	OnTransitionSuccess func(payload events.TransitionSuccessPayload)
	OnTransitionError   func(payload events.TransitionErrorPayload)
	OnTransitionCancel  func(payload events.TransitionPayload)
	Teardown            func()
}

// Factory builds a Plugin bound to router and a dependency lookup. It is
// invoked exactly once, synchronously, at registration time.
type Factory func(router RouterHandle, getDependency GetDependency) (Plugin, error)

type registered struct {
	unsubs   []events.Unsubscribe
	teardown func()
}

// Registry hosts registered plugin batches. Zero value is not usable;
// construct with New.
type Registry struct {
	mu         sync.Mutex
	bus        *events.Bus
	count      int
	max        int
	diagnostic diag.Func
}

// Count returns the number of currently registered plugins (across every
// still-subscribed Use batch).
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// New constructs a Registry bounded by max total plugins (summed across
// every Use call), dispatching plugin hooks through bus. diagnostic may be
// nil; when set it receives a warn diagnostic at 20% of max and an error
// diagnostic at 50%, short of the hard failure raised at 100%.
func New(bus *events.Bus, max int, diagnostic diag.Func) *Registry {
	return &Registry{bus: bus, max: max, diagnostic: diagnostic}
}

func (r *Registry) diagnose(tier diag.Tier, message string) {
	if r.diagnostic != nil {
		r.diagnostic(tier, message)
	}
}

// Use validates and registers factories as a single batch: factories are
// deduplicated within the batch (by func identity), invoked sequentially,
// and on any error every plugin initialised so far in this call is
// unsubscribed and torn down before the error is returned — no partial
// batch is ever committed. On success it returns one Unsubscribe that
// removes every listener registered by this batch and calls every
// plugin's Teardown.
func (r *Registry) Use(router RouterHandle, getDependency GetDependency, factories ...Factory) (events.Unsubscribe, error) {
	deduped := dedupeFactories(factories)

	r.mu.Lock()
	total := r.count + len(deduped)
	if total > r.max {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %d > %d", ErrLimitExceeded, total, r.max)
	}
	r.mu.Unlock()

	if total >= r.max/2 {
		r.diagnose(diag.Error, fmt.Sprintf("plugin: registry at %d/%d plugins, past the error threshold", total, r.max))
	} else if total >= r.max/5 {
		r.diagnose(diag.Warn, fmt.Sprintf("plugin: registry at %d/%d plugins, past the warn threshold", total, r.max))
	}

	var initialized []*registered
	rollback := func() {
		for _, reg := range initialized {
			for _, u := range reg.unsubs {
				u()
			}
			if reg.teardown != nil {
				reg.teardown()
			}
		}
	}

	for _, factory := range deduped {
		p, err := factory(router, getDependency)
		if err != nil {
			rollback()
			return nil, err
		}
		reg, err := r.subscribe(p)
		if err != nil {
			rollback()
			return nil, err
		}
		initialized = append(initialized, reg)
	}

	r.mu.Lock()
	r.count += len(initialized)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for _, reg := range initialized {
				for _, u := range reg.unsubs {
					u()
				}
				if reg.teardown != nil {
					reg.teardown()
				}
				r.count--
			}
		})
	}, nil
}

func (r *Registry) subscribe(p Plugin) (*registered, error) {
	reg := &registered{teardown: p.Teardown}

	if p.OnStart != nil {
		u, err := r.bus.On(events.RouterStart, func(payload any) { p.OnStart(payload.(events.RouterStartPayload)) })
		if err != nil {
			return nil, err
		}
		reg.unsubs = append(reg.unsubs, u)
	}
	if p.OnStop != nil {
		u, err := r.bus.On(events.RouterStop, func(payload any) { p.OnStop(payload.(events.RouterStopPayload)) })
		if err != nil {
			return nil, err
		}
		reg.unsubs = append(reg.unsubs, u)
	}
	if p.OnTransitionStart != nil {
		u, err := r.bus.On(events.TransitionStart, func(payload any) { p.OnTransitionStart(payload.(events.TransitionPayload)) })
		if err != nil {
			return nil, err
		}
		reg.unsubs = append(reg.unsubs, u)
	}
	if p.OnTransitionSuccess != nil {
		u, err := r.bus.On(events.TransitionSuccess, func(payload any) { p.OnTransitionSuccess(payload.(events.TransitionSuccessPayload)) })
		if err != nil {
			return nil, err
		}
		reg.unsubs = append(reg.unsubs, u)
	}
	if p.OnTransitionError != nil {
		u, err := r.bus.On(events.TransitionError, func(payload any) { p.OnTransitionError(payload.(events.TransitionErrorPayload)) })
		if err != nil {
			return nil, err
		}
		reg.unsubs = append(reg.unsubs, u)
	}
	if p.OnTransitionCancel != nil {
		u, err := r.bus.On(events.TransitionCancel, func(payload any) { p.OnTransitionCancel(payload.(events.TransitionPayload)) })
		if err != nil {
			return nil, err
		}
		reg.unsubs = append(reg.unsubs, u)
	}

	return reg, nil
}

func dedupeFactories(factories []Factory) []Factory {
	seen := map[uintptr]bool{}
	out := make([]Factory, 0, len(factories))
	for _, f := range factories {
		id := factoryIdentity(f)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, f)
	}
	return out
}

func factoryIdentity(f Factory) uintptr {
	return reflect.ValueOf(f).Pointer()
}
