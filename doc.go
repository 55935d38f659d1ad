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

// Package navigator is a framework-agnostic navigation engine: a route
// tree, a cancellable transition pipeline, a route-configuration store
// with forwarding, and an event bus with a plugin contract. It has no
// opinion about history, rendering, or transport — those attach through
// the public Router API, event listeners registered with AddEventListener,
// and plugins registered with UsePlugin.
//
// # Key Features
//
//   - Route tree with literal, :param, :param<regex> and *splat segments,
//     compiled into an immutable, copy-on-write tree swapped atomically on
//     every mutation.
//   - A cancellable transition pipeline running canDeactivate, middleware
//     and canActivate guards in order, with bounded guard-redirect chains
//     and cooperative cancellation of a superseded in-flight transition.
//   - Route forwarding (one route silently redirecting to another, static
//     or dynamically resolved) with default-parameter merging.
//   - A synchronous, ordered event bus for the six well-known router
//     events plus arbitrary user channels, and a plugin registry that
//     binds factories to it with all-or-nothing batch rollback.
//   - Bounded registries (dependencies, plugins, middleware, listeners,
//     guards) with
//     warn/error diagnostics before the hard limit is ever hit.
//
// # Constructor Pattern
//
// Navigator follows the same pragmatic constructor pattern as its
// ancestry:
//
//   - New() returns *Router, never an error. Construction only allocates
//     memory and applies options; there is no I/O or external dependency
//     to fail against.
//
//   - Every option uses the "With" prefix (WithDefaultRoute, WithLogger,
//     WithLimits, ...) and is applied eagerly against the Router.
//
//   - Configuration mistakes that must fail loudly — an unknown default
//     route, a router started twice — surface from Start, the first call
//     that actually needs them to be correct.
//
// # Quick Start
//
//	r := navigator.New(navigator.WithDefaultRoute("home"))
//	_, err := r.AddRoute([]route.Definition{
//	    route.New("home", "/").Build(),
//	    route.New("users", "/users").Children(
//	        route.New("detail", "/:id").Build(),
//	    ).Build(),
//	}, "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	state, err := r.Start(context.Background(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	state, err = r.Navigate(context.Background(), "users.detail", map[string]any{"id": "42"}, navigator.NavigationOptions{})
package navigator
