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

// Package route defines the immutable input to the tree compiler: route
// definitions, and the fluent builder used to assemble a nested route tree
// before it is compiled.
package route

import "context"

// RouterHandle is the subset of Router capabilities a guard factory may use
// when constructing its ActivationFunc. This mirrors plugin.RouterHandle's
// shape so guard and plugin factories share the same construction-time
// "(router, getDependency)" contract (spec §4.5); navigator.Router
// satisfies it structurally.
type RouterHandle interface {
	RouteNames() []string
	HasRoute(name string) bool
}

// ActivationFactory builds a guard bound to the router and its dependency
// lookup. It is invoked exactly once, at registration time (see the
// lifecycle registry).
type ActivationFactory func(router RouterHandle, getDependency func(name string) (any, bool)) ActivationFunc

// ActivationFunc is the compiled guard shape every canActivate/canDeactivate
// factory produces. Returning (false, "", nil, nil) denies the transition;
// returning a non-empty redirectName (with redirectParams) requests a
// redirect; a non-nil error also denies. The error value itself is not
// passed on: the resulting RouterError carries only the
// CannotActivate/CannotDeactivate code.
type ActivationFunc func(ctx context.Context, toName string, toParams map[string]any, fromName string, fromParams map[string]any) (allow bool, redirectName string, redirectParams map[string]any, err error)

// ForwardFunc resolves a dynamic forward at request time. The store calls
// it synchronously on the resolving goroutine; it does not check at
// registration or at call time whether the function blocks.
type ForwardFunc func(params map[string]any, ctx context.Context) (string, error)

// ParamsCodec transforms the merged parameter bag. A decoder that returns
// nil is treated as "no-op" by the router: the pre-decode params are kept
// instead.
type ParamsCodec func(params map[string]any) map[string]any

// Definition is the immutable input describing one route, possibly with
// nested children. Names of children are NOT dotted by the caller — the
// route-configuration store joins `parent.child` when it flattens the
// definitions before compiling the tree.
type Definition struct {
	Name     string
	Path     string
	Children []Definition

	ForwardTo   string
	ForwardToFn ForwardFunc

	DefaultParams map[string]any
	EncodeParams  ParamsCodec
	DecodeParams  ParamsCodec

	CanActivate   ActivationFactory
	CanDeactivate ActivationFactory

	// Custom carries unrestricted, router-opaque fields a host application
	// attaches to a route (icons, titles, auth scopes, …).
	Custom map[string]any
}

// Builder assembles a Definition fluently, mirroring the teacher's Route
// fluent-registration style (route.go's Where/WhereUUID chain) generalized
// from HTTP constraints to navigation route metadata.
type Builder struct {
	def Definition
}

// New starts a Builder for a route with the given name and path.
func New(name, path string) *Builder {
	return &Builder{def: Definition{Name: name, Path: path}}
}

// Children attaches nested route definitions.
func (b *Builder) Children(children ...Definition) *Builder {
	b.def.Children = append(b.def.Children, children...)
	return b
}

// ForwardTo makes this route forward statically to target.
func (b *Builder) ForwardTo(target string) *Builder {
	b.def.ForwardTo = target
	return b
}

// ForwardToFunc makes this route forward dynamically via fn.
func (b *Builder) ForwardToFunc(fn ForwardFunc) *Builder {
	b.def.ForwardToFn = fn
	return b
}

// DefaultParams sets the params merged in beneath caller-supplied params.
func (b *Builder) DefaultParams(params map[string]any) *Builder {
	b.def.DefaultParams = params
	return b
}

// Codecs sets the encode/decode pair applied on build/match respectively.
func (b *Builder) Codecs(encode, decode ParamsCodec) *Builder {
	b.def.EncodeParams = encode
	b.def.DecodeParams = decode
	return b
}

// Activation sets the canActivate/canDeactivate guard factories.
func (b *Builder) Activation(canActivate, canDeactivate ActivationFactory) *Builder {
	b.def.CanActivate = canActivate
	b.def.CanDeactivate = canDeactivate
	return b
}

// Meta attaches a custom field, unrestricted by the core.
func (b *Builder) Meta(key string, value any) *Builder {
	if b.def.Custom == nil {
		b.def.Custom = map[string]any{}
	}
	b.def.Custom[key] = value
	return b
}

// Build returns the finished, immutable Definition.
func (b *Builder) Build() Definition { return b.def }
