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
	"io"
	"log/slog"
)

// TrailingSlashMode controls how the matcher and the reverse path builder
// treat a trailing "/".
type TrailingSlashMode string

const (
	TrailingSlashPreserve TrailingSlashMode = "preserve"
	TrailingSlashNever    TrailingSlashMode = "never"
	TrailingSlashAlways   TrailingSlashMode = "always"
	TrailingSlashStrict   TrailingSlashMode = "strict"
)

// QueryParamsMode controls how undeclared query parameters are handled
// during a match.
type QueryParamsMode string

const (
	QueryParamsDefault QueryParamsMode = "default"
	QueryParamsStrict  QueryParamsMode = "strict"
	QueryParamsLoose   QueryParamsMode = "loose"
)

// URLParamsEncoding selects the percent-encoding strategy applied to URL
// parameters during Build.
type URLParamsEncoding string

const (
	EncodingDefault      URLParamsEncoding = "default"
	EncodingURI          URLParamsEncoding = "uri"
	EncodingURIComponent URLParamsEncoding = "uriComponent"
	EncodingNone         URLParamsEncoding = "none"
)

// Limits bounds every registry the router owns. Each has a warn threshold at
// ~20% and an error threshold at ~50% of the hard limit; crossing the hard
// limit itself raises a structural error.
type Limits struct {
	MaxDependencies     int
	MaxPlugins          int
	MaxMiddleware       int
	MaxListeners        int
	MaxEventDepth       int
	MaxLifecycleHandlers int
	MaxForwardDepth     int
	MaxRedirects        int
}

// DefaultLimits mirrors the hard limits from the routing contract.
func DefaultLimits() Limits {
	return Limits{
		MaxDependencies:      100,
		MaxPlugins:           50,
		MaxMiddleware:        50,
		MaxListeners:         10000,
		MaxEventDepth:        5,
		MaxLifecycleHandlers: 200,
		MaxForwardDepth:      32,
		MaxRedirects:         10,
	}
}

func (l Limits) warnThreshold(max int) int { return max / 5 }
func (l Limits) errThreshold(max int) int  { return max / 2 }

// Options holds immutable router configuration (C4), assembled once at
// construction time via the functional-options chain and never mutated
// afterwards — there is no public API to change an Option post-construction.
// Construction never fails; per doc.go's Constructor Pattern note,
// configuration errors surface at the point of use (Start).
type Options struct {
	DefaultRoute        string
	DefaultRouteFn       func() (string, map[string]any)
	AllowNotFound       bool
	TrailingSlash       TrailingSlashMode
	QueryParamsMode     QueryParamsMode
	URLParamsEncoding   URLParamsEncoding
	RewritePathOnMatch  bool
	DefaultParams       map[string]map[string]any
	StrictQueryParams   bool
	Limits              Limits

	logger      *slog.Logger
	diagnostics DiagnosticHandler
}

var noopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// NoopLogger returns the singleton no-op logger used when the caller does
// not supply one via WithLogger.
func NoopLogger() *slog.Logger { return noopLogger }

// Option configures a Router at construction time.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		AllowNotFound:     false,
		TrailingSlash:     TrailingSlashPreserve,
		QueryParamsMode:   QueryParamsDefault,
		URLParamsEncoding: EncodingDefault,
		DefaultParams:     map[string]map[string]any{},
		Limits:            DefaultLimits(),
		logger:            noopLogger,
	}
}

// WithDefaultRoute sets the route name used by Start when no path/state is
// supplied (an empty-string start target is treated the same as none).
func WithDefaultRoute(name string) Option {
	return func(o *Options) { o.DefaultRoute = name }
}

// WithDefaultRouteFunc sets a callback variant of WithDefaultRoute, invoked
// lazily by Start so the default route can depend on runtime state (e.g. a
// previously persisted path) supplied by a host-specific collaborator.
func WithDefaultRouteFunc(fn func() (string, map[string]any)) Option {
	return func(o *Options) { o.DefaultRouteFn = fn }
}

// WithAllowNotFound makes an unmatched path resolve to the
// "@@router/UNKNOWN_ROUTE" system state instead of failing navigation.
func WithAllowNotFound(allow bool) Option {
	return func(o *Options) { o.AllowNotFound = allow }
}

// WithTrailingSlashMode sets the trailing-slash policy (§4.1).
func WithTrailingSlashMode(mode TrailingSlashMode) Option {
	return func(o *Options) { o.TrailingSlash = mode }
}

// WithQueryParamsMode sets the undeclared-query-parameter policy (§4.1).
func WithQueryParamsMode(mode QueryParamsMode) Option {
	return func(o *Options) { o.QueryParamsMode = mode }
}

// WithURLParamsEncoding selects the percent-encoding strategy for Build.
func WithURLParamsEncoding(mode URLParamsEncoding) Option {
	return func(o *Options) { o.URLParamsEncoding = mode }
}

// WithRewritePathOnMatch makes Match rebuild the canonical path via Build
// instead of returning the caller-supplied path verbatim.
func WithRewritePathOnMatch(rewrite bool) Option {
	return func(o *Options) { o.RewritePathOnMatch = rewrite }
}

// WithDefaultParams registers default parameters merged in for a route name
// at state-construction time, beneath the route's own defaultParams.
func WithDefaultParams(name string, params map[string]any) Option {
	return func(o *Options) {
		cp := make(map[string]any, len(params))
		for k, v := range params {
			cp[k] = v
		}
		o.DefaultParams[name] = cp
	}
}

// WithLimits overrides the default registry limits.
func WithLimits(limits Limits) Option {
	return func(o *Options) { o.Limits = limits }
}

// WithLogger injects a structured logger. The zero value keeps the router
// silent (NoopLogger), matching the teacher's zero-config default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDiagnostics registers a callback for non-fatal diagnostic events (dead
// canActivate/forwardTo combinations, limit warn-thresholds, …). The router
// behaves identically whether diagnostics are observed or not.
func WithDiagnostics(handler DiagnosticHandler) Option {
	return func(o *Options) { o.diagnostics = handler }
}

func (o *Options) diagnose(kind DiagnosticKind, message string, fields map[string]any) {
	if o.diagnostics != nil {
		o.diagnostics(DiagnosticEvent{Kind: kind, Message: message, Fields: fields})
	}
}
