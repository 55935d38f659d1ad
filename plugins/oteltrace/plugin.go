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

// Package oteltrace is an optional navigator plugin that opens one
// OpenTelemetry span per logical navigation, driven entirely by the event
// bus (C8) through the plugin contract (C10) — it never touches the router
// or transition pipeline directly.
//
// A navigation's four possible events map onto one span's lifetime:
// TRANSITION_START opens it, and exactly one of TRANSITION_SUCCESS,
// TRANSITION_ERROR or TRANSITION_CANCEL closes it. Because the router
// tracks at most one in-flight transition at a time (see the root package's
// inFlightTransition), the plugin mirrors that with a single current-span
// slot instead of a span-per-concurrent-transition map.
package oteltrace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/trace"

	"rivaas.dev/navigator"
	"rivaas.dev/navigator/events"
	"rivaas.dev/navigator/plugin"
)

// noopLogger discards every record, mirroring the root package's
// zero-config default (see options.go).
var noopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Provider selects which span exporter backs a Config.
type Provider string

const (
	// NoopProvider opens spans against a non-recording tracer (default).
	NoopProvider Provider = "noop"
	// StdoutProvider exports finished spans to stdout (development/testing).
	StdoutProvider Provider = "stdout"
)

const (
	// DefaultServiceName is used when WithServiceName is not supplied.
	DefaultServiceName = "navigator"
	// DefaultServiceVersion is used when WithServiceVersion is not supplied.
	DefaultServiceVersion = "0.0.0"
)

// activeSpan is the one in-flight span this plugin is tracking.
type activeSpan struct {
	span    trace.Span
	toName  string
	fromName string
}

// Config holds this plugin's OpenTelemetry wiring. Construct with New or
// MustNew; configure via Option values passed to either.
type Config struct {
	serviceName    string
	serviceVersion string
	provider       Provider

	tracer               trace.Tracer
	tracerProvider       *sdktrace.TracerProvider
	customTracerProvider bool
	registerGlobal       bool

	logger *slog.Logger

	mu      sync.Mutex
	current *activeSpan

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures a Config during New.
type Option func(*Config)

// WithServiceName sets the 'service.name' attribute on every span.
func WithServiceName(name string) Option {
	return func(c *Config) { c.serviceName = name }
}

// WithServiceVersion sets the 'service.version' attribute on every span.
func WithServiceVersion(version string) Option {
	return func(c *Config) { c.serviceVersion = version }
}

// WithProvider selects the span exporter. Defaults to NoopProvider.
func WithProvider(provider Provider) Option {
	return func(c *Config) { c.provider = provider }
}

// WithTracerProvider supplies a caller-managed TracerProvider; New will not
// shut it down (the caller owns its lifecycle), matching the teacher
// tracing package's custom-provider convention.
func WithTracerProvider(tp *sdktrace.TracerProvider) Option {
	return func(c *Config) {
		c.tracerProvider = tp
		c.customTracerProvider = true
	}
}

// WithGlobalTracerProvider registers the constructed TracerProvider as the
// process-global OpenTelemetry default via otel.SetTracerProvider.
func WithGlobalTracerProvider() Option {
	return func(c *Config) { c.registerGlobal = true }
}

// WithLogger routes the plugin's own operational logging (export failures,
// shutdown errors) through logger. Defaults to a discarding logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a Config and initializes its tracer provider.
func New(opts ...Option) (*Config, error) {
	c := &Config{
		serviceName:    DefaultServiceName,
		serviceVersion: DefaultServiceVersion,
		provider:       NoopProvider,
		logger:         noopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.tracerProvider == nil {
		if err := c.initProvider(); err != nil {
			return nil, fmt.Errorf("oteltrace: %w", err)
		}
	}

	if c.registerGlobal {
		otel.SetTracerProvider(c.tracerProvider)
	}
	c.tracer = c.tracerProvider.Tracer("rivaas.dev/navigator/plugins/oteltrace")
	return c, nil
}

// MustNew is New but panics on error, for callers that treat plugin
// misconfiguration as fatal at startup.
func MustNew(opts ...Option) *Config {
	c, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Config) initProvider() error {
	switch c.provider {
	case NoopProvider, "":
		c.tracerProvider = sdktrace.NewTracerProvider()
		return nil
	case StdoutProvider:
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("stdout exporter: %w", err)
		}
		c.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
		)
		return nil
	default:
		return fmt.Errorf("unsupported tracing provider: %s", c.provider)
	}
}

// Shutdown flushes and stops the tracer provider, unless it was supplied by
// the caller via WithTracerProvider. Safe to call more than once.
func (c *Config) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		if c.customTracerProvider || c.tracerProvider == nil {
			return
		}
		if err := c.tracerProvider.Shutdown(ctx); err != nil {
			c.logger.Error("oteltrace: tracer provider shutdown failed", "error", err)
			c.shutdownErr = err
		}
	})
	return c.shutdownErr
}

// NewFactory returns a plugin.Factory that subscribes cfg to the router's
// event bus. Use it with (*navigator.Router).UsePlugin:
//
//	cfg, _ := oteltrace.New(oteltrace.WithProvider(oteltrace.StdoutProvider))
//	_, _ = router.UsePlugin(oteltrace.NewFactory(cfg))
func NewFactory(cfg *Config) plugin.Factory {
	return func(_ plugin.RouterHandle, _ plugin.GetDependency) (plugin.Plugin, error) {
		return plugin.Plugin{
			OnTransitionStart:   cfg.handleStart,
			OnTransitionSuccess: cfg.handleSuccess,
			OnTransitionError:   cfg.handleError,
			OnTransitionCancel:  cfg.handleCancel,
			Teardown: func() {
				_ = cfg.Shutdown(context.Background())
			},
		}, nil
	}
}

func stateName(s any) string {
	state, ok := s.(*navigator.State)
	if !ok || state == nil {
		return ""
	}
	return state.Name()
}

func statePath(s any) string {
	state, ok := s.(*navigator.State)
	if !ok || state == nil {
		return ""
	}
	return state.Path()
}

func (c *Config) handleStart(payload events.TransitionPayload) {
	toName := stateName(payload.To)
	fromName := stateName(payload.From)

	spanName := "navigate"
	if toName != "" {
		spanName = "navigate " + toName
	}

	_, span := c.tracer.Start(context.Background(), spanName, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("service.name", c.serviceName),
		attribute.String("service.version", c.serviceVersion),
		attribute.String("navigator.route.to", toName),
		attribute.String("navigator.route.from", fromName),
		attribute.String("navigator.route.to_path", statePath(payload.To)),
	)

	c.mu.Lock()
	if c.current != nil {
		// A transition started without its predecessor ever closing
		// (should not happen given the router's single in-flight slot,
		// but a span left dangling is worse than one marked abandoned).
		c.current.span.SetStatus(codes.Error, "superseded without a close event")
		c.current.span.End()
	}
	c.current = &activeSpan{span: span, toName: toName, fromName: fromName}
	c.mu.Unlock()
}

func (c *Config) takeCurrent() *activeSpan {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.current
	c.current = nil
	return cur
}

func (c *Config) handleSuccess(payload events.TransitionSuccessPayload) {
	cur := c.takeCurrent()
	if cur == nil {
		return
	}
	if navOpts, ok := payload.Options.(navigator.NavigationOptions); ok {
		if id, ok := navOpts.Metadata["correlationId"].(string); ok && id != "" {
			cur.span.SetAttributes(attribute.String("navigator.correlation_id", id))
		}
	}
	cur.span.SetStatus(codes.Ok, "")
	cur.span.End()
}

func (c *Config) handleError(payload events.TransitionErrorPayload) {
	cur := c.takeCurrent()
	if cur == nil {
		return
	}
	if payload.Error != nil {
		cur.span.RecordError(payload.Error)
		cur.span.SetStatus(codes.Error, payload.Error.Error())
	} else {
		cur.span.SetStatus(codes.Error, "transition failed")
	}
	cur.span.End()
}

func (c *Config) handleCancel(payload events.TransitionPayload) {
	cur := c.takeCurrent()
	if cur == nil {
		return
	}
	cur.span.AddEvent("navigator.transition.cancelled")
	cur.span.SetStatus(codes.Error, "cancelled")
	cur.span.End()
}
