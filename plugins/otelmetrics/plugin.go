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

// Package otelmetrics is an optional navigator plugin that records
// transition counts, durations and cancellations as OpenTelemetry
// instruments, driven by the event bus (C8) through the plugin contract
// (C10) exactly like its sibling plugins/oteltrace.
//
// This repo has no HTTP server of its own (see SPEC_FULL.md's Non-goals),
// so unlike the teacher's WithMetrics the Prometheus provider here never
// starts a listener: GetPrometheusHandler returns an http.Handler for the
// host application to mount on whatever mux it already runs.
package otelmetrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"rivaas.dev/navigator"
	"rivaas.dev/navigator/events"
	"rivaas.dev/navigator/plugin"
)

// MetricsProvider selects which OpenTelemetry metrics exporter backs a
// Config, mirroring the teacher's MetricsProvider enum.
type MetricsProvider string

const (
	// PrometheusProvider exposes instruments on a pull-based handler
	// (default).
	PrometheusProvider MetricsProvider = "prometheus"
	// OTLPProvider pushes instruments to an OTLP HTTP collector.
	OTLPProvider MetricsProvider = "otlp"
	// StdoutProvider prints instruments to stdout (development/testing).
	StdoutProvider MetricsProvider = "stdout"
)

const (
	// DefaultServiceName is used when WithServiceName is not supplied.
	DefaultServiceName = "navigator"
	// DefaultServiceVersion is used when WithServiceVersion is not supplied.
	DefaultServiceVersion = "0.0.0"
	// DefaultExportInterval is used by the OTLP and stdout periodic readers.
	DefaultExportInterval = 30 * time.Second
)

var noopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Config holds this plugin's OpenTelemetry metrics wiring. Construct with
// New or MustNew.
type Config struct {
	serviceName    string
	serviceVersion string
	provider       MetricsProvider
	otlpEndpoint   string
	exportInterval time.Duration
	registerGlobal bool
	logger         *slog.Logger

	meter              metric.Meter
	meterProvider      *sdkmetric.MeterProvider
	customMeterProvider bool
	prometheusRegistry *promclient.Registry
	prometheusHandler  http.Handler

	transitionCount    metric.Int64Counter
	transitionDuration metric.Float64Histogram
	cancelCount        metric.Int64Counter
	errorCount         metric.Int64Counter

	mu        sync.Mutex
	startedAt time.Time
	inFlight  bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures a Config during New.
type Option func(*Config)

// WithServiceName sets the 'service.name' attribute on every recorded
// instrument.
func WithServiceName(name string) Option {
	return func(c *Config) { c.serviceName = name }
}

// WithServiceVersion sets the 'service.version' attribute on every
// recorded instrument.
func WithServiceVersion(version string) Option {
	return func(c *Config) { c.serviceVersion = version }
}

// WithProvider selects the metrics exporter. Defaults to PrometheusProvider.
func WithProvider(provider MetricsProvider) Option {
	return func(c *Config) { c.provider = provider }
}

// WithOTLPEndpoint sets the OTLP HTTP collector endpoint. Only used with
// OTLPProvider.
func WithOTLPEndpoint(endpoint string) Option {
	return func(c *Config) { c.otlpEndpoint = endpoint }
}

// WithExportInterval sets the periodic reader interval used by OTLPProvider
// and StdoutProvider. Has no effect on PrometheusProvider, which is
// pull-based.
func WithExportInterval(interval time.Duration) Option {
	return func(c *Config) { c.exportInterval = interval }
}

// WithMeterProvider supplies a caller-managed MeterProvider; New will not
// shut it down (the caller owns its lifecycle).
func WithMeterProvider(mp *sdkmetric.MeterProvider) Option {
	return func(c *Config) {
		c.meterProvider = mp
		c.customMeterProvider = true
	}
}

// WithGlobalMeterProvider registers the constructed MeterProvider as the
// process-global OpenTelemetry default via otel.SetMeterProvider.
func WithGlobalMeterProvider() Option {
	return func(c *Config) { c.registerGlobal = true }
}

// WithLogger routes the plugin's own operational logging through logger.
// Defaults to a discarding logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a Config, initializes its metrics provider and creates the
// transition instruments.
func New(opts ...Option) (*Config, error) {
	c := &Config{
		serviceName:    DefaultServiceName,
		serviceVersion: DefaultServiceVersion,
		provider:       PrometheusProvider,
		exportInterval: DefaultExportInterval,
		logger:         noopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.meterProvider == nil {
		if err := c.initProvider(); err != nil {
			return nil, fmt.Errorf("otelmetrics: %w", err)
		}
	}
	if c.registerGlobal {
		otel.SetMeterProvider(c.meterProvider)
	}
	c.meter = c.meterProvider.Meter("rivaas.dev/navigator/plugins/otelmetrics")

	if err := c.initInstruments(); err != nil {
		return nil, fmt.Errorf("otelmetrics: %w", err)
	}
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
	case PrometheusProvider, "":
		return c.initPrometheusProvider()
	case OTLPProvider:
		return c.initOTLPProvider()
	case StdoutProvider:
		return c.initStdoutProvider()
	default:
		return fmt.Errorf("unsupported metrics provider: %s", c.provider)
	}
}

func (c *Config) initPrometheusProvider() error {
	c.prometheusRegistry = promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(c.prometheusRegistry))
	if err != nil {
		return fmt.Errorf("prometheus exporter: %w", err)
	}
	c.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	c.prometheusHandler = promhttp.HandlerFor(c.prometheusRegistry, promhttp.HandlerOpts{})
	return nil
}

func (c *Config) initOTLPProvider() error {
	var opts []otlpmetrichttp.Option
	if c.otlpEndpoint != "" {
		opts = append(opts, otlpmetrichttp.WithEndpoint(c.otlpEndpoint))
	}
	exporter, err := otlpmetrichttp.New(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("otlp exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(c.exportInterval))
	c.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return nil
}

func (c *Config) initStdoutProvider() error {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return fmt.Errorf("stdout exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(c.exportInterval))
	c.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return nil
}

func (c *Config) initInstruments() error {
	var err error
	c.transitionCount, err = c.meter.Int64Counter(
		"navigator_transitions_total",
		metric.WithDescription("Total number of completed, failed or cancelled transitions"),
	)
	if err != nil {
		return fmt.Errorf("transition count counter: %w", err)
	}
	c.transitionDuration, err = c.meter.Float64Histogram(
		"navigator_transition_duration_seconds",
		metric.WithDescription("Duration of a transition from TRANSITION_START to its outcome"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("transition duration histogram: %w", err)
	}
	c.cancelCount, err = c.meter.Int64Counter(
		"navigator_transitions_cancelled_total",
		metric.WithDescription("Total number of transitions superseded before completing"),
	)
	if err != nil {
		return fmt.Errorf("cancel count counter: %w", err)
	}
	c.errorCount, err = c.meter.Int64Counter(
		"navigator_transition_errors_total",
		metric.WithDescription("Total number of transitions that aborted with an error"),
	)
	if err != nil {
		return fmt.Errorf("error count counter: %w", err)
	}
	return nil
}

// GetPrometheusHandler returns the Prometheus scrape handler. It only
// returns a non-nil handler when Config was built with PrometheusProvider.
func (c *Config) GetPrometheusHandler() (http.Handler, error) {
	if c.provider != PrometheusProvider || c.prometheusHandler == nil {
		return nil, fmt.Errorf("otelmetrics: prometheus handler unavailable for provider %q", c.provider)
	}
	return c.prometheusHandler, nil
}

// Shutdown flushes and stops the meter provider, unless it was supplied by
// the caller via WithMeterProvider. Safe to call more than once.
func (c *Config) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		if c.customMeterProvider || c.meterProvider == nil {
			return
		}
		if err := c.meterProvider.Shutdown(ctx); err != nil {
			c.logger.Error("otelmetrics: meter provider shutdown failed", "error", err)
			c.shutdownErr = err
		}
	})
	return c.shutdownErr
}

// NewFactory returns a plugin.Factory that subscribes cfg to the router's
// event bus. Use it with (*navigator.Router).UsePlugin:
//
//	cfg, _ := otelmetrics.New(otelmetrics.WithProvider(otelmetrics.StdoutProvider))
//	_, _ = router.UsePlugin(otelmetrics.NewFactory(cfg))
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

func (c *Config) baseAttributes(toName, fromName string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.serviceName),
		attribute.String("service.version", c.serviceVersion),
		attribute.String("navigator.route.to", toName),
		attribute.String("navigator.route.from", fromName),
	}
}

func (c *Config) handleStart(events.TransitionPayload) {
	c.mu.Lock()
	c.startedAt = time.Now()
	c.inFlight = true
	c.mu.Unlock()
}

// takeElapsed returns the duration since the last TRANSITION_START and
// whether one was actually in flight, clearing the in-flight marker.
// Mirrors the single in-flight-slot assumption used throughout the router
// and the oteltrace sibling plugin.
func (c *Config) takeElapsed() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inFlight {
		return 0, false
	}
	elapsed := time.Since(c.startedAt)
	c.inFlight = false
	return elapsed, true
}

func (c *Config) handleSuccess(payload events.TransitionSuccessPayload) {
	toName := stateName(payload.To)
	fromName := stateName(payload.From)
	attrs := c.baseAttributes(toName, fromName)
	attrs = append(attrs, attribute.String("navigator.outcome", "success"))
	ctx := context.Background()
	c.transitionCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	if elapsed, ok := c.takeElapsed(); ok {
		c.transitionDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
	}
}

func (c *Config) handleError(payload events.TransitionErrorPayload) {
	toName := stateName(payload.To)
	fromName := stateName(payload.From)
	attrs := c.baseAttributes(toName, fromName)
	attrs = append(attrs, attribute.String("navigator.outcome", "error"))
	ctx := context.Background()
	c.transitionCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	c.errorCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	if elapsed, ok := c.takeElapsed(); ok {
		c.transitionDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
	}
}

func (c *Config) handleCancel(payload events.TransitionPayload) {
	toName := stateName(payload.To)
	fromName := stateName(payload.From)
	attrs := c.baseAttributes(toName, fromName)
	attrs = append(attrs, attribute.String("navigator.outcome", "cancelled"))
	ctx := context.Background()
	c.transitionCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	c.cancelCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	_, _ = c.takeElapsed()
}
