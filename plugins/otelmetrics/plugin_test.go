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

package otelmetrics

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/navigator"
	"rivaas.dev/navigator/events"
	"rivaas.dev/navigator/route"
)

func testRouterState(t *testing.T) (*navigator.State, *navigator.State) {
	t.Helper()
	r := navigator.New(navigator.WithDefaultRoute("home"))
	_, err := r.AddRoute([]route.Definition{
		route.New("home", "/").Build(),
		route.New("detail", "/detail").Build(),
	}, "")
	require.NoError(t, err)
	from, err := r.Start(context.Background(), nil)
	require.NoError(t, err)
	to, err := r.Navigate(context.Background(), "detail", nil, navigator.NavigationOptions{})
	require.NoError(t, err)
	return to, from
}

func newTestConfig(t *testing.T) (*Config, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	cfg, err := New(WithMeterProvider(mp), WithServiceName("navigator-test"))
	require.NoError(t, err)
	return cfg, reader
}

func sumOf(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				return total
			}
		}
	}
	return 0
}

func histogramCount(t *testing.T, rm *metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if data, ok := m.Data.(metricdata.Histogram[float64]); ok {
				var total uint64
				for _, dp := range data.DataPoints {
					total += dp.Count
				}
				return total
			}
		}
	}
	return 0
}

func TestFactory_SuccessRecordsCountAndDuration(t *testing.T) {
	cfg, reader := newTestConfig(t)
	to, from := testRouterState(t)

	p, err := NewFactory(cfg)(nil, nil)
	require.NoError(t, err)

	p.OnTransitionStart(events.TransitionPayload{To: to, From: from})
	p.OnTransitionSuccess(events.TransitionSuccessPayload{To: to, From: from})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(1), sumOf(t, &rm, "navigator_transitions_total"))
	assert.Equal(t, uint64(1), histogramCount(t, &rm, "navigator_transition_duration_seconds"))
	assert.Equal(t, int64(0), sumOf(t, &rm, "navigator_transition_errors_total"))
}

func TestFactory_ErrorRecordsErrorAndCount(t *testing.T) {
	cfg, reader := newTestConfig(t)
	to, from := testRouterState(t)

	p, err := NewFactory(cfg)(nil, nil)
	require.NoError(t, err)

	p.OnTransitionStart(events.TransitionPayload{To: to, From: from})
	p.OnTransitionError(events.TransitionErrorPayload{To: to, From: from, Error: errors.New("boom")})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(1), sumOf(t, &rm, "navigator_transitions_total"))
	assert.Equal(t, int64(1), sumOf(t, &rm, "navigator_transition_errors_total"))
}

func TestFactory_CancelRecordsCancelCount(t *testing.T) {
	cfg, reader := newTestConfig(t)
	to, from := testRouterState(t)

	p, err := NewFactory(cfg)(nil, nil)
	require.NoError(t, err)

	p.OnTransitionStart(events.TransitionPayload{To: to, From: from})
	p.OnTransitionCancel(events.TransitionPayload{To: to, From: from})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(1), sumOf(t, &rm, "navigator_transitions_cancelled_total"))
	// a cancelled transition never reached TRANSITION_START's matching
	// outcome, so no duration sample is recorded for it.
	assert.Equal(t, uint64(0), histogramCount(t, &rm, "navigator_transition_duration_seconds"))
}

func TestNew_DefaultIsPrometheusProvider(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, PrometheusProvider, cfg.provider)
	handler, err := cfg.GetPrometheusHandler()
	require.NoError(t, err)
	assert.NotNil(t, handler)
	assert.NoError(t, cfg.Shutdown(context.Background()))
}

func TestGetPrometheusHandler_WrongProviderErrors(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	cfg, err := New(WithMeterProvider(mp), WithProvider(StdoutProvider))
	require.NoError(t, err)
	_, err = cfg.GetPrometheusHandler()
	assert.Error(t, err)
}

func TestNew_CustomMeterProviderSkipsShutdown(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	cfg, err := New(WithMeterProvider(mp))
	require.NoError(t, err)
	require.NoError(t, cfg.Shutdown(context.Background()))

	// a caller-owned provider must still work after the plugin "shuts down"
	cfg.transitionCount.Add(context.Background(), 1)
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(1), sumOf(t, &rm, "navigator_transitions_total"))
}

func TestMustNew_PanicsOnBadProvider(t *testing.T) {
	assert.Panics(t, func() {
		MustNew(WithProvider("not-a-real-provider"))
	})
}
