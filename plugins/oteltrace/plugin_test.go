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

package oteltrace

import (
	"context"
	"errors"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/codes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/navigator"
	"rivaas.dev/navigator/events"
	"rivaas.dev/navigator/route"
)

// capturingProcessor records every span as it ends, so tests can assert on
// the finished span without standing up a real exporter.
type capturingProcessor struct {
	mu    sync.Mutex
	ended []sdktrace.ReadOnlySpan
}

func (p *capturingProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}
func (p *capturingProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, s)
}
func (p *capturingProcessor) Shutdown(context.Context) error   { return nil }
func (p *capturingProcessor) ForceFlush(context.Context) error { return nil }

func (p *capturingProcessor) last() sdktrace.ReadOnlySpan {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ended) == 0 {
		return nil
	}
	return p.ended[len(p.ended)-1]
}

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

func newTestConfig(t *testing.T) (*Config, *capturingProcessor) {
	t.Helper()
	proc := &capturingProcessor{}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(proc))
	cfg, err := New(WithTracerProvider(tp), WithServiceName("navigator-test"))
	require.NoError(t, err)
	return cfg, proc
}

func TestFactory_SuccessClosesSpanOK(t *testing.T) {
	cfg, proc := newTestConfig(t)
	to, from := testRouterState(t)

	p, err := NewFactory(cfg)(nil, nil)
	require.NoError(t, err)

	p.OnTransitionStart(events.TransitionPayload{To: to, From: from})
	p.OnTransitionSuccess(events.TransitionSuccessPayload{To: to, From: from, Options: navigator.NavigationOptions{
		Metadata: map[string]any{"correlationId": "abc-123"},
	}})

	span := proc.last()
	require.NotNil(t, span)
	assert.Equal(t, "navigate detail", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)

	var sawCorrelation bool
	for _, attr := range span.Attributes() {
		if string(attr.Key) == "navigator.correlation_id" && attr.Value.AsString() == "abc-123" {
			sawCorrelation = true
		}
	}
	assert.True(t, sawCorrelation)
}

func TestFactory_ErrorClosesSpanWithRecordedError(t *testing.T) {
	cfg, proc := newTestConfig(t)
	to, from := testRouterState(t)

	p, err := NewFactory(cfg)(nil, nil)
	require.NoError(t, err)

	p.OnTransitionStart(events.TransitionPayload{To: to, From: from})
	p.OnTransitionError(events.TransitionErrorPayload{To: to, From: from, Error: errors.New("boom")})

	span := proc.last()
	require.NotNil(t, span)
	assert.Equal(t, codes.Error, span.Status().Code)
	require.Len(t, span.Events(), 1)
	assert.Equal(t, "exception", span.Events()[0].Name)
}

func TestFactory_CancelClosesSpanWithEvent(t *testing.T) {
	cfg, proc := newTestConfig(t)
	to, from := testRouterState(t)

	p, err := NewFactory(cfg)(nil, nil)
	require.NoError(t, err)

	p.OnTransitionStart(events.TransitionPayload{To: to, From: from})
	p.OnTransitionCancel(events.TransitionPayload{To: to, From: from})

	span := proc.last()
	require.NotNil(t, span)
	assert.Equal(t, codes.Error, span.Status().Code)
	require.Len(t, span.Events(), 1)
	assert.Equal(t, "navigator.transition.cancelled", span.Events()[0].Name)
}

func TestFactory_SuccessWithoutStart_NoPanic(t *testing.T) {
	cfg, _ := newTestConfig(t)
	p, err := NewFactory(cfg)(nil, nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		p.OnTransitionSuccess(events.TransitionSuccessPayload{})
		p.OnTransitionError(events.TransitionErrorPayload{})
		p.OnTransitionCancel(events.TransitionPayload{})
	})
}

func TestNew_DefaultIsNoopProvider(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, NoopProvider, cfg.provider)
	assert.NoError(t, cfg.Shutdown(context.Background()))
}

func TestNew_CustomTracerProviderSkipsShutdown(t *testing.T) {
	proc := &capturingProcessor{}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(proc))
	cfg, err := New(WithTracerProvider(tp))
	require.NoError(t, err)
	require.NoError(t, cfg.Shutdown(context.Background()))
	// a caller-owned provider must still work after the plugin "shuts down"
	_, span := cfg.tracer.Start(context.Background(), "still-alive")
	span.End()
	assert.NotNil(t, proc.last())
}

func TestMustNew_PanicsOnBadProvider(t *testing.T) {
	assert.Panics(t, func() {
		MustNew(WithProvider("not-a-real-provider"))
	})
}
