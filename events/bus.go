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

// Package events implements the event bus (C8): named-channel
// synchronous pub/sub for the six well-known router events plus arbitrary
// user channels, with duplicate-listener protection, snapshot-on-dispatch
// semantics, and bounded listener counts / re-entrant emission depth.
package events

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"rivaas.dev/navigator/internal/diag"
)

// Channel identifies an event bus channel. The six well-known channels are
// predeclared constants; any other string is a valid user channel.
type Channel string

const (
	RouterStart      Channel = "ROUTER_START"
	RouterStop       Channel = "ROUTER_STOP"
	TransitionStart  Channel = "TRANSITION_START"
	TransitionSuccess Channel = "TRANSITION_SUCCESS"
	TransitionError  Channel = "TRANSITION_ERROR"
	TransitionCancel Channel = "TRANSITION_CANCEL"
)

// Listener receives the payload emitted on a channel. Well-known channels
// emit a fixed payload shape documented alongside their constant; user
// channels may emit anything.
type Listener func(payload any)

// Unsubscribe removes a previously registered listener. Calling it more
// than once is a no-op.
type Unsubscribe func()

var (
	ErrDuplicateListener     = errors.New("events: listener already registered for this channel")
	ErrListenerLimitExceeded = errors.New("events: channel exceeds maxListeners")
	ErrEventDepthExceeded    = errors.New("events: re-entrant emission exceeds maxEventDepth")
)

// ErrorSink receives a panic/error recovered from a listener so dispatch
// can continue without the caller losing visibility into the failure.
type ErrorSink func(channel Channel, err error)

// Bus is the event bus. Zero value is not usable; construct with New.
type Bus struct {
	mu            sync.Mutex
	listeners     map[Channel][]*registration
	maxListeners  int
	maxEventDepth int
	errorSink     ErrorSink
	diagnostic    diag.Func

	depth int // re-entrant Emit nesting, guarded by mu
}

type registration struct {
	fn Listener
}

// New constructs a Bus bounded by maxListeners per channel and
// maxEventDepth re-entrant Emit nesting. errorSink may be nil (errors are
// then silently discarded, matching a no-op logger default elsewhere in
// this module). diagnostic may be nil; when set it receives a warn
// diagnostic at 20% of either limit and an error diagnostic at 50%, short
// of the hard failure raised at 100%.
func New(maxListeners, maxEventDepth int, errorSink ErrorSink, diagnostic diag.Func) *Bus {
	return &Bus{
		listeners:     map[Channel][]*registration{},
		maxListeners:  maxListeners,
		maxEventDepth: maxEventDepth,
		errorSink:     errorSink,
		diagnostic:    diagnostic,
	}
}

func (b *Bus) diagnose(tier diag.Tier, message string) {
	if b.diagnostic != nil {
		b.diagnostic(tier, message)
	}
}

// funcIdentity returns a comparable key for a func value's underlying
// code pointer, used for duplicate-listener detection. Two Listener
// values wrapping the same underlying function compare equal. Closures
// created from the same func literal share one code pointer and so also
// compare equal, even when they capture different variables; closures from
// different func literals never do.
func funcIdentity(fn Listener) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// On registers fn on channel and returns an Unsubscribe. Registering the
// same function value twice on the same channel is a structural error.
func (b *Bus) On(channel Channel, fn Listener) (Unsubscribe, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing := b.listeners[channel]
	target := funcIdentity(fn)
	for _, r := range existing {
		if funcIdentity(r.fn) == target {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateListener, channel)
		}
	}
	if len(existing) >= b.maxListeners {
		return nil, fmt.Errorf("%w: %q (max %d)", ErrListenerLimitExceeded, channel, b.maxListeners)
	}

	total := len(existing) + 1
	if total >= b.maxListeners/2 {
		b.diagnose(diag.Error, fmt.Sprintf("events: channel %q at %d/%d listeners, past the error threshold", channel, total, b.maxListeners))
	} else if total >= b.maxListeners/5 {
		b.diagnose(diag.Warn, fmt.Sprintf("events: channel %q at %d/%d listeners, past the warn threshold", channel, total, b.maxListeners))
	}

	reg := &registration{fn: fn}
	b.listeners[channel] = append(existing, reg)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			regs := b.listeners[channel]
			for i, r := range regs {
				if r == reg {
					b.listeners[channel] = append(regs[:i:i], regs[i+1:]...)
					break
				}
			}
		})
	}, nil
}

// Emit dispatches payload to every listener registered on channel at the
// moment Emit is called (snapshot-on-dispatch: additions/removals during
// this dispatch do not affect it), synchronously, in registration order.
// A listener panic is recovered and routed to the error sink instead of
// propagating. Re-entrant Emit calls (a listener that itself calls Emit)
// are allowed while the number of nested Emit calls, counting the
// outermost one, stays within maxEventDepth.
func (b *Bus) Emit(channel Channel, payload any) error {
	b.mu.Lock()
	if b.depth >= b.maxEventDepth {
		b.mu.Unlock()
		return fmt.Errorf("%w: depth %d", ErrEventDepthExceeded, b.depth)
	}
	b.depth++
	depth := b.depth
	snapshot := make([]*registration, len(b.listeners[channel]))
	copy(snapshot, b.listeners[channel])
	b.mu.Unlock()

	// reentrant is the nesting depth past the initial, non-reentrant Emit
	// call: 0 means this Emit is not itself called from a listener.
	if reentrant := depth - 1; reentrant >= b.maxEventDepth/2 {
		b.diagnose(diag.Error, fmt.Sprintf("events: re-entrant emission at depth %d/%d, past the error threshold", depth, b.maxEventDepth))
	} else if reentrant >= b.maxEventDepth/5 {
		b.diagnose(diag.Warn, fmt.Sprintf("events: re-entrant emission at depth %d/%d, past the warn threshold", depth, b.maxEventDepth))
	}

	defer func() {
		b.mu.Lock()
		b.depth--
		b.mu.Unlock()
	}()

	for _, r := range snapshot {
		b.dispatchOne(channel, r, payload)
	}
	return nil
}

func (b *Bus) dispatchOne(channel Channel, r *registration, payload any) {
	defer func() {
		if rec := recover(); rec != nil {
			if b.errorSink != nil {
				b.errorSink(channel, fmt.Errorf("events: listener panic on %q: %v", channel, rec))
			}
		}
	}()
	r.fn(payload)
}

// ListenerCount returns the number of listeners currently registered on
// channel, for introspection/diagnostics.
func (b *Bus) ListenerCount(channel Channel) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[channel])
}

// RouterStartPayload is the payload emitted on RouterStart.
type RouterStartPayload struct{}

// RouterStopPayload is the payload emitted on RouterStop.
type RouterStopPayload struct{}

// TransitionPayload is the payload shape shared by TransitionStart and
// TransitionCancel.
type TransitionPayload struct {
	To   any
	From any
}

// TransitionSuccessPayload is the payload emitted on TransitionSuccess.
type TransitionSuccessPayload struct {
	To      any
	From    any
	Options any
}

// TransitionErrorPayload is the payload emitted on TransitionError.
type TransitionErrorPayload struct {
	To    any
	From  any
	Error error
}
