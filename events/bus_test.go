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

package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/navigator/internal/diag"
)

func TestOn_DuplicateListenerRejected(t *testing.T) {
	b := New(10, 5, nil, nil)
	fn := func(any) {}

	_, err := b.On(RouterStart, fn)
	require.NoError(t, err)

	_, err = b.On(RouterStart, fn)
	require.ErrorIs(t, err, ErrDuplicateListener)
}

func TestOn_ListenerLimit(t *testing.T) {
	b := New(2, 5, nil, nil)
	_, err := b.On(RouterStart, func(any) {})
	require.NoError(t, err)
	_, err = b.On(RouterStart, func(any) {})
	require.NoError(t, err)
	_, err = b.On(RouterStart, func(any) {})
	require.ErrorIs(t, err, ErrListenerLimitExceeded)
}

func TestEmit_OrderedSynchronousDispatch(t *testing.T) {
	b := New(10, 5, nil, nil)
	var order []int

	_, _ = b.On(RouterStart, func(any) { order = append(order, 1) })
	_, _ = b.On(RouterStart, func(any) { order = append(order, 2) })
	_, _ = b.On(RouterStart, func(any) { order = append(order, 3) })

	require.NoError(t, b.Emit(RouterStart, nil))
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEmit_SnapshotOnDispatch(t *testing.T) {
	b := New(10, 5, nil, nil)
	var fired []string

	_, _ = b.On(RouterStart, func(any) {
		fired = append(fired, "first")
		_, _ = b.On(RouterStart, func(any) { fired = append(fired, "added-during-dispatch") })
	})

	require.NoError(t, b.Emit(RouterStart, nil))
	assert.Equal(t, []string{"first"}, fired)

	fired = nil
	require.NoError(t, b.Emit(RouterStart, nil))
	assert.ElementsMatch(t, []string{"first", "added-during-dispatch"}, fired)
}

func TestEmit_PanicIsolatedToOneListener(t *testing.T) {
	b := New(10, 5, nil, nil)
	var secondCalled bool
	var sinkErr error
	b.errorSink = func(channel Channel, err error) { sinkErr = err }

	_, _ = b.On(RouterStart, func(any) { panic("boom") })
	_, _ = b.On(RouterStart, func(any) { secondCalled = true })

	require.NoError(t, b.Emit(RouterStart, nil))
	assert.True(t, secondCalled)
	require.Error(t, sinkErr)
}

func TestUnsubscribe_IsIdempotent(t *testing.T) {
	b := New(10, 5, nil, nil)
	var calls int
	unsub, err := b.On(RouterStart, func(any) { calls++ })
	require.NoError(t, err)

	unsub()
	unsub()

	require.NoError(t, b.Emit(RouterStart, nil))
	assert.Equal(t, 0, calls)
}

func TestEmit_MaxEventDepth(t *testing.T) {
	b := New(10, 1, nil, nil)
	_, _ = b.On(RouterStart, func(any) {
		err := b.Emit(RouterStart, nil)
		assert.ErrorIs(t, err, ErrEventDepthExceeded)
	})
	require.NoError(t, b.Emit(RouterStart, nil))
}

func TestOn_ListenerLimitDiagnosticThresholds(t *testing.T) {
	var tiers []diag.Tier
	b := New(10, 5, nil, func(tier diag.Tier, message string) { tiers = append(tiers, tier) })

	// Six distinct func literals: closures of one literal share a code
	// pointer and would be rejected as duplicates.
	for _, fn := range []Listener{
		func(any) {}, func(any) {}, func(any) {},
		func(any) {}, func(any) {}, func(any) {},
	} {
		_, err := b.On(RouterStart, fn)
		require.NoError(t, err)
	}

	require.NotEmpty(t, tiers)
	assert.Contains(t, tiers, diag.Warn)
	assert.Contains(t, tiers, diag.Error)
}

func TestEmit_EventDepthDiagnosticThresholds(t *testing.T) {
	var tiers []diag.Tier
	b := New(10, 5, nil, func(tier diag.Tier, message string) { tiers = append(tiers, tier) })

	var inner func(any)
	level := 0
	inner = func(any) {
		level++
		if level < 4 {
			_ = b.Emit(RouterStart, nil)
		}
	}
	_, _ = b.On(RouterStart, inner)
	require.NoError(t, b.Emit(RouterStart, nil))

	assert.Contains(t, tiers, diag.Warn)
	assert.Contains(t, tiers, diag.Error)
}

func TestEmit_ConcurrentDispatch(t *testing.T) {
	b := New(1000, 20, nil, nil)
	var mu sync.Mutex
	var count int
	_, _ = b.On(RouterStart, func(any) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Emit(RouterStart, nil)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, count)
}
