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

package validate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteName(t *testing.T) {
	require.NoError(t, RouteName("users"))
	require.ErrorIs(t, RouteName(""), ErrEmptyName)
	require.ErrorIs(t, RouteName("users.detail"), ErrDottedName)
}

func TestRoutePath(t *testing.T) {
	require.NoError(t, RoutePath("/users/:id"))
	require.ErrorIs(t, RoutePath(""), ErrEmptyPath)
	require.ErrorIs(t, RoutePath("users"), ErrPathNoSlash)
}

func TestInputPath(t *testing.T) {
	require.NoError(t, InputPath("/users/42"))
	require.ErrorIs(t, InputPath("users/42"), ErrPathNoSlash)
	require.ErrorIs(t, InputPath("/users//42"), ErrPathDoubleSlash)
}

func TestSerializable(t *testing.T) {
	assert.NoError(t, Serializable(nil))
	assert.NoError(t, Serializable("x"))
	assert.NoError(t, Serializable(42))
	assert.NoError(t, Serializable([]any{"a", 1, true}))
	assert.NoError(t, Serializable(map[string]any{"a": []any{1, 2}}))

	assert.ErrorIs(t, Serializable(math.NaN()), ErrNotFinite)
	assert.ErrorIs(t, Serializable(math.Inf(1)), ErrNotFinite)
	assert.ErrorIs(t, Serializable(func() {}), ErrUnsupportedType)
	assert.ErrorIs(t, Serializable(make(chan int)), ErrUnsupportedType)
}

func TestSerializableCyclic(t *testing.T) {
	m := map[string]any{}
	m["self"] = m
	assert.ErrorIs(t, Serializable(m), ErrCyclicValue)
}

func TestSerializableSharedNonCyclicReference(t *testing.T) {
	shared := []any{1, 2}
	assert.NoError(t, Serializable(map[string]any{"a": shared, "b": shared}))
	assert.NoError(t, Serializable([]any{shared, shared}))
}
