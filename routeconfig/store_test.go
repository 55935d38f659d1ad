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

package routeconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/navigator/route"
	"rivaas.dev/navigator/tree"
)

func neverActive(string) bool { return false }
func neverBusy() bool         { return false }

func TestAdd_BasicAndDuplicate(t *testing.T) {
	s := New(32)

	_, err := s.Add([]route.Definition{
		{Name: "home", Path: "/"},
		{Name: "users", Path: "/users", Children: []route.Definition{
			{Name: "detail", Path: "/:id"},
		}},
	}, "")
	require.NoError(t, err)

	assert.True(t, s.HasRoute("home"))
	assert.True(t, s.HasRoute("users"))
	assert.True(t, s.HasRoute("users.detail"))

	_, err = s.Add([]route.Definition{{Name: "home", Path: "/again"}}, "")
	require.ErrorIs(t, err, ErrDuplicateRouteName)

	// store must be unchanged after the failed add
	assert.True(t, s.HasRoute("home"))
	res, err := s.Matcher().Match("/", tree.MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "home", res.Name)
}

func TestAdd_ForwardValidation(t *testing.T) {
	s := New(32)

	_, err := s.Add([]route.Definition{
		{Name: "oldUsers", Path: "/old-users", ForwardTo: "users"},
		{Name: "users", Path: "/users"},
	}, "")
	require.NoError(t, err)

	target, err := s.ResolveForward(context.Background(), "oldUsers", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "users", target)
}

func TestAdd_ForwardUnknownTarget(t *testing.T) {
	s := New(32)
	_, err := s.Add([]route.Definition{
		{Name: "a", Path: "/a", ForwardTo: "nope"},
	}, "")
	require.ErrorIs(t, err, ErrUnknownRoute)
	assert.False(t, s.HasRoute("a"))
}

func TestAdd_ForwardParamMismatch(t *testing.T) {
	s := New(32)
	_, err := s.Add([]route.Definition{
		{Name: "a", Path: "/a", ForwardTo: "b"},
		{Name: "b", Path: "/b/:id"},
	}, "")
	require.ErrorIs(t, err, ErrForwardParamMismatch)
}

func TestAdd_ForwardDeadGuardWarning(t *testing.T) {
	s := New(32)
	warnings, err := s.Add([]route.Definition{
		{Name: "a", Path: "/a", ForwardTo: "b", CanActivate: func(route.RouterHandle, func(string) (any, bool)) route.ActivationFunc { return nil }},
		{Name: "b", Path: "/b"},
	}, "")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
}

func TestUpdate_ForwardCycleRejection(t *testing.T) {
	s := New(32)
	_, err := s.Add([]route.Definition{
		{Name: "a", Path: "/a", ForwardTo: "b"},
		{Name: "b", Path: "/b"},
	}, "")
	require.NoError(t, err)

	err = s.Update("b", func(d *route.Definition) { d.ForwardTo = "a" })
	require.ErrorIs(t, err, ErrForwardCycle)

	// resolvedForwardMap must still reflect only the valid prior entry
	target, rerr := s.ResolveForward(context.Background(), "a", nil)
	require.NoError(t, rerr)
	assert.Equal(t, "b", target)
}

func TestRemove_ActiveGuard(t *testing.T) {
	s := New(32)
	_, err := s.Add([]route.Definition{{Name: "a", Path: "/a"}}, "")
	require.NoError(t, err)

	err = s.Remove("a", func(string) bool { return true })
	require.ErrorIs(t, err, ErrRouteActive)
	assert.True(t, s.HasRoute("a"))
}

func TestRemove_DescendantsAndDanglingForwards(t *testing.T) {
	s := New(32)
	_, err := s.Add([]route.Definition{
		{Name: "parent", Path: "/parent", Children: []route.Definition{
			{Name: "child", Path: "/child"},
		}},
		{Name: "other", Path: "/other", ForwardTo: "parent.child"},
	}, "")
	require.NoError(t, err)

	err = s.Remove("parent", neverActive)
	require.NoError(t, err)

	assert.False(t, s.HasRoute("parent"))
	assert.False(t, s.HasRoute("parent.child"))
	assert.Empty(t, s.ForwardMap()["other"])
}

func TestClear_RefusedDuringTransition(t *testing.T) {
	s := New(32)
	_, err := s.Add([]route.Definition{{Name: "a", Path: "/a"}}, "")
	require.NoError(t, err)

	err = s.Clear(func() bool { return true })
	require.ErrorIs(t, err, ErrTransitionInProgress)
	assert.True(t, s.HasRoute("a"))

	err = s.Clear(neverBusy)
	require.NoError(t, err)
	assert.False(t, s.HasRoute("a"))
}

func TestResolveForward_NoForwardIsIdentity(t *testing.T) {
	s := New(32)
	_, err := s.Add([]route.Definition{{Name: "a", Path: "/a"}}, "")
	require.NoError(t, err)

	target, err := s.ResolveForward(context.Background(), "a", nil)
	require.NoError(t, err)
	assert.Equal(t, "a", target)
}

func TestResolveForward_DynamicThenStatic(t *testing.T) {
	s := New(32)
	_, err := s.Add([]route.Definition{
		{Name: "dyn", Path: "/dyn", ForwardToFn: func(params map[string]any, ctx context.Context) (string, error) {
			return "statForward", nil
		}},
		{Name: "statForward", Path: "/stat-forward", ForwardTo: "final"},
		{Name: "final", Path: "/final"},
	}, "")
	require.NoError(t, err)

	target, err := s.ResolveForward(context.Background(), "dyn", nil)
	require.NoError(t, err)
	assert.Equal(t, "final", target)
}
