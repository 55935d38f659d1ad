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

package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileOrFail(t *testing.T, inputs []Input) *Tree {
	t.Helper()
	tr, err := Compile(inputs)
	require.NoError(t, err)
	return tr
}

func TestCompile_DuplicateName(t *testing.T) {
	_, err := Compile([]Input{
		{Name: "user", Path: "/user/:id"},
		{Name: "user", Path: "/other"},
	})
	require.Error(t, err)
}

func TestCompile_ConflictingParamNames(t *testing.T) {
	_, err := Compile([]Input{
		{Name: "a", Path: "/item/:id"},
		{Name: "b", Path: "/item/:code"},
	})
	require.Error(t, err)
}

func TestCompile_SplatMustBeLast(t *testing.T) {
	_, err := Compile([]Input{
		{Name: "bad", Path: "/files/*rest/more"},
	})
	require.Error(t, err)
}

func TestCompile_LeafCollision(t *testing.T) {
	_, err := Compile([]Input{
		{Name: "a", Path: "/user/:id"},
		{Name: "b", Path: "/user/:id"},
	})
	require.Error(t, err)
}

func TestMatch_StaticRoute(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "home", Path: "/"}})
	m := NewMatcher(tr)

	res, err := m.Match("/", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "home", res.Name)
}

func TestMatch_ParamRoute(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "user", Path: "/user/:id"}})
	m := NewMatcher(tr)

	res, err := m.Match("/user/42", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "user", res.Name)
	assert.Equal(t, "42", res.URLParams["id"])
	assert.Equal(t, ParamKindURL, res.ParamKinds["id"])
}

func TestMatch_ParamConstraint(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "user", Path: `/user/:id<\d+>`}})
	m := NewMatcher(tr)

	res, err := m.Match("/user/42", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)

	res, err = m.Match("/user/abc", MatchOptions{})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestMatch_SplatRoute(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "files", Path: "/files/*rest"}})
	m := NewMatcher(tr)

	res, err := m.Match("/files/a/b/c.txt", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "a/b/c.txt", res.URLParams["rest"])
}

func TestMatch_StaticBeatsParamAtSamePosition(t *testing.T) {
	tr := compileOrFail(t, []Input{
		{Name: "new", Path: "/user/new"},
		{Name: "byID", Path: "/user/:id"},
	})
	m := NewMatcher(tr)

	res, err := m.Match("/user/new", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "new", res.Name)

	res, err = m.Match("/user/7", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "byID", res.Name)
}

func TestMatch_NoMatch(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "home", Path: "/"}})
	m := NewMatcher(tr)

	res, err := m.Match("/nope", MatchOptions{})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestMatch_MalformedInput(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "home", Path: "/"}})
	m := NewMatcher(tr)

	for _, p := range []string{"", "no-leading-slash", "/double//slash"} {
		res, err := m.Match(p, MatchOptions{})
		require.NoError(t, err)
		assert.Nil(t, res, "path %q should not match", p)
	}
}

func TestMatch_QueryParamsModes(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "search", Path: "/search?q&page"}})
	m := NewMatcher(tr)

	// default: undeclared keys are kept
	res, err := m.Match("/search?q=go&extra=1", MatchOptions{QueryParamsMode: QueryParamsDefault})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "go", res.QueryParams["q"])
	assert.Equal(t, "1", res.QueryParams["extra"])

	// strict: undeclared keys reject the whole match
	res, err = m.Match("/search?q=go&extra=1", MatchOptions{QueryParamsMode: QueryParamsStrict})
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = m.Match("/search?q=go", MatchOptions{QueryParamsMode: QueryParamsStrict})
	require.NoError(t, err)
	require.NotNil(t, res)

	// loose: undeclared keys are silently discarded
	res, err = m.Match("/search?q=go&extra=1", MatchOptions{QueryParamsMode: QueryParamsLoose})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "go", res.QueryParams["q"])
	_, hasExtra := res.QueryParams["extra"]
	assert.False(t, hasExtra)
}

func TestMatch_TrailingSlashStrict(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "list", Path: "/items/"}})
	m := NewMatcher(tr)

	res, err := m.Match("/items/", MatchOptions{TrailingSlash: TrailingSlashStrict})
	require.NoError(t, err)
	require.NotNil(t, res)

	res, err = m.Match("/items", MatchOptions{TrailingSlash: TrailingSlashStrict})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestBuild_RoundTrip(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "user", Path: "/user/:id"}})
	m := NewMatcher(tr)

	path, err := m.Build("user", map[string]any{"id": "42"}, TrailingSlashPreserve, EncodingDefault)
	require.NoError(t, err)
	assert.Equal(t, "/user/42", path)

	res, err := m.Match(path, MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "user", res.Name)
	assert.Equal(t, "42", res.URLParams["id"])
}

func TestBuild_MissingParam(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "user", Path: "/user/:id"}})
	m := NewMatcher(tr)

	_, err := m.Build("user", map[string]any{}, TrailingSlashPreserve, EncodingDefault)
	require.ErrorIs(t, err, ErrMissingURLParam)
}

func TestBuild_UnknownRoute(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "user", Path: "/user/:id"}})
	m := NewMatcher(tr)

	_, err := m.Build("nope", nil, TrailingSlashPreserve, EncodingDefault)
	require.ErrorIs(t, err, ErrRouteNotFound)
}

func TestBuild_UnknownRouteNameIdentity(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "user", Path: "/user/:id"}})
	m := NewMatcher(tr)

	path, err := m.Build(UnknownRouteName, map[string]any{"path": "/whatever/it/was"}, TrailingSlashPreserve, EncodingDefault)
	require.NoError(t, err)
	assert.Equal(t, "/whatever/it/was", path)

	path, err = m.Build(UnknownRouteName, nil, TrailingSlashPreserve, EncodingDefault)
	require.NoError(t, err)
	assert.Equal(t, "", path)
}

func TestBuild_ExtraParamsBecomeQueryString(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "user", Path: "/user/:id"}})
	m := NewMatcher(tr)

	path, err := m.Build("user", map[string]any{"id": "1", "sort": "asc", "page": "2"}, TrailingSlashPreserve, EncodingDefault)
	require.NoError(t, err)
	assert.Equal(t, "/user/1?page=2&sort=asc", path)
}

func TestBuild_TrailingSlashModes(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "user", Path: "/user/:id"}})
	m := NewMatcher(tr)

	path, err := m.Build("user", map[string]any{"id": "1"}, TrailingSlashAlways, EncodingDefault)
	require.NoError(t, err)
	assert.Equal(t, "/user/1/", path)

	path, err = m.Build("user", map[string]any{"id": "1"}, TrailingSlashNever, EncodingDefault)
	require.NoError(t, err)
	assert.Equal(t, "/user/1", path)
}

func TestBuild_ConstraintViolation(t *testing.T) {
	tr := compileOrFail(t, []Input{{Name: "user", Path: `/user/:id<\d+>`}})
	m := NewMatcher(tr)

	_, err := m.Build("user", map[string]any{"id": "abc"}, TrailingSlashPreserve, EncodingDefault)
	require.Error(t, err)
}

func TestTree_Introspection(t *testing.T) {
	tr := compileOrFail(t, []Input{
		{Name: "user", Path: "/user/:id"},
		{Name: "home", Path: "/"},
	})

	assert.True(t, tr.HasRoute("user"))
	assert.False(t, tr.HasRoute("nope"))
	assert.ElementsMatch(t, []string{"home", "user"}, tr.RouteNames())

	names, ok := tr.URLParamNames("user")
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, names)

	_, ok = tr.URLParamNames("nope")
	assert.False(t, ok)
}

func TestDecodeParam_PlusStaysLiteral(t *testing.T) {
	assert.Equal(t, "a+b", decodeParam("a+b"))
	assert.Equal(t, "a b", decodeParam("a%20b"))
}

func TestEncodeParam_Modes(t *testing.T) {
	assert.Equal(t, "a%2Fb", encodeParam("a/b", EncodingURIComponent))
	assert.Equal(t, "a/b", encodeParam("a/b", EncodingURI))
	assert.Equal(t, "a/b", encodeParam("a/b", EncodingNone))
}
