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
	"fmt"
	"testing"
)

func buildBenchTree(b *testing.B) *Tree {
	b.Helper()
	inputs := []Input{
		{Name: "home", Path: "/"},
		{Name: "user", Path: "/user/:id"},
		{Name: "userProfile", Path: `/user/:id<\d+>/profile`},
		{Name: "files", Path: "/files/*rest"},
		{Name: "search", Path: "/search?q&page"},
	}
	for i := 0; i < 50; i++ {
		inputs = append(inputs, Input{Name: fmt.Sprintf("static%d", i), Path: fmt.Sprintf("/static/page%d", i)})
	}
	tr, err := Compile(inputs)
	if err != nil {
		b.Fatal(err)
	}
	return tr
}

func BenchmarkCompile(b *testing.B) {
	inputs := []Input{
		{Name: "home", Path: "/"},
		{Name: "user", Path: "/user/:id"},
		{Name: "files", Path: "/files/*rest"},
	}
	for i := 0; i < 50; i++ {
		inputs = append(inputs, Input{Name: fmt.Sprintf("static%d", i), Path: fmt.Sprintf("/static/page%d", i)})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Compile(inputs); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMatch_Static(b *testing.B) {
	tr := buildBenchTree(b)
	m := NewMatcher(tr)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Match("/static/page25", MatchOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMatch_Param(b *testing.B) {
	tr := buildBenchTree(b)
	m := NewMatcher(tr)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Match("/user/42", MatchOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMatch_Splat(b *testing.B) {
	tr := buildBenchTree(b)
	m := NewMatcher(tr)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Match("/files/a/b/c/d.txt", MatchOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBuild(b *testing.B) {
	tr := buildBenchTree(b)
	m := NewMatcher(tr)
	params := map[string]any{"id": "42"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Build("user", params, TrailingSlashPreserve, EncodingDefault); err != nil {
			b.Fatal(err)
		}
	}
}
