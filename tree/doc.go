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

// Package tree compiles route definitions into an immutable trie and
// exposes the bidirectional path↔state Matcher built from it (C2/C3).
//
// # Path grammar
//
// Each "/"-separated segment is one of:
//
//   - a literal segment: matched verbatim ("users")
//   - a parameterised segment: ":name" or ":name<pattern>" where pattern is
//     a Go regexp constraining the captured value
//   - a splat segment: "*name", which must be the last segment and consumes
//     the remainder of the path including any slashes
//
// A path may carry a query-parameter declaration suffix: "?a&b&c" declares
// that a, b and c are recognised query parameters for the route.
//
// # Compilation
//
// Tree is immutable once built; every mutation (AddRoute/RemoveRoute)
// produces a fresh Tree value. Callers holding a *Tree obtained before a
// mutation keep seeing the pre-mutation snapshot — the copy-on-write
// pattern the teacher's radix implementation uses for its Freeze()'d nodes,
// generalized here to "rebuild, don't mutate in place".
package tree
