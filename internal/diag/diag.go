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

// Package diag defines the minimal severity vocabulary every bounded
// registry below the root package (lifecycle guards, plugins, event
// listeners, event re-entrancy depth) reports non-fatal threshold
// crossings through; the dependency and middleware limits live in the root
// package and report its DiagnosticKind directly. It exists so those low-level packages can
// emit a classified diagnostic without importing the root package's full
// DiagnosticKind/DiagnosticEvent type, which would create an import cycle.
package diag

// Tier classifies one diagnostic callback invocation from a bounded
// registry.
type Tier int

const (
	// Warn fires when a registry crosses its warn threshold (~20% of its
	// hard limit).
	Warn Tier = iota
	// Error fires when a registry crosses its error threshold (~50% of its
	// hard limit), short of the hard failure itself.
	Error
	// Overwritten fires when a registration call replaces a prior entry
	// registered under the same key.
	Overwritten
)

// Func receives a tier-classified, human-readable diagnostic message from a
// bounded registry. Implementations must not block.
type Func func(tier Tier, message string)
