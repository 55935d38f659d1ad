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

package navigator

// DiagnosticKind classifies a DiagnosticEvent.
type DiagnosticKind string

const (
	// DiagnosticDeadGuard fires when a route declares both forwardTo and
	// canActivate/canDeactivate — forwardTo wins and the guards never run.
	DiagnosticDeadGuard DiagnosticKind = "dead_guard"
	// DiagnosticLimitWarn fires when a registry crosses its warn threshold
	// (~20% of the hard limit).
	DiagnosticLimitWarn DiagnosticKind = "limit_warn"
	// DiagnosticLimitError fires when a registry crosses its error threshold
	// (~50% of the hard limit), short of the hard failure itself.
	DiagnosticLimitError DiagnosticKind = "limit_error"
	// DiagnosticGuardOverwritten fires when addCanActivate/addCanDeactivate
	// is called twice for the same route.
	DiagnosticGuardOverwritten DiagnosticKind = "guard_overwritten"
)

// DiagnosticEvent is an optional informational event that may indicate a
// configuration issue. The router functions correctly whether diagnostics
// are observed or not — see WithDiagnostics.
type DiagnosticEvent struct {
	Kind    DiagnosticKind
	Message string
	Fields  map[string]any
}

// DiagnosticHandler receives DiagnosticEvents. Implementations must not
// block; the router calls it synchronously on the goroutine performing the
// mutation or transition step that triggered the event.
type DiagnosticHandler func(DiagnosticEvent)
