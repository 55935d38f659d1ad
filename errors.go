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

import (
	"errors"
	"fmt"
)

// Code classifies a RouterError. Every value here is one of the
// ENUMERATED error codes from the routing contract.
type Code string

const (
	CodeRouterNotStarted    Code = "ROUTER_NOT_STARTED"
	CodeRouterAlreadyStarted Code = "ROUTER_ALREADY_STARTED"
	CodeNoStartPathOrState  Code = "NO_START_PATH_OR_STATE"
	CodeRouteNotFound       Code = "ROUTE_NOT_FOUND"
	CodeSameStates          Code = "SAME_STATES"
	CodeCannotDeactivate    Code = "CANNOT_DEACTIVATE"
	CodeCannotActivate      Code = "CANNOT_ACTIVATE"
	CodeTransitionErr       Code = "TRANSITION_ERR"
	CodeTransitionCancelled Code = "TRANSITION_CANCELLED"
)

// Structural errors are programmer errors raised synchronously at the API
// boundary. They are never caught and translated into operational errors.
var (
	ErrInvalidRouteName       = errors.New("navigator: route name must be a non-empty dot-free identifier")
	ErrInvalidRoutePath       = errors.New("navigator: route path must start with \"/\"")
	ErrDuplicateRouteName     = errors.New("navigator: route already registered with this name")
	ErrUnknownRoute           = errors.New("navigator: target route does not exist")
	ErrForwardCycle           = errors.New("navigator: forwarding chain is cyclic")
	ErrForwardTooDeep         = errors.New("navigator: forwarding chain exceeds maximum depth")
	ErrForwardParamMismatch   = errors.New("navigator: forwardTo target params are not a subset of source params")
	ErrAsyncForwardFn         = errors.New("navigator: dynamic forward callbacks must be synchronous")
	ErrRouteActive            = errors.New("navigator: cannot remove a route that is the current state or an ancestor of it")
	ErrTransitionInProgress   = errors.New("navigator: cannot clear routes while a transition is in progress")
	ErrDuplicateListener      = errors.New("navigator: listener already registered for this channel")
	ErrListenerLimitExceeded  = errors.New("navigator: channel exceeds maxListeners")
	ErrEventDepthExceeded     = errors.New("navigator: re-entrant emission exceeds maxEventDepth")
	ErrDependencyLimitExceeded = errors.New("navigator: dependency store exceeds maxDependencies")
	ErrLifecycleLimitExceeded = errors.New("navigator: lifecycle registry exceeds maxLifecycleHandlers")
	ErrPluginLimitExceeded    = errors.New("navigator: plugin registry exceeds maxPlugins")
	ErrMiddlewareLimitExceeded = errors.New("navigator: middleware chain exceeds maxMiddleware")
	ErrAsyncPluginFactory     = errors.New("navigator: plugin factories must be synchronous")
	ErrInvalidPluginShape     = errors.New("navigator: plugin exposes an unknown method name")
	ErrNotSerializable        = errors.New("navigator: value is not serializable")
	ErrMissingURLParam        = errors.New("navigator: missing required url parameter")
	ErrUndeclaredQueryParam   = errors.New("navigator: undeclared query parameter under strict mode")
	ErrTrailingSlashMismatch  = errors.New("navigator: trailing slash does not satisfy strict mode")
)

// RouterError is the concrete error type carried by TRANSITION_ERROR events
// and rejected navigation futures. It wraps the underlying cause (a guard's
// rejection reason, a structural error, …) without losing errors.Is/As
// compatibility with the sentinels above.
type RouterError struct {
	Code    Code
	Message string
	Cause   error
	To      *State
	From    *State
}

func (e *RouterError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("navigator: %s: %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("navigator: %s: %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("navigator: %s", e.Code)
}

func (e *RouterError) Unwrap() error { return e.Cause }

// newRouterError builds a classified operational/structural error, preserving
// the rejection reason supplied by user code as the message.
func newRouterError(code Code, to, from *State, cause error) *RouterError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &RouterError{Code: code, Message: msg, Cause: cause, To: to, From: from}
}
