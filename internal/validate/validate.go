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

// Package validate implements the type-guard layer (C1): the set of runtime
// checks the router applies at its API boundary before any core subsystem
// sees a name, path, param bag or state. Every check here is a structural
// validator — callers get a plain error they can wrap with navigator.Code,
// never a panic.
package validate

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrEmptyName     = errors.New("validate: name must not be empty")
	ErrDottedName    = errors.New("validate: name must not contain \".\" (dots separate route segments)")
	ErrEmptyPath     = errors.New("validate: path must not be empty")
	ErrPathNoSlash   = errors.New("validate: path must start with \"/\"")
	ErrPathDoubleSlash = errors.New("validate: path must not contain \"//\"")
	ErrNotAString    = errors.New("validate: expected a string")
	ErrCyclicValue   = errors.New("validate: value contains a cyclic reference")
	ErrNotFinite     = errors.New("validate: number must be finite (no NaN/Inf)")
	ErrUnsupportedType = errors.New("validate: value is not serializable")
)

// RouteName checks that name is non-empty and dot-free (dots are reserved
// to separate compiled segment names, e.g. "users.detail").
func RouteName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("%w: %q", ErrDottedName, name)
	}
	return nil
}

// RoutePath checks the raw (uncompiled) path pattern supplied on a route
// definition. It does not validate segment grammar — that is the tree
// compiler's job — only the two structural rules every path must satisfy.
func RoutePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if path != "/" && !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: %q", ErrPathNoSlash, path)
	}
	return nil
}

// InputPath checks a path supplied to matchPath at request time. Unlike
// RoutePath it also rejects double slashes per the matcher's edge-case
// policy: "double slashes in input do not match".
func InputPath(path string) error {
	if err := RoutePath(path); err != nil {
		return err
	}
	if strings.Contains(path, "//") {
		return fmt.Errorf("%w: %q", ErrPathDoubleSlash, path)
	}
	return nil
}

// Serializable walks value and rejects anything that cannot survive a
// structured-clone/freeze round trip: functions, channels, NaN/Infinity,
// and cyclic references. Arrays and plain maps/structs-as-maps are walked
// recursively up to a bounded depth.
func Serializable(value any) error {
	return serializable(value, make(map[string]bool), 0)
}

const maxSerializableDepth = 64

func serializable(value any, seen map[string]bool, depth int) error {
	if depth > maxSerializableDepth {
		return ErrCyclicValue
	}
	switch v := value.(type) {
	case nil, bool, string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return nil
	case float32:
		return finite(float64(v))
	case float64:
		return finite(v)
	case []any:
		if len(v) > 0 {
			key := fmt.Sprintf("%p", v)
			if seen[key] {
				return ErrCyclicValue
			}
			seen[key] = true
			defer delete(seen, key)
		}
		for _, e := range v {
			if err := serializable(e, seen, depth+1); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		key := fmt.Sprintf("%p", v)
		if seen[key] {
			return ErrCyclicValue
		}
		seen[key] = true
		defer delete(seen, key)
		for _, e := range v {
			if err := serializable(e, seen, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, value)
	}
}

func finite(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrNotFinite
	}
	return nil
}
