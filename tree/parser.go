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
	"regexp"
	"strings"
)

type segmentKind int

const (
	segLiteral segmentKind = iota
	segParam
	segSplat
)

type pathSegment struct {
	kind       segmentKind
	literal    string
	paramName  string
	constraint *regexp.Regexp
}

// parsedPath is the compiled form of a route's raw path pattern.
type parsedPath struct {
	segments    []pathSegment
	queryParams []string
	hadTrailingSlash bool
}

// parsePath splits a raw path pattern ("/users/:id<\d+>?expand&sort") into
// its ordered segments and its declared query parameters.
func parsePath(raw string) (parsedPath, error) {
	pathPart, queryPart, _ := strings.Cut(raw, "?")

	var queryParams []string
	if queryPart != "" {
		for _, name := range strings.Split(queryPart, "&") {
			if name == "" {
				continue
			}
			queryParams = append(queryParams, name)
		}
	}

	if pathPart == "" || pathPart == "/" {
		return parsedPath{queryParams: queryParams}, nil
	}
	if !strings.HasPrefix(pathPart, "/") {
		return parsedPath{}, fmt.Errorf("tree: path must start with \"/\": %q", raw)
	}

	trailing := len(pathPart) > 1 && strings.HasSuffix(pathPart, "/")
	trimmed := strings.Trim(pathPart, "/")
	if trimmed == "" {
		return parsedPath{queryParams: queryParams, hadTrailingSlash: trailing}, nil
	}

	rawSegments := strings.Split(trimmed, "/")
	segments := make([]pathSegment, 0, len(rawSegments))
	for i, raw := range rawSegments {
		seg, err := parseSegment(raw)
		if err != nil {
			return parsedPath{}, err
		}
		if seg.kind == segSplat && i != len(rawSegments)-1 {
			return parsedPath{}, fmt.Errorf("tree: splat segment %q must be last", raw)
		}
		segments = append(segments, seg)
	}

	return parsedPath{segments: segments, queryParams: queryParams, hadTrailingSlash: trailing}, nil
}

func parseSegment(raw string) (pathSegment, error) {
	switch {
	case strings.HasPrefix(raw, "*"):
		return pathSegment{kind: segSplat, paramName: raw[1:]}, nil
	case strings.HasPrefix(raw, ":"):
		body := raw[1:]
		name := body
		var constraint *regexp.Regexp
		if lt := strings.IndexByte(body, '<'); lt >= 0 {
			if !strings.HasSuffix(body, ">") {
				return pathSegment{}, fmt.Errorf("tree: unterminated constraint in %q", raw)
			}
			name = body[:lt]
			pattern := body[lt+1 : len(body)-1]
			re, err := regexp.Compile("^(?:" + pattern + ")$")
			if err != nil {
				return pathSegment{}, fmt.Errorf("tree: invalid constraint %q: %w", pattern, err)
			}
			constraint = re
		}
		if name == "" {
			return pathSegment{}, fmt.Errorf("tree: empty parameter name in %q", raw)
		}
		return pathSegment{kind: segParam, paramName: name, constraint: constraint}, nil
	default:
		return pathSegment{kind: segLiteral, literal: raw}, nil
	}
}
