// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runner

import (
	"regexp"
	"strings"
)

// boxedPattern allows one level of nested braces inside \boxed{...}.
var boxedPattern = regexp.MustCompile(`\\boxed\{((?:[^{}]|\{[^{}]*\})*)\}`)

// ExtractBoxedAnswer returns the content of the last \boxed{...} in a worked
// solution, or "" when there is none.
func ExtractBoxedAnswer(solution string) string {
	matches := boxedPattern.FindAllStringSubmatch(solution, -1)
	if len(matches) == 0 {
		return ""
	}
	return strings.TrimSpace(matches[len(matches)-1][1])
}

// ReferenceFrom returns the boxed answer inside text if there is one, and
// text otherwise.
func ReferenceFrom(text string) string {
	if boxed := ExtractBoxedAnswer(text); boxed != "" {
		return boxed
	}
	return strings.TrimSpace(text)
}
