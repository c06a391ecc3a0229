// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcts

import (
	"regexp"
	"strconv"
)

// DefaultRewardCeiling caps parsed ratings so no sample saturates the scale.
const DefaultRewardCeiling = 95

var ratingPattern = regexp.MustCompile(`Rating:\s*(\d+)`)

// ParseRating extracts the first "Rating: <n>" integer from judge output.
//
// Outputs:
//   - int: The rating as written, unclamped.
//   - bool: False when no rating is present or the digits overflow an int.
func ParseRating(text string) (int, bool) {
	m := ratingPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseReward converts judge output into a reward in [0, ceiling/100].
//
// Description:
//
//	The first rating found is clamped to ceiling and divided by 100. Any
//	parse failure yields exactly 0.
//
// Inputs:
//   - text: Free-form judge response.
//   - ceiling: Maximum rating counted, normally DefaultRewardCeiling.
//
// Outputs:
//   - float64: The reward.
func ParseReward(text string, ceiling int) float64 {
	rating, ok := ParseRating(text)
	if !ok {
		return 0.0
	}
	return float64(min(rating, ceiling)) / 100
}
