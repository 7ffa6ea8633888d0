package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseDuration extends time.ParseDuration with d, w, m (30 days) and y
// suffixes on whole numbers.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	var multiplier time.Duration
	var numStr string

	switch {
	case strings.HasSuffix(s, "d"):
		numStr = strings.TrimSuffix(s, "d")
		multiplier = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		numStr = strings.TrimSuffix(s, "w")
		multiplier = 7 * 24 * time.Hour
	case strings.HasSuffix(s, "m"):
		numStr = strings.TrimSuffix(s, "m")
		multiplier = 30 * 24 * time.Hour
	case strings.HasSuffix(s, "y"):
		numStr = strings.TrimSuffix(s, "y")
		multiplier = 365 * 24 * time.Hour
	default:
		return time.ParseDuration(s)
	}

	num, err := strconv.Atoi(numStr)
	if err != nil {
		// "1h30m" is a Go duration, not a month count.
		if d, perr := time.ParseDuration(s); perr == nil {
			return d, nil
		}
		return 0, fmt.Errorf("invalid number: %s", numStr)
	}
	if num <= 0 {
		return 0, fmt.Errorf("duration must be positive: %s", s)
	}

	return time.Duration(num) * multiplier, nil
}
