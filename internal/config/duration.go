package config

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// durationUnits are the suffixes accepted by ParseDuration
var durationUnits = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
}

// ParseDuration parses "<number><unit>" with unit ms, s, m, h or d, such as
// "90s", "1.5h" or "7d". Anything else yields fallback.
func ParseDuration(input string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return fallback
	}

	split := strings.IndexFunc(raw, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if split <= 0 {
		return fallback
	}

	unit, ok := durationUnits[raw[split:]]
	if !ok {
		return fallback
	}

	number := raw[:split]
	if strings.Count(number, ".") > 1 || strings.HasPrefix(number, ".") || strings.HasSuffix(number, ".") {
		return fallback
	}
	value, err := strconv.ParseFloat(number, 64)
	if err != nil || value < 0 || math.IsInf(value, 0) {
		return fallback
	}

	total := value * float64(unit)
	if total > math.MaxInt64 {
		return fallback
	}
	return time.Duration(total)
}
