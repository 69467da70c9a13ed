package config

import (
	"fmt"
	"time"

	"github.com/sosodev/duration"
)

// ParseISODuration parses an ISO-8601 duration such as "PT15S" or "PT1H30M".
func ParseISODuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("empty duration")
	}
	d, err := duration.Parse(value)
	if err != nil {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", value, err)
	}
	return d.ToTimeDuration(), nil
}

// durationOr is used by accessors whose inputs were already checked by Validate.
func durationOr(value string, fallback time.Duration) time.Duration {
	d, err := ParseISODuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
