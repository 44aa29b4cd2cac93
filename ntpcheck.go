package main

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

// NTPVerifier compares a time against a direct NTP query made by the host.
type NTPVerifier struct {
	Server  string
	Timeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Offset returns t minus the current NTP time. A positive offset means t is
// ahead.
func (v NTPVerifier) Offset(ctx context.Context, t time.Time) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	timeout := v.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout == 0 || left < timeout {
			timeout = left
		}
	}

	resp, err := ntp.QueryWithOptions(v.Server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", v.Server, err)
	}
	if err := resp.Validate(); err != nil {
		return 0, fmt.Errorf("invalid response from %s: %w", v.Server, err)
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	return t.Sub(now().Add(resp.ClockOffset)), nil
}
