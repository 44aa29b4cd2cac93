//go:build linux

package main

import (
	"time"

	"golang.org/x/sys/unix"
)

// setSystemClock sets the host wall clock. It needs CAP_SYS_TIME.
func setSystemClock(t time.Time) error {
	tv := unix.NsecToTimeval(t.UnixNano())
	return unix.Settimeofday(&tv)
}
