package sntp

import "errors"

var (
	ErrWifiNotConnected = errors.New("wifi not connected")
	ErrNotInitialized   = errors.New("sntp not initialized")
	ErrInvalidTimezone  = errors.New("timezone out of range")
	ErrNoResponse       = errors.New("no response from module")
	ErrNotSynchronized  = errors.New("module clock not synchronized")
	ErrUnknownName      = errors.New("unknown weekday or month name")
	ErrMalformedTime    = errors.New("malformed time")
)
