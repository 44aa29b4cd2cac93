package blynk

import "errors"

var (
	ErrWifiNotConnected = errors.New("wifi not connected")
	ErrAllServersFailed = errors.New("all blynk servers failed")
	ErrNoServers        = errors.New("server list is empty")
	ErrInvalidHost      = errors.New("invalid server host")
	ErrNoStatusLine     = errors.New("no http status line")
	ErrBadStatus        = errors.New("unexpected http status")
	ErrInvalidField     = errors.New("invalid request field")
)
