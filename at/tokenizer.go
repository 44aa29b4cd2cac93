package at

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// Splitter is used for tokenizing ESP8266 AT responses. It uses the
// signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// Lines are terminated by CRLF. A lone CR or LF is part of the line.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.Index(data, []byte(CRLF)); i >= 0 {
		return i + len(CRLF), data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	if line == Prompt || line == ">" {
		return TypePrompt
	}

	switch line {
	case OK, ERROR, FAIL, SendOK, SendFail:
		return TypeFinal
	case UrcWifiConnected, UrcWifiGotIP, UrcWifiDisconnect, UrcConnect, UrcClosed, Ready:
		return TypeURC
	}

	// Multi-connection mode prefixes the link id: "0,CONNECT", "0,CLOSED"
	if i := strings.IndexByte(line, ','); i > 0 && isDigits(line[:i]) {
		switch line[i+1:] {
		case UrcConnect, UrcClosed, "CONNECT FAIL":
			return TypeURC
		}
	}

	switch {
	case strings.HasPrefix(line, UrcBusy):
		return TypeURC
	default:
		return TypeData
	}
}

// StripIPD removes a leading "+IPD,<len>:" or "+IPD,<id>,<len>:" frame header
// from line. Lines without the header are returned unchanged.
func StripIPD(line string) string {
	if _, payload, ok := ParseIPD(line); ok {
		return payload
	}
	return line
}

// ParseIPD splits a "+IPD,<len>:" or "+IPD,<id>,<len>:" frame header off line.
// n is the frame length announced by the module, which counts every payload
// byte including CRLFs that the line splitter has already removed.
func ParseIPD(line string) (n int, payload string, ok bool) {
	if !strings.HasPrefix(line, IPDPrefix) {
		return 0, line, false
	}
	rest := line[len(IPDPrefix):]
	i := strings.IndexByte(rest, ':')
	if i < 0 {
		return 0, line, false
	}
	fields := strings.Split(rest[:i], ",")
	if len(fields) > 2 {
		return 0, line, false
	}
	for _, f := range fields {
		if !isDigits(f) {
			return 0, line, false
		}
	}
	n, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, line, false
	}
	return n, rest[i+1:], true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
