package blynk

import (
	"strings"

	"i4.energy/across/espgw/at"
)

// frameReader splits received lines into response payload and module
// chatter. Once a +IPD header has been seen, every byte inside an announced
// frame is payload and everything outside is the module talking, however
// much it looks like a notification. Without frame headers only link close
// notifications are told apart.
type frameReader struct {
	framed    bool
	remaining int
}

// feed returns the payload carried by line, which may be split across a
// frame boundary.
func (r *frameReader) feed(line string) []string {
	var out []string
	for {
		if r.remaining > 0 {
			if len(line) <= r.remaining {
				r.remaining = max(r.remaining-len(line)-len(at.CRLF), 0)
				return append(out, line)
			}
			out = append(out, line[:r.remaining])
			line = line[r.remaining:]
			r.remaining = 0
		}

		if n, payload, ok := at.ParseIPD(line); ok {
			r.framed = true
			r.remaining = n
			line = payload
			if n > 0 {
				continue
			}
		}

		if r.framed || isLinkClosed(line) {
			return out
		}
		return append(out, line)
	}
}

// isLinkClosed matches "CLOSED" and its multi-connection form "<id>,CLOSED".
func isLinkClosed(line string) bool {
	if line == at.UrcClosed {
		return true
	}
	id, rest, ok := strings.Cut(line, ",")
	return ok && rest == at.UrcClosed && id != "" && strings.Trim(id, "0123456789") == ""
}
