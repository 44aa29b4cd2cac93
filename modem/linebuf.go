package modem

import "i4.energy/across/espgw/at"

// lineBuffer accumulates bytes read from the transport. Everything before the
// first CRLF is a complete line that has not been handed out yet.
type lineBuffer struct {
	buf []byte
}

func (b *lineBuffer) write(p []byte) {
	b.buf = append(b.buf, p...)
}

// next removes and returns the first complete line.
func (b *lineBuffer) next() (string, bool) {
	advance, token, _ := at.Splitter(b.buf, false)
	if advance == 0 {
		return "", false
	}
	line := string(token)
	b.buf = b.buf[advance:]
	if len(b.buf) == 0 {
		b.buf = nil
	}
	return line, true
}

// partial returns the unterminated tail without consuming it.
func (b *lineBuffer) partial() string {
	return string(b.buf)
}

func (b *lineBuffer) len() int {
	return len(b.buf)
}

func (b *lineBuffer) reset() {
	b.buf = nil
}
