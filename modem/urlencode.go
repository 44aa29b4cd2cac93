package modem

import "strings"

const upperhex = "0123456789ABCDEF"

// EncodeQueryValue percent-encodes s for use as a query string value. Only
// ASCII letters and digits pass through; every other byte, including space,
// '%', '-', '.', '_' and '~', becomes %XX.
func EncodeQueryValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAlnum(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

func isAlnum(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}
